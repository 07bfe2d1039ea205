// Package store persists resolver nodes and routing domains. DB runs on
// PostgreSQL, BoltDB on a single local file; both satisfy Store.
package store

import (
	"context"
	"time"

	"edgeroute/api/model"
)

// Store is the full method set shared by both backends. Lookups of missing
// records return nil, nil.
type Store interface {
	InsertNode(ctx context.Context, n *model.ResolverNode) error
	GetNode(ctx context.Context, id string) (*model.ResolverNode, error)
	GetNodeByToken(ctx context.Context, token string) (*model.ResolverNode, error)
	ListNodes(ctx context.Context) ([]model.ResolverNode, error)
	ListActiveNodesWithIP(ctx context.Context) ([]model.ResolverNode, error)
	MarkConnected(ctx context.Context, id string, at time.Time) error
	RecordHeartbeat(ctx context.Context, id string, at time.Time) error
	UpdateNodeGeo(ctx context.Context, id, ip string, geo *model.GeoInfo, maxHistory int) error
	SetNodeActive(ctx context.Context, id string, active, expected bool) (bool, error)
	DeleteNode(ctx context.Context, id string) error

	InsertDomain(ctx context.Context, d *model.RoutingDomain) error
	GetDomain(ctx context.Context, id string) (*model.RoutingDomain, error)
	ListDomains(ctx context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error)
	ListAllDomains(ctx context.Context, activeOnly bool) ([]model.RoutingDomain, error)
	SaveDomain(ctx context.Context, d *model.RoutingDomain) error
	DeleteDomain(ctx context.Context, id string) error

	Healthy(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*DB)(nil)
	_ Store = (*BoltDB)(nil)
)
