// Package assign keeps routing-domain location registries in step with where
// resolver nodes actually are.
package assign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"

	"edgeroute/api/model"
)

const (
	defaultMaxAttempts = 3
	defaultTimeout     = 5 * time.Second
)

var (
	assignedTotal  = metrics.NewCounter("edgeroute_autoassign_total")
	removedTotal   = metrics.NewCounter("edgeroute_autoassign_removed_total")
	conflictsTotal = metrics.NewCounter("edgeroute_persistence_conflicts_total")
)

// DomainStore is the slice of the routing-domain store the service needs.
// ListDomains must match tenantID exactly, an empty one included. SaveDomain
// must fail with model.ErrConflict when the stored version no
// longer matches d.Version.
type DomainStore interface {
	ListDomains(ctx context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error)
	GetDomain(ctx context.Context, id string) (*model.RoutingDomain, error)
	SaveDomain(ctx context.Context, d *model.RoutingDomain) error
}

type Service struct {
	Domains         DomainStore
	DefaultLocation string
	MaxAttempts     int           // per domain, on version conflicts
	Timeout         time.Duration // per store call
}

type Result struct {
	Locations     []string `json:"locations"`
	AssignedCount int      `json:"assignedCount"`
	Domains       int      `json:"domains"`
	Message       string   `json:"message"`
}

// AutoAssign adds node to every matching location of its tenant's active
// domains. Calling it again with the same geolocation assigns nothing.
// Domains that fail to save are reported together; the others still commit.
func (s *Service) AutoAssign(ctx context.Context, node model.ResolverNode) (Result, error) {
	if node.ID == "" {
		return Result{}, fmt.Errorf("auto-assign: empty node id: %w", model.ErrInvalidInput)
	}

	locs := LocationsFor(node.Geo, s.DefaultLocation)
	if len(locs) == 0 {
		slog.Warn("assign: no locations derived", "node", node.ID, "reason", model.ErrNoGeoData)
		return Result{Message: "No locations detected for this node"}, nil
	}

	domains, err := s.listDomains(ctx, node.TenantID, true)
	if err != nil {
		return Result{Locations: locs}, err
	}

	res := Result{Locations: locs, Domains: len(domains)}
	var errs *multierror.Error
	for _, d := range domains {
		n, err := s.mutate(ctx, d, func(d *model.RoutingDomain) int {
			added := 0
			for _, code := range locs {
				if loc := d.Location(code); loc != nil && loc.AddNode(node.ID) {
					added++
				}
			}
			return added
		})
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if n > 0 {
			slog.Info("assign: node added", "node", node.ID, "domain", d.Name, "locations", n)
		}
		res.AssignedCount += n
	}

	assignedTotal.Add(res.AssignedCount)
	res.Message = fmt.Sprintf("Auto-assigned node to %s across %d domain(s)", strings.Join(locs, ", "), len(domains))
	return res, errs.ErrorOrNil()
}

// RemoveNode drops nodeID from every location of the tenant's domains and
// returns how many assignments were removed.
func (s *Service) RemoveNode(ctx context.Context, nodeID, tenantID string) (int, error) {
	if nodeID == "" {
		return 0, fmt.Errorf("remove node: empty node id: %w", model.ErrInvalidInput)
	}

	domains, err := s.listDomains(ctx, tenantID, false)
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs *multierror.Error
	for _, d := range domains {
		n, err := s.mutate(ctx, d, func(d *model.RoutingDomain) int {
			count := 0
			for i := range d.Locations {
				if d.Locations[i].RemoveNode(nodeID) {
					count++
				}
			}
			return count
		})
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		removed += n
	}
	removedTotal.Add(removed)
	return removed, errs.ErrorOrNil()
}

// mutate applies change to d and saves it when change reports a modification.
// On a version conflict the domain is reloaded and change is applied again.
func (s *Service) mutate(ctx context.Context, d model.RoutingDomain, change func(*model.RoutingDomain) int) (int, error) {
	for attempt := 1; ; attempt++ {
		n := change(&d)
		if n == 0 {
			return 0, nil
		}

		err := s.saveDomain(ctx, &d)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return 0, fmt.Errorf("save domain %s: %w", d.Name, err)
		}
		conflictsTotal.Inc()
		if attempt >= s.maxAttempts() {
			return 0, fmt.Errorf("save domain %s after %d attempts: %w", d.Name, attempt, err)
		}

		fresh, err := s.getDomain(ctx, d.ID)
		if err != nil {
			return 0, fmt.Errorf("reload domain %s: %w", d.Name, err)
		}
		if fresh == nil {
			// Deleted underneath us; nothing left to update.
			return 0, nil
		}
		d = *fresh
	}
}

func (s *Service) listDomains(ctx context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	domains, err := s.Domains.ListDomains(ctx, tenantID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list domains for tenant %q: %w", tenantID, err)
	}
	return domains, nil
}

func (s *Service) getDomain(ctx context.Context, id string) (*model.RoutingDomain, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.Domains.GetDomain(ctx, id)
}

func (s *Service) saveDomain(ctx context.Context, d *model.RoutingDomain) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.Domains.SaveDomain(ctx, d)
}

func (s *Service) maxAttempts() int {
	if s.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return s.MaxAttempts
}

func (s *Service) timeout() time.Duration {
	if s.Timeout <= 0 {
		return defaultTimeout
	}
	return s.Timeout
}
