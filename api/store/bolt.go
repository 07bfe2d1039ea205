package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"edgeroute/api/model"
)

var (
	nodesBucket   = []byte("nodes")
	domainsBucket = []byte("domains")
	eventsBucket  = []byte("events")
)

// BoltDB is the single-file backend. Every write runs in one bbolt update
// transaction, so conditional writes compare and set atomically.
type BoltDB struct {
	Bolt *bbolt.DB
}

func OpenBolt(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{nodesBucket, domainsBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &BoltDB{Bolt: db}, nil
}

func (b *BoltDB) Close() error {
	return b.Bolt.Close()
}

func (b *BoltDB) Healthy(ctx context.Context) error {
	return b.Bolt.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(nodesBucket) == nil {
			return fmt.Errorf("bolt: bucket %s missing", nodesBucket)
		}
		return nil
	})
}

// boltNode keeps the secrets the API form of a node hides.
type boltNode struct {
	model.ResolverNode
	Key   string `json:"key"`
	Token string `json:"token,omitempty"`
}

func encodeNode(n *model.ResolverNode) ([]byte, error) {
	return json.Marshal(boltNode{ResolverNode: *n, Key: n.Key, Token: n.ConnectionToken})
}

func decodeNode(data []byte) (*model.ResolverNode, error) {
	var bn boltNode
	if err := json.Unmarshal(data, &bn); err != nil {
		return nil, err
	}
	n := bn.ResolverNode
	n.Key = bn.Key
	n.ConnectionToken = bn.Token
	return &n, nil
}

func getNode(tx *bbolt.Tx, id string) (*model.ResolverNode, error) {
	data := tx.Bucket(nodesBucket).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	return decodeNode(data)
}

func putNode(tx *bbolt.Tx, n *model.ResolverNode) error {
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	return tx.Bucket(nodesBucket).Put([]byte(n.ID), data)
}

// updateNode applies fn to a stored node inside one transaction.
func (b *BoltDB) updateNode(id string, fn func(n *model.ResolverNode) error) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		n, err := getNode(tx, id)
		if err != nil {
			return err
		}
		if n == nil {
			return fmt.Errorf("node %s: %w", id, model.ErrNotFound)
		}
		if err := fn(n); err != nil {
			return err
		}
		return putNode(tx, n)
	})
}

func (b *BoltDB) InsertNode(ctx context.Context, n *model.ResolverNode) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(nodesBucket).Get([]byte(n.ID)) != nil {
			return fmt.Errorf("node %s exists: %w", n.ID, model.ErrConflict)
		}
		return putNode(tx, n)
	})
}

func (b *BoltDB) GetNode(ctx context.Context, id string) (*model.ResolverNode, error) {
	var n *model.ResolverNode
	err := b.Bolt.View(func(tx *bbolt.Tx) error {
		var err error
		n, err = getNode(tx, id)
		return err
	})
	return n, err
}

func (b *BoltDB) GetNodeByToken(ctx context.Context, token string) (*model.ResolverNode, error) {
	if token == "" {
		return nil, nil
	}
	nodes, err := b.filterNodes(func(n *model.ResolverNode) bool { return n.ConnectionToken == token })
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return &nodes[0], nil
}

func (b *BoltDB) ListNodes(ctx context.Context) ([]model.ResolverNode, error) {
	return b.filterNodes(func(*model.ResolverNode) bool { return true })
}

func (b *BoltDB) ListActiveNodesWithIP(ctx context.Context) ([]model.ResolverNode, error) {
	return b.filterNodes(func(n *model.ResolverNode) bool { return n.Eligible() })
}

// filterNodes returns matching nodes in creation order. History is left out
// of list results, as in the Postgres backend.
func (b *BoltDB) filterNodes(keep func(n *model.ResolverNode) bool) ([]model.ResolverNode, error) {
	var nodes []model.ResolverNode
	err := b.Bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(nodesBucket).ForEach(func(_, v []byte) error {
			n, err := decodeNode(v)
			if err != nil {
				return err
			}
			if keep(n) {
				n.GeoHistory = nil
				nodes = append(nodes, *n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if !nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes, nil
}

func (b *BoltDB) MarkConnected(ctx context.Context, id string, at time.Time) error {
	return b.updateNode(id, func(n *model.ResolverNode) error {
		if n.Connected {
			return fmt.Errorf("node %s already connected: %w", id, model.ErrConflict)
		}
		n.Connected = true
		n.Active = true
		n.ConnectionToken = ""
		n.ConnectedAt = &at
		n.LastHeartbeat = &at
		return nil
	})
}

func (b *BoltDB) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	return b.updateNode(id, func(n *model.ResolverNode) error {
		n.LastHeartbeat = &at
		n.Active = true
		return nil
	})
}

func (b *BoltDB) UpdateNodeGeo(ctx context.Context, id, ip string, geo *model.GeoInfo, maxHistory int) error {
	return b.updateNode(id, func(n *model.ResolverNode) error {
		if n.IPAddress != "" && n.IPAddress != ip {
			n.GeoHistory = model.TrimHistory(append(n.GeoHistory, n.HistoryEntry(time.Now())), maxHistory)
		}
		n.IPAddress = ip
		n.Geo = geo
		return nil
	})
}

func (b *BoltDB) SetNodeActive(ctx context.Context, id string, active, expected bool) (bool, error) {
	changed := false
	err := b.Bolt.Update(func(tx *bbolt.Tx) error {
		n, err := getNode(tx, id)
		if err != nil || n == nil || n.Active != expected {
			return err
		}
		n.Active = active
		changed = true
		return putNode(tx, n)
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

func (b *BoltDB) DeleteNode(ctx context.Context, id string) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(nodesBucket).Delete([]byte(id))
	})
}

func getDomain(tx *bbolt.Tx, id string) (*model.RoutingDomain, error) {
	data := tx.Bucket(domainsBucket).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var d model.RoutingDomain
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func putDomain(tx *bbolt.Tx, d *model.RoutingDomain) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return tx.Bucket(domainsBucket).Put([]byte(d.ID), data)
}

func (b *BoltDB) InsertDomain(ctx context.Context, d *model.RoutingDomain) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(domainsBucket).Get([]byte(d.ID)) != nil {
			return fmt.Errorf("domain %s exists: %w", d.ID, model.ErrConflict)
		}
		dup := false
		err := tx.Bucket(domainsBucket).ForEach(func(_, v []byte) error {
			var other model.RoutingDomain
			if err := json.Unmarshal(v, &other); err != nil {
				return err
			}
			if strings.EqualFold(other.Name, d.Name) {
				dup = true
			}
			return nil
		})
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("domain name %s taken: %w", d.Name, model.ErrConflict)
		}
		now := time.Now()
		if d.CreatedAt.IsZero() {
			d.CreatedAt = now
		}
		d.UpdatedAt = now
		d.Version = 0
		return putDomain(tx, d)
	})
}

func (b *BoltDB) GetDomain(ctx context.Context, id string) (*model.RoutingDomain, error) {
	var d *model.RoutingDomain
	err := b.Bolt.View(func(tx *bbolt.Tx) error {
		var err error
		d, err = getDomain(tx, id)
		return err
	})
	return d, err
}

func (b *BoltDB) ListDomains(ctx context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error) {
	return b.listDomains(func(d *model.RoutingDomain) bool {
		return d.TenantID == tenantID && (!activeOnly || d.Active)
	})
}

func (b *BoltDB) ListAllDomains(ctx context.Context, activeOnly bool) ([]model.RoutingDomain, error) {
	return b.listDomains(func(d *model.RoutingDomain) bool {
		return !activeOnly || d.Active
	})
}

func (b *BoltDB) listDomains(keep func(*model.RoutingDomain) bool) ([]model.RoutingDomain, error) {
	var domains []model.RoutingDomain
	err := b.Bolt.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(domainsBucket).ForEach(func(_, v []byte) error {
			var d model.RoutingDomain
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			if keep(&d) {
				domains = append(domains, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(domains, func(i, j int) bool {
		if !domains[i].CreatedAt.Equal(domains[j].CreatedAt) {
			return domains[i].CreatedAt.Before(domains[j].CreatedAt)
		}
		return domains[i].ID < domains[j].ID
	})
	return domains, nil
}

func (b *BoltDB) SaveDomain(ctx context.Context, d *model.RoutingDomain) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		cur, err := getDomain(tx, d.ID)
		if err != nil {
			return err
		}
		if cur == nil {
			return fmt.Errorf("domain %s: %w", d.ID, model.ErrNotFound)
		}
		if cur.Version != d.Version {
			return fmt.Errorf("domain %s version %d: %w", d.ID, d.Version, model.ErrConflict)
		}
		next := *d
		next.TenantID = cur.TenantID
		next.CreatedAt = cur.CreatedAt
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now()
		if err := putDomain(tx, &next); err != nil {
			return err
		}
		d.Version = next.Version
		d.UpdatedAt = next.UpdatedAt
		return nil
	})
}

func (b *BoltDB) DeleteDomain(ctx context.Context, id string) error {
	return b.Bolt.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(domainsBucket).Delete([]byte(id))
	})
}
