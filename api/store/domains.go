package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"edgeroute/api/model"
)

const domainColumns = `id, name, tenant_id, active, locations, version, created_at, updated_at`

func (db *DB) InsertDomain(ctx context.Context, d *model.RoutingDomain) error {
	locs, err := marshalLocations(d.Locations)
	if err != nil {
		return err
	}
	now := time.Now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 0
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO routing_domains (id, name, tenant_id, active, locations, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		d.ID, d.Name, d.TenantID, d.Active, locs, d.CreatedAt, d.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("domain %s: %w", d.Name, model.ErrConflict)
	}
	return err
}

func (db *DB) GetDomain(ctx context.Context, id string) (*model.RoutingDomain, error) {
	d, err := scanDomain(db.Pool.QueryRow(ctx,
		`SELECT `+domainColumns+` FROM routing_domains WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

// ListDomains returns the domains owned by tenantID. An empty tenantID only
// matches domains without a tenant.
func (db *DB) ListDomains(ctx context.Context, tenantID string, activeOnly bool) ([]model.RoutingDomain, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+domainColumns+` FROM routing_domains
		 WHERE tenant_id = $1 AND (NOT $2::boolean OR active)
		 ORDER BY created_at, id`,
		tenantID, activeOnly,
	)
	if err != nil {
		return nil, err
	}
	return collectDomains(rows)
}

// ListAllDomains returns the domains of every tenant.
func (db *DB) ListAllDomains(ctx context.Context, activeOnly bool) ([]model.RoutingDomain, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+domainColumns+` FROM routing_domains
		 WHERE NOT $1::boolean OR active
		 ORDER BY created_at, id`,
		activeOnly,
	)
	if err != nil {
		return nil, err
	}
	return collectDomains(rows)
}

func collectDomains(rows pgx.Rows) ([]model.RoutingDomain, error) {
	defer rows.Close()

	var domains []model.RoutingDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

// SaveDomain writes d if the stored version still equals d.Version, then
// bumps d.Version. A stale version yields model.ErrConflict.
func (db *DB) SaveDomain(ctx context.Context, d *model.RoutingDomain) error {
	locs, err := marshalLocations(d.Locations)
	if err != nil {
		return err
	}
	var version int64
	var updated time.Time
	err = db.Pool.QueryRow(ctx,
		`UPDATE routing_domains
		 SET name = $2, active = $3, locations = $4, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $5
		 RETURNING version, updated_at`,
		d.ID, d.Name, d.Active, locs, d.Version,
	).Scan(&version, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := db.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM routing_domains WHERE id = $1)`, d.ID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("domain %s: %w", d.ID, model.ErrNotFound)
		}
		return fmt.Errorf("domain %s version %d: %w", d.ID, d.Version, model.ErrConflict)
	}
	if err != nil {
		return err
	}
	d.Version = version
	d.UpdatedAt = updated
	return nil
}

func (db *DB) DeleteDomain(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM routing_domains WHERE id = $1`, id)
	return err
}

func scanDomain(row rowScanner) (*model.RoutingDomain, error) {
	var d model.RoutingDomain
	var locs []byte
	if err := row.Scan(&d.ID, &d.Name, &d.TenantID, &d.Active, &locs, &d.Version, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if len(locs) > 0 {
		if err := json.Unmarshal(locs, &d.Locations); err != nil {
			return nil, fmt.Errorf("domain %s locations: %w", d.ID, err)
		}
	}
	return &d, nil
}

func marshalLocations(locs []model.LocationRecord) ([]byte, error) {
	if locs == nil {
		locs = []model.LocationRecord{}
	}
	return json.Marshal(locs)
}
