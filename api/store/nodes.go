package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"edgeroute/api/model"
)

const nodeColumns = `id, name, tenant_id, node_key, connection_token, connected, active,
	last_heartbeat, inactivity_threshold, polling_interval, ip_address, geo, created_at, connected_at`

func (db *DB) InsertNode(ctx context.Context, n *model.ResolverNode) error {
	geo, err := marshalGeo(n.Geo)
	if err != nil {
		return err
	}
	var token *string
	if n.ConnectionToken != "" {
		token = &n.ConnectionToken
	}
	_, err = db.Pool.Exec(ctx,
		`INSERT INTO resolver_nodes (id, name, tenant_id, node_key, connection_token, connected, active,
			last_heartbeat, inactivity_threshold, polling_interval, ip_address, geo, created_at, connected_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		n.ID, n.Name, n.TenantID, n.Key, token, n.Connected, n.Active,
		n.LastHeartbeat, n.InactivityThresholdSeconds, n.PollingIntervalSeconds, n.IPAddress, geo, n.CreatedAt, n.ConnectedAt,
	)
	return err
}

// GetNode returns the node with its geolocation history, or nil when absent.
func (db *DB) GetNode(ctx context.Context, id string) (*model.ResolverNode, error) {
	n, err := scanNode(db.Pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM resolver_nodes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if n.GeoHistory, err = db.geoHistory(ctx, id); err != nil {
		return nil, err
	}
	return n, nil
}

func (db *DB) GetNodeByToken(ctx context.Context, token string) (*model.ResolverNode, error) {
	n, err := scanNode(db.Pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM resolver_nodes WHERE connection_token = $1`, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// ListNodes returns every node in creation order.
func (db *DB) ListNodes(ctx context.Context) ([]model.ResolverNode, error) {
	return db.queryNodes(ctx, `SELECT `+nodeColumns+` FROM resolver_nodes ORDER BY created_at, id`)
}

// ListActiveNodesWithIP returns the roster the selector may choose from.
func (db *DB) ListActiveNodesWithIP(ctx context.Context) ([]model.ResolverNode, error) {
	return db.queryNodes(ctx, `SELECT `+nodeColumns+` FROM resolver_nodes
		WHERE active AND ip_address <> '' ORDER BY created_at, id`)
}

func (db *DB) queryNodes(ctx context.Context, sql string, args ...interface{}) ([]model.ResolverNode, error) {
	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []model.ResolverNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

// MarkConnected consumes the node's connection token. It returns
// model.ErrConflict when the node was already connected.
func (db *DB) MarkConnected(ctx context.Context, id string, at time.Time) error {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE resolver_nodes
		 SET connected = TRUE, active = TRUE, connection_token = NULL, connected_at = $2, last_heartbeat = $2
		 WHERE id = $1 AND NOT connected`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("node %s already connected: %w", id, model.ErrConflict)
	}
	return nil
}

func (db *DB) RecordHeartbeat(ctx context.Context, id string, at time.Time) error {
	_, err := db.Pool.Exec(ctx,
		`UPDATE resolver_nodes SET last_heartbeat = $2, active = TRUE WHERE id = $1`,
		id, at,
	)
	return err
}

// UpdateNodeGeo stores a new address and location. When the address changes
// the previous one is pushed to the history, which is trimmed to maxHistory.
func (db *DB) UpdateNodeGeo(ctx context.Context, id, ip string, geo *model.GeoInfo, maxHistory int) error {
	if maxHistory <= 0 {
		maxHistory = model.MaxGeoHistory
	}
	newGeo, err := marshalGeo(geo)
	if err != nil {
		return err
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var prev model.ResolverNode
	var prevGeo []byte
	err = tx.QueryRow(ctx,
		`SELECT ip_address, geo FROM resolver_nodes WHERE id = $1 FOR UPDATE`, id,
	).Scan(&prev.IPAddress, &prevGeo)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("node %s: %w", id, model.ErrNotFound)
		}
		return err
	}
	if prev.Geo, err = unmarshalGeo(prevGeo); err != nil {
		return err
	}

	if prev.IPAddress != "" && prev.IPAddress != ip {
		h := prev.HistoryEntry(time.Now())
		if _, err := tx.Exec(ctx,
			`INSERT INTO node_geo_history (node_id, ip, country_code, country, city, changed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			id, h.IP, h.CountryCode, h.Country, h.City, h.ChangedAt,
		); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM node_geo_history WHERE node_id = $1 AND id NOT IN (
				SELECT id FROM node_geo_history WHERE node_id = $1 ORDER BY id DESC LIMIT $2)`,
			id, maxHistory,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE resolver_nodes SET ip_address = $2, geo = $3 WHERE id = $1`,
		id, ip, newGeo,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetNodeActive writes active only if the stored flag still equals expected.
func (db *DB) SetNodeActive(ctx context.Context, id string, active, expected bool) (bool, error) {
	tag, err := db.Pool.Exec(ctx,
		`UPDATE resolver_nodes SET active = $2 WHERE id = $1 AND active = $3`,
		id, active, expected,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (db *DB) DeleteNode(ctx context.Context, id string) error {
	_, err := db.Pool.Exec(ctx, `DELETE FROM resolver_nodes WHERE id = $1`, id)
	return err
}

func (db *DB) geoHistory(ctx context.Context, id string) ([]model.GeoHistoryEntry, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT ip, country_code, country, city, changed_at
		 FROM node_geo_history WHERE node_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []model.GeoHistoryEntry
	for rows.Next() {
		var h model.GeoHistoryEntry
		if err := rows.Scan(&h.IP, &h.CountryCode, &h.Country, &h.City, &h.ChangedAt); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(row rowScanner) (*model.ResolverNode, error) {
	var n model.ResolverNode
	var token *string
	var geo []byte
	if err := row.Scan(&n.ID, &n.Name, &n.TenantID, &n.Key, &token, &n.Connected, &n.Active,
		&n.LastHeartbeat, &n.InactivityThresholdSeconds, &n.PollingIntervalSeconds, &n.IPAddress, &geo,
		&n.CreatedAt, &n.ConnectedAt); err != nil {
		return nil, err
	}
	if token != nil {
		n.ConnectionToken = *token
	}
	var err error
	if n.Geo, err = unmarshalGeo(geo); err != nil {
		return nil, fmt.Errorf("node %s geo: %w", n.ID, err)
	}
	return &n, nil
}

func marshalGeo(g *model.GeoInfo) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return json.Marshal(g)
}

func unmarshalGeo(data []byte) (*model.GeoInfo, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var g model.GeoInfo
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}
