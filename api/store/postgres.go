package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// Healthy checks the database connection.
func (db *DB) Healthy(ctx context.Context) error {
	var n int
	return db.Pool.QueryRow(ctx, "SELECT 1").Scan(&n)
}

func Migrate(db *DB) error {
	ctx := context.Background()
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS resolver_nodes (
			id                   TEXT PRIMARY KEY,
			name                 TEXT NOT NULL,
			tenant_id            TEXT NOT NULL DEFAULT '',
			node_key             TEXT NOT NULL,
			connection_token     TEXT,
			connected            BOOLEAN NOT NULL DEFAULT FALSE,
			active               BOOLEAN NOT NULL DEFAULT FALSE,
			last_heartbeat       TIMESTAMPTZ,
			inactivity_threshold INTEGER NOT NULL DEFAULT 300,
			polling_interval     INTEGER NOT NULL DEFAULT 60,
			ip_address           TEXT NOT NULL DEFAULT '',
			geo                  JSONB,
			created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
			connected_at         TIMESTAMPTZ
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_resolver_nodes_token
			ON resolver_nodes(connection_token) WHERE connection_token IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_resolver_nodes_tenant ON resolver_nodes(tenant_id);

		CREATE TABLE IF NOT EXISTS node_geo_history (
			id           BIGSERIAL PRIMARY KEY,
			node_id      TEXT NOT NULL REFERENCES resolver_nodes(id) ON DELETE CASCADE,
			ip           TEXT NOT NULL,
			country_code TEXT NOT NULL DEFAULT '',
			country      TEXT NOT NULL DEFAULT '',
			city         TEXT NOT NULL DEFAULT '',
			changed_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_node_geo_history_node ON node_geo_history(node_id, id DESC);

		CREATE TABLE IF NOT EXISTS routing_domains (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			tenant_id  TEXT NOT NULL DEFAULT '',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			locations  JSONB NOT NULL DEFAULT '[]',
			version    BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_routing_domains_tenant ON routing_domains(tenant_id);

		CREATE TABLE IF NOT EXISTS registration_events (
			id        TEXT PRIMARY KEY,
			saga_id   TEXT NOT NULL,
			node_id   TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT now(),
			source    TEXT NOT NULL DEFAULT '',
			action    TEXT NOT NULL DEFAULT '',
			message   TEXT NOT NULL DEFAULT '',
			metadata  JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_registration_events_saga ON registration_events(saga_id, timestamp);
		CREATE INDEX IF NOT EXISTS idx_registration_events_node ON registration_events(node_id, timestamp DESC);
	`)
	return err
}
