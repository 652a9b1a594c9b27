// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"entgo.io/ent/dialect"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/truthstore/pkg/storage/sqldriver"
)

// migrations creates the schema. Every statement is idempotent.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS entities (
		entity_key  TEXT PRIMARY KEY,
		kind        TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		owner_scope TEXT NOT NULL,
		source_id   TEXT NOT NULL DEFAULT '',
		target_id   TEXT NOT NULL DEFAULT '',
		merged_into TEXT NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_owner ON entities(owner_scope, entity_type)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_source ON entities(source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entities_target ON entities(target_id)`,

	`CREATE TABLE IF NOT EXISTS observations (
		id                TEXT PRIMARY KEY,
		entity_key        TEXT NOT NULL,
		entity_type       TEXT NOT NULL,
		owner_scope       TEXT NOT NULL,
		schema_version    TEXT NOT NULL DEFAULT '',
		fields            TEXT NOT NULL,
		source_priority   INTEGER NOT NULL,
		specificity_score REAL NOT NULL,
		observed_at       INTEGER NOT NULL,
		idempotency_key   TEXT NOT NULL DEFAULT '',
		source_id         TEXT NOT NULL DEFAULT '',
		interpretation_id TEXT NOT NULL DEFAULT '',
		reason            TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_key ON observations(owner_scope, entity_key)`,
	`CREATE INDEX IF NOT EXISTS idx_observations_idempotency ON observations(owner_scope, entity_key, idempotency_key)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		entity_key          TEXT PRIMARY KEY,
		owner_scope         TEXT NOT NULL,
		entity_type         TEXT NOT NULL,
		schema_version      TEXT NOT NULL DEFAULT '',
		fields              TEXT NOT NULL,
		provenance          TEXT NOT NULL,
		observation_count   INTEGER NOT NULL,
		last_observation_at INTEGER NOT NULL,
		computed_at         INTEGER NOT NULL,
		deleted             BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_owner ON snapshots(owner_scope, entity_type)`,

	`CREATE TABLE IF NOT EXISTS raw_fragments (
		identity        TEXT PRIMARY KEY,
		id              TEXT NOT NULL,
		owner_scope     TEXT NOT NULL,
		entity_key      TEXT NOT NULL,
		field_name      TEXT NOT NULL,
		value           TEXT NOT NULL,
		type_envelope   TEXT NOT NULL,
		reason          TEXT NOT NULL,
		observation_id  TEXT NOT NULL DEFAULT '',
		frequency_count INTEGER NOT NULL,
		first_seen      INTEGER NOT NULL,
		last_seen       INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_fragments_key ON raw_fragments(owner_scope, entity_key)`,

	`CREATE TABLE IF NOT EXISTS merge_records (
		id                     TEXT PRIMARY KEY,
		owner_scope            TEXT NOT NULL,
		from_key               TEXT NOT NULL,
		to_key                 TEXT NOT NULL,
		reason                 TEXT NOT NULL DEFAULT '',
		actor                  TEXT NOT NULL DEFAULT '',
		observations_rewritten INTEGER NOT NULL,
		created_at             INTEGER NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_merge_records_from ON merge_records(owner_scope, from_key)`,

	`CREATE TABLE IF NOT EXISTS schema_versions (
		schema_type TEXT NOT NULL,
		owner_scope TEXT NOT NULL,
		version     TEXT NOT NULL,
		definition  TEXT NOT NULL,
		created_at  INTEGER NOT NULL,
		PRIMARY KEY (schema_type, owner_scope, version)
	)`,

	`CREATE TABLE IF NOT EXISTS schema_activations (
		schema_type  TEXT NOT NULL,
		owner_scope  TEXT NOT NULL,
		version      TEXT NOT NULL,
		activated_at INTEGER NOT NULL,
		PRIMARY KEY (schema_type, owner_scope)
	)`,
}

// Driver implements storage.Driver using SQLite.
type Driver struct {
	*sqldriver.Driver
}

// NewDriver creates a new SQLite-backed driver.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewDriver(ctx context.Context, dbPath string) (*Driver, error) {
	// Open the database using the github.com/mattn/go-sqlite3 driver (registered as "sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite has a single writer, and every ":memory:" connection is its own
	// database, so the pool is pinned to one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	drv, err := sqldriver.New(ctx, db, dialect.SQLite, migrations)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Driver{Driver: drv}, nil
}
