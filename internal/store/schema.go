// Package store provides the PostgreSQL implementations of the importer's
// persistence interfaces: the key-value store backing lock/progress/stats,
// the content store records are written through, the backup snapshot store
// and the error-log store.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaStatements create every table and index the service needs.
// All statements are idempotent so EnsureSchema is safe on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS import_options (
		name       TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS records (
		id           BIGSERIAL PRIMARY KEY,
		content_type TEXT NOT NULL,
		status       TEXT NOT NULL,
		title        TEXT NOT NULL,
		slug         TEXT NOT NULL,
		body         TEXT NOT NULL DEFAULT '',
		excerpt      TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_records_type_title ON records (content_type, title)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_records_type_slug ON records (content_type, slug)`,

	`CREATE TABLE IF NOT EXISTS record_meta (
		record_id BIGINT NOT NULL REFERENCES records (id) ON DELETE CASCADE,
		key       TEXT NOT NULL,
		value     TEXT NOT NULL,
		PRIMARY KEY (record_id, key)
	)`,

	`CREATE TABLE IF NOT EXISTS record_images (
		id         BIGSERIAL PRIMARY KEY,
		record_id  BIGINT NOT NULL REFERENCES records (id) ON DELETE CASCADE,
		file_name  TEXT NOT NULL,
		data       BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS import_backups (
		id          BIGSERIAL PRIMARY KEY,
		session_id  TEXT NOT NULL,
		record_id   BIGINT NOT NULL,
		record_data JSONB NOT NULL,
		meta_data   JSONB NOT NULL DEFAULT '{}',
		source      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_backups_session ON import_backups (session_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_import_backups_created ON import_backups (created_at)`,

	`CREATE TABLE IF NOT EXISTS import_log (
		id         BIGSERIAL PRIMARY KEY,
		level      TEXT NOT NULL,
		message    TEXT NOT NULL,
		context    JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_import_log_created ON import_log (created_at)`,
}

// EnsureSchema creates all tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
