package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied at startup. Statements are idempotent so every process
// can run them unconditionally; there is no separate migration tool in the
// deployment.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		inbound_address    TEXT NOT NULL UNIQUE,
		subdomain          TEXT,
		tier               TEXT NOT NULL,
		billing_status     TEXT NOT NULL,
		monthly_budget_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
		admin_key_hash     TEXT NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS organizations_subdomain_idx
		ON organizations (subdomain) WHERE subdomain IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS projects (
		id                 TEXT NOT NULL,
		org_id             TEXT NOT NULL REFERENCES organizations (id),
		name               TEXT NOT NULL,
		address            TEXT NOT NULL DEFAULT '',
		participants       TEXT[] NOT NULL DEFAULT '{}',
		people             TEXT[] NOT NULL DEFAULT '{}',
		version            BIGINT NOT NULL,
		last_event_at      TIMESTAMPTZ,
		last_event_summary TEXT,
		created_at         TIMESTAMPTZ NOT NULL,
		updated_at         TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (org_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS projects_org_name_idx
		ON projects (org_id, name, updated_at DESC)`,
	`CREATE INDEX IF NOT EXISTS projects_participants_idx
		ON projects USING GIN (participants)`,

	`CREATE TABLE IF NOT EXISTS events (
		id              TEXT PRIMARY KEY,
		org_id          TEXT NOT NULL,
		project_id      TEXT NOT NULL,
		message_id      TEXT NOT NULL,
		kind            TEXT NOT NULL,
		seq             BIGINT NOT NULL,
		sender          TEXT NOT NULL,
		subject         TEXT NOT NULL DEFAULT '',
		summary         TEXT NOT NULL DEFAULT '',
		payload         JSONB,
		degraded_reason TEXT,
		occurred_at     TIMESTAMPTZ NOT NULL,
		UNIQUE (org_id, message_id)
	)`,
	`CREATE INDEX IF NOT EXISTS events_project_seq_idx
		ON events (org_id, project_id, seq DESC)`,
}

// EnsureSchema creates the tables and indexes the stores rely on.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
