package postgres

import (
	"context"
)

// schemaStatements create the tables used by Repository. They are idempotent
// and run in the connection's search_path.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL,
		password_hash TEXT NOT NULL,
		locale VARCHAR(16) NOT NULL DEFAULT 'en',
		api_key VARCHAR(64) NOT NULL DEFAULT '',
		super_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email))`,

	`CREATE TABLE IF NOT EXISTS sites (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		subdomain VARCHAR(255) NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS memberships (
		id UUID PRIMARY KEY,
		site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		account_id UUID NOT NULL REFERENCES accounts(id),
		role VARCHAR(32) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT memberships_site_account_key UNIQUE (site_id, account_id)
	)`,
	`CREATE INDEX IF NOT EXISTS memberships_account_idx ON memberships (account_id)`,

	`CREATE TABLE IF NOT EXISTS content_types (
		id UUID PRIMARY KEY,
		site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		slug VARCHAR(255) NOT NULL,
		fields JSONB NOT NULL DEFAULT '[]'::jsonb,
		order_by VARCHAR(255) NOT NULL DEFAULT '',
		permalink_field VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT content_types_site_slug_key UNIQUE (site_id, slug)
	)`,

	`CREATE TABLE IF NOT EXISTS entries (
		id UUID PRIMARY KEY,
		site_id UUID NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		content_type_id UUID NOT NULL REFERENCES content_types(id) ON DELETE CASCADE,
		permalink VARCHAR(255),
		position INTEGER NOT NULL DEFAULT 0,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS entries_permalink_key
		ON entries (content_type_id, permalink) WHERE permalink IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS entries_position_idx ON entries (content_type_id, position)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return handlePostgresError("migrate", err)
		}
	}
	return nil
}
