package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 8
	}
	cfg.MaxConns = maxConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// schema creates every collection the service reads or writes. Principals,
// sites and the document source tables are owned by other parts of the
// product; they are created here so a fresh database can run the service.
const schema = `
CREATE TABLE IF NOT EXISTS principals (
	id TEXT PRIMARY KEY,
	role TEXT NOT NULL,
	organization_id TEXT,
	is_restricted BOOLEAN NOT NULL DEFAULT FALSE,
	restricted_org_id TEXT
);

CREATE TABLE IF NOT EXISTS sites (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS site_assignments (
	principal_id TEXT NOT NULL,
	site_id TEXT NOT NULL,
	org_id TEXT NOT NULL,
	PRIMARY KEY (principal_id, site_id)
);

CREATE TABLE IF NOT EXISTS document_requirements (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_kinds TEXT[] NOT NULL DEFAULT '{}',
	max_size_bytes BIGINT NOT NULL DEFAULT 0,
	sort_order INT NOT NULL DEFAULT 0,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_requirements_active_code ON document_requirements(code) WHERE active;

CREATE TABLE IF NOT EXISTS requirement_roles (
	requirement_id TEXT NOT NULL REFERENCES document_requirements(id),
	role TEXT NOT NULL,
	is_required BOOLEAN NOT NULL,
	PRIMARY KEY (requirement_id, role)
);

CREATE TABLE IF NOT EXISTS requirement_site_overrides (
	requirement_id TEXT NOT NULL REFERENCES document_requirements(id),
	site_id TEXT NOT NULL,
	is_required BOOLEAN NOT NULL,
	due_days INT,
	notes TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (requirement_id, site_id)
);

CREATE TABLE IF NOT EXISTS document_submissions (
	id TEXT PRIMARY KEY,
	principal_id TEXT NOT NULL,
	requirement_id TEXT NOT NULL REFERENCES document_requirements(id),
	document_ref TEXT NOT NULL DEFAULT '',
	file_ref TEXT NOT NULL DEFAULT '',
	file_name TEXT NOT NULL DEFAULT '',
	file_size BIGINT NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	page_count INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	submitted_at TIMESTAMPTZ,
	approved_at TIMESTAMPTZ,
	rejected_at TIMESTAMPTZ,
	rejection_reason TEXT NOT NULL DEFAULT '',
	reviewed_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_submissions_current ON document_submissions(principal_id, requirement_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	site_id TEXT,
	org_id TEXT NOT NULL,
	category TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	file_size BIGINT NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL DEFAULT '',
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_scope ON documents(org_id, site_id, created_at DESC);

CREATE TABLE IF NOT EXISTS legacy_documents (
	id TEXT PRIMARY KEY,
	site_id TEXT,
	org_id TEXT NOT NULL,
	doc_kind TEXT NOT NULL,
	title TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	file_path TEXT NOT NULL DEFAULT '',
	file_bytes BIGINT NOT NULL DEFAULT 0,
	uploader_name TEXT NOT NULL DEFAULT '',
	registered_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS site_blueprints (
	id TEXT PRIMARY KEY,
	site_id TEXT,
	org_id TEXT NOT NULL,
	title TEXT NOT NULL,
	drawing_url TEXT NOT NULL,
	is_primary BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS report_parents (
	id TEXT PRIMARY KEY,
	site_id TEXT,
	org_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS report_attachments (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL REFERENCES report_parents(id),
	category TEXT NOT NULL,
	ordinal INT NOT NULL,
	file_path TEXT NOT NULL,
	file_name TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	mime_type TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	uploaded_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attachments_order ON report_attachments(parent_id, category, ordinal);`

// EnsureSchema creates missing tables. Having the migration in code keeps
// local stacks self-contained.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
