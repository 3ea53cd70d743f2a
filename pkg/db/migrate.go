package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent; Migrate may run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS job_applications (
		id                 BIGSERIAL PRIMARY KEY,
		user_id            TEXT        NOT NULL,
		company            TEXT        NOT NULL,
		role               TEXT        NOT NULL,
		normalized_company TEXT        NOT NULL,
		normalized_role    TEXT        NOT NULL,
		location           TEXT        NOT NULL DEFAULT '',
		status             TEXT        NOT NULL,
		stipend            TEXT        NOT NULL DEFAULT '',
		date_applied       DATE        NOT NULL,
		notes              TEXT        NOT NULL DEFAULT '',
		email_id           TEXT        NOT NULL DEFAULT '',
		status_history     JSONB       NOT NULL DEFAULT '[]'::jsonb,
		version            INT         NOT NULL DEFAULT 1,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS job_applications_key_idx
		ON job_applications (user_id, normalized_company, normalized_role)`,
	`CREATE TABLE IF NOT EXISTS processed_emails (
		user_id      TEXT        NOT NULL,
		email_id     TEXT        NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, email_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
		id             BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT        NOT NULL,
		aggregate_id   BIGINT,
		routing_key    TEXT        NOT NULL,
		payload        JSONB       NOT NULL,
		status         TEXT        NOT NULL DEFAULT 'pending',
		retry_count    INT         NOT NULL DEFAULT 0,
		next_retry_at  TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_events_pending_idx
		ON outbox_events (status, next_retry_at, created_at)`,
}

// Migrate creates the tables used by the repositories and the outbox.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
