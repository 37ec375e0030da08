package pgqueue

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (q *Queue) initSchema(ctx context.Context) error {
	schema := pgx.Identifier{q.schema}.Sanitize()
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`
CREATE TABLE IF NOT EXISTS ` + q.queueTable + ` (
  name TEXT PRIMARY KEY,
  created_on TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		`
CREATE TABLE IF NOT EXISTS ` + q.jobTable + ` (
  id UUID PRIMARY KEY,
  name TEXT NOT NULL REFERENCES ` + q.queueTable + `(name),
  state TEXT NOT NULL DEFAULT 'created',
  data JSONB NOT NULL,
  output JSONB NULL,
  retry_limit INT NOT NULL DEFAULT 0,
  retry_count INT NOT NULL DEFAULT 0,
  expire_in_seconds INT NOT NULL,
  retention_seconds INT NOT NULL,
  created_on TIMESTAMPTZ NOT NULL DEFAULT now(),
  started_on TIMESTAMPTZ NULL,
  completed_on TIMESTAMPTZ NULL,
  keep_until TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS job_name_state_idx ON ` + q.jobTable + `(name, state, created_on)`,
		`CREATE INDEX IF NOT EXISTS job_tenant_idx ON ` + q.jobTable + `(name, (data->>'tenantId'))`,
	}

	for _, s := range stmts {
		if _, err := q.db.Exec(ctx, s); err != nil {
			return errors.Wrap(err, "init queue schema")
		}
	}
	return nil
}
