package pgstore

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS shops (
  id BIGSERIAL PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  name TEXT NOT NULL,
  token TEXT NOT NULL DEFAULT '',
  sandbox_token TEXT NOT NULL DEFAULT '',
  use_sandbox BOOLEAN NOT NULL DEFAULT false,
  is_active BOOLEAN NOT NULL DEFAULT true,
  supply_prefix TEXT NOT NULL DEFAULT '',
  token_updated_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_shops_tenant_active ON shops(tenant_id, is_active)`,
		`
CREATE TABLE IF NOT EXISTS catalog_cards (
  shop_id BIGINT NOT NULL REFERENCES shops(id),
  nm_id BIGINT NOT NULL,
  brand TEXT NOT NULL DEFAULT '',
  title TEXT NOT NULL DEFAULT '',
  image_url TEXT NOT NULL DEFAULT '',
  age_group TEXT NOT NULL DEFAULT '',
  synced_at TIMESTAMPTZ NOT NULL,
  PRIMARY KEY (shop_id, nm_id)
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
