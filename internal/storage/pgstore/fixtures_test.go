package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

// Магазины и карточки заводят админка и синхронизация каталога, здесь только сиды.

func seedShop(ctx context.Context, t *testing.T, s *Storage, sh *models.Shop) int64 {
	t.Helper()
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRow(ctx, `
INSERT INTO shops (
  tenant_id, name, token, sandbox_token, use_sandbox, is_active, supply_prefix, token_updated_at, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
RETURNING id
`, sh.TenantID, sh.Name, sh.Token, sh.SandboxToken, sh.UseSandbox, sh.IsActive, sh.SupplyPrefix, sh.TokenUpdatedAt, now).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedCards(ctx context.Context, t *testing.T, s *Storage, cards ...*models.CatalogCard) {
	t.Helper()
	batch := &pgx.Batch{}
	for _, c := range cards {
		batch.Queue(`
INSERT INTO catalog_cards (shop_id, nm_id, brand, title, image_url, age_group, synced_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (shop_id, nm_id) DO UPDATE SET
  brand = EXCLUDED.brand,
  title = EXCLUDED.title,
  image_url = EXCLUDED.image_url,
  age_group = EXCLUDED.age_group,
  synced_at = EXCLUDED.synced_at
`, c.ShopID, c.NmID, c.Brand, c.Title, c.ImageURL, c.AgeGroup)
	}
	require.NoError(t, s.db.SendBatch(ctx, batch).Close())
}
