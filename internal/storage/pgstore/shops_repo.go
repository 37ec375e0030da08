package pgstore

import (
	"context"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

// ListActiveShops: активные магазины тенанта в порядке id.
func (s *Storage) ListActiveShops(ctx context.Context, tenantID string) ([]*models.Shop, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, tenant_id, name,
  token, sandbox_token, use_sandbox,
  is_active, supply_prefix, token_updated_at,
  created_at, updated_at
FROM shops
WHERE tenant_id = $1 AND is_active
ORDER BY id
`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "select shops")
	}
	defer rows.Close()

	out := make([]*models.Shop, 0)
	for rows.Next() {
		var sh models.Shop
		if err := rows.Scan(
			&sh.ID, &sh.TenantID, &sh.Name,
			&sh.Token, &sh.SandboxToken, &sh.UseSandbox,
			&sh.IsActive, &sh.SupplyPrefix, &sh.TokenUpdatedAt,
			&sh.CreatedAt, &sh.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan shop")
		}
		out = append(out, &sh)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
