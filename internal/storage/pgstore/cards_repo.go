package pgstore

import (
	"context"

	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

func (s *Storage) GetCardsByIDs(ctx context.Context, shopID int64, nmIDs []int64) ([]*models.CatalogCard, error) {
	if len(nmIDs) == 0 {
		return []*models.CatalogCard{}, nil
	}

	rows, err := s.db.Query(ctx, `
SELECT shop_id, nm_id, brand, title, image_url, age_group
FROM catalog_cards
WHERE shop_id = $1 AND nm_id = ANY($2)
ORDER BY nm_id
`, shopID, nmIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select cards")
	}
	defer rows.Close()

	out := make([]*models.CatalogCard, 0, len(nmIDs))
	for rows.Next() {
		var c models.CatalogCard
		if err := rows.Scan(&c.ShopID, &c.NmID, &c.Brand, &c.Title, &c.ImageURL, &c.AgeGroup); err != nil {
			return nil, errors.Wrap(err, "scan card")
		}
		out = append(out, &c)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
