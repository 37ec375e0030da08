package aggregation

import (
	"context"
	"sort"
	"time"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	skipNoPrefix   = "supply prefix is not configured"
	skipNoSupplies = "no eligible supplies"
	skipNoOrders   = "no orders in selected supplies"
)

type shopRun struct {
	engine *Engine
	shop   *models.Shop
	mode   models.AggregationMode
	client marketplace.Client
	s      Settings
	now    time.Time
	log    *zap.Logger

	diagnostics []string
}

type shopOutcome struct {
	result       models.ShopResult
	supplies     []models.SupplySummary
	rows         []models.CombinedRow
	missingCards int
	missingFacts int
}

func (r *shopRun) diag(msg string) {
	r.diagnostics = append(r.diagnostics, msg)
	r.log.Warn("aggregation diagnostic", zap.String("detail", msg))
}

func (r *shopRun) run(ctx context.Context) shopOutcome {
	out, err := r.collect(ctx)
	out.result.ShopID = r.shop.ID
	out.result.ShopName = r.shop.Name
	out.result.Diagnostics = r.diagnostics
	if err != nil {
		r.log.Error("shop aggregation failed", zap.Error(err))
		out.result.Status = models.ShopStatusFailed
		out.result.Error = err.Error()
		out.supplies, out.rows = nil, nil
		out.missingCards, out.missingFacts = 0, 0
		return out
	}
	if out.result.Status == models.ShopStatusSkipped {
		r.log.Info("shop skipped", zap.String("reason", out.result.SkipReason))
	}
	return out
}

func (r *shopRun) collect(ctx context.Context) (shopOutcome, error) {
	var out shopOutcome
	skip := func(reason string) (shopOutcome, error) {
		out.result.Status = models.ShopStatusSkipped
		out.result.SkipReason = reason
		return out, nil
	}

	// пустой префикс подходил бы под любую поставку
	if r.shop.SupplyPrefix == "" {
		return skip(skipNoPrefix)
	}

	candidates, err := r.discoverSupplies(ctx)
	if err != nil {
		return out, err
	}
	selected := selectSupplies(candidates, r.mode, r.s)
	if len(selected) == 0 {
		return skip(skipNoSupplies)
	}

	perSupply, err := r.resolveOrderIDs(ctx, selected)
	if err != nil {
		return out, err
	}
	if r.mode == models.AggregationModeWaiting {
		if perSupply, err = r.filterWaiting(ctx, perSupply); err != nil {
			return out, err
		}
	}

	wanted := map[int64]struct{}{}
	var ids []int64
	for _, so := range perSupply {
		for _, id := range so.orderIDs {
			if _, ok := wanted[id]; !ok {
				wanted[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return skip(skipNoOrders)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	facts, err := r.collectOrderFacts(ctx, wanted)
	if err != nil {
		return out, err
	}
	stickers, err := r.collectStickers(ctx, ids)
	if err != nil {
		return out, err
	}
	cards, err := r.loadCards(ctx, facts)
	if err != nil {
		return out, err
	}

	for _, so := range perSupply {
		if len(so.orderIDs) == 0 {
			continue
		}
		out.supplies = append(out.supplies, models.SupplySummary{
			ShopID: r.shop.ID, ShopName: r.shop.Name,
			SupplyID: so.supply.ID, SupplyName: so.supply.Name,
			RowCount: len(so.orderIDs),
		})
		out.result.SupplyIDs = append(out.result.SupplyIDs, so.supply.ID)

		for _, id := range so.orderIDs {
			row := models.CombinedRow{
				ShopID: r.shop.ID, ShopName: r.shop.Name,
				SupplyID: so.supply.ID, SupplyName: so.supply.Name,
				OrderID: id,
				Sticker: stickers[id],
			}
			fact, ok := facts[id]
			if !ok {
				out.missingFacts++
			}
			row.NmID, row.OrderCreatedAt = fact.NmID, fact.CreatedAt
			if row.NmID != nil {
				if c, ok := cards[*row.NmID]; ok {
					row.Brand, row.Title, row.ImageURL, row.AgeGroup = c.Brand, c.Title, c.ImageURL, c.AgeGroup
				} else {
					out.missingCards++
				}
			}
			out.rows = append(out.rows, row)
		}
	}

	out.result.Status = models.ShopStatusSuccess
	out.result.OrderCount = len(out.rows)
	return out, nil
}

func (r *shopRun) loadCards(ctx context.Context, facts map[int64]models.OrderFact) (map[int64]*models.CatalogCard, error) {
	seen := map[int64]struct{}{}
	var nmIDs []int64
	for _, f := range facts {
		if f.NmID == nil {
			continue
		}
		if _, ok := seen[*f.NmID]; !ok {
			seen[*f.NmID] = struct{}{}
			nmIDs = append(nmIDs, *f.NmID)
		}
	}
	out := make(map[int64]*models.CatalogCard, len(nmIDs))
	if len(nmIDs) == 0 {
		return out, nil
	}
	sort.Slice(nmIDs, func(i, j int) bool { return nmIDs[i] < nmIDs[j] })

	cards, err := r.engine.cards.GetCardsByIDs(ctx, r.shop.ID, nmIDs)
	if err != nil {
		return nil, errors.Wrap(err, "catalog cards")
	}
	for _, c := range cards {
		out[c.NmID] = c
	}
	return out, nil
}
