package aggregation

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

type supplyOrders struct {
	supply   marketplace.Supply
	orderIDs []int64
}

func (r *shopRun) resolveOrderIDs(ctx context.Context, supplies []marketplace.Supply) ([]supplyOrders, error) {
	out := make([]supplyOrders, 0, len(supplies))
	for _, s := range supplies {
		raw, err := r.client.GetSupplyOrderIDs(ctx, s.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "supply %s order ids", s.ID)
		}
		out = append(out, supplyOrders{supply: s, orderIDs: normalizeOrderIDs(raw)})
	}
	return out, nil
}

// normalizeOrderIDs приводит сырые id к неотрицательным целым,
// отбрасывает мусор, убирает дубли и сортирует.
func normalizeOrderIDs(raw []json.RawMessage) []int64 {
	seen := make(map[int64]struct{}, len(raw))
	out := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, ok := parseOrderID(r)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func parseOrderID(raw json.RawMessage) (int64, bool) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 {
		return 0, false
	}
	if v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		v = []byte(strings.TrimSpace(s))
	}
	if id, err := strconv.ParseInt(string(v), 10, 64); err == nil {
		return id, id >= 0
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// filterWaiting оставляет в поставках только заказы в статусе waiting.
func (r *shopRun) filterWaiting(ctx context.Context, in []supplyOrders) ([]supplyOrders, error) {
	union := make([]int64, 0)
	seen := map[int64]struct{}{}
	for _, so := range in {
		for _, id := range so.orderIDs {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				union = append(union, id)
			}
		}
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })

	waiting := make(map[int64]bool, len(union))
	for _, batch := range chunk(union, r.s.StatusBatch) {
		sts, err := r.client.GetOrderStatuses(ctx, batch)
		if err != nil {
			return nil, errors.Wrap(err, "order statuses")
		}
		for _, st := range sts {
			waiting[st.ID] = st.Status == marketplace.OrderStatusWaiting
		}
	}

	out := make([]supplyOrders, 0, len(in))
	for _, so := range in {
		kept := make([]int64, 0, len(so.orderIDs))
		for _, id := range so.orderIDs {
			if waiting[id] {
				kept = append(kept, id)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, supplyOrders{supply: so.supply, orderIDs: kept})
	}
	return out, nil
}

func (r *shopRun) collectOrderFacts(ctx context.Context, wanted map[int64]struct{}) (map[int64]models.OrderFact, error) {
	dateFrom := r.now.Add(-r.s.OrderLookback)
	facts := make(map[int64]models.OrderFact, len(wanted))
	_, err := paginate(ctx, "orders", r.s.OrderPageSize, r.s.MaxPages,
		func(ctx context.Context, cursor int64) ([]marketplace.Order, int64, error) {
			p, err := r.client.ListOrders(ctx, r.s.OrderPageSize, cursor, dateFrom)
			if err != nil {
				return nil, 0, err
			}
			for _, o := range p.Items {
				if _, ok := wanted[o.ID]; ok {
					facts[o.ID] = models.OrderFact{NmID: o.NmID, CreatedAt: o.CreatedAt}
				}
			}
			return p.Items, p.Next, nil
		}, r.diag)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return facts, nil
}

func (r *shopRun) collectStickers(ctx context.Context, ids []int64) (map[int64]models.StickerFact, error) {
	out := make(map[int64]models.StickerFact, len(ids))
	for _, batch := range chunk(ids, r.s.StickerBatch) {
		sts, err := r.client.GetStickers(ctx, batch)
		if err != nil {
			return nil, errors.Wrap(err, "stickers")
		}
		for _, st := range sts {
			out[st.OrderID] = models.StickerFact{PartA: st.PartA, PartB: st.PartB, File: st.File}
		}
	}
	return out, nil
}
