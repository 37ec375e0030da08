package aggregation

import (
	"context"
	"sort"
	"strings"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
)

func (r *shopRun) discoverSupplies(ctx context.Context) ([]marketplace.Supply, error) {
	all, err := paginate(ctx, "supplies", r.s.SupplyPageSize, r.s.MaxPages,
		func(ctx context.Context, cursor int64) ([]marketplace.Supply, int64, error) {
			p, err := r.client.ListSupplies(ctx, r.s.SupplyPageSize, cursor)
			return p.Items, p.Next, err
		}, r.diag)
	if err != nil {
		return nil, errors.Wrap(err, "list supplies")
	}
	return eligibleSupplies(all, r.shop.SupplyPrefix), nil
}

// eligibleSupplies: закрытые поставки с префиксом магазина, от новых к старым, без дублей.
func eligibleSupplies(all []marketplace.Supply, prefix string) []marketplace.Supply {
	out := make([]marketplace.Supply, 0, len(all))
	for _, s := range all {
		if s.Done && strings.HasPrefix(s.Name, prefix) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecencyTime().After(out[j].RecencyTime())
	})

	seen := make(map[string]struct{}, len(out))
	uniq := out[:0]
	for _, s := range out {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		uniq = append(uniq, s)
	}
	return uniq
}

// selectSupplies: для latest первые n, для waiting пропускаем самую новую и берём следующие m.
func selectSupplies(candidates []marketplace.Supply, mode models.AggregationMode, s Settings) []marketplace.Supply {
	switch mode {
	case models.AggregationModeWaiting:
		if len(candidates) <= 1 {
			return nil
		}
		return head(candidates[1:], s.WaitingCount)
	default:
		return head(candidates, s.LatestCount)
	}
}

func head(in []marketplace.Supply, n int) []marketplace.Supply {
	if len(in) > n {
		in = in[:n]
	}
	return append([]marketplace.Supply(nil), in...)
}
