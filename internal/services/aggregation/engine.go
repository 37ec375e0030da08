package aggregation

import (
	"context"
	"time"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/BearBump/SellerFlow/internal/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type ShopRepository interface {
	ListActiveShops(ctx context.Context, tenantID string) ([]*models.Shop, error)
}

type CardRepository interface {
	GetCardsByIDs(ctx context.Context, shopID int64, nmIDs []int64) ([]*models.CatalogCard, error)
}

type Renderer interface {
	RenderOrderList(ctx context.Context, meta models.DocumentMeta, supplies []models.SupplySummary, rows []models.CombinedRow) ([]byte, error)
	RenderStickers(ctx context.Context, meta models.DocumentMeta, rows []models.CombinedRow) ([]byte, error)
}

// Engine собирает сводные листы подбора по всем активным магазинам тенанта.
// Магазины обрабатываются последовательно, ошибка одного не прерывает остальные.
type Engine struct {
	shops    ShopRepository
	cards    CardRepository
	clients  marketplace.Factory
	renderer Renderer
	logger   *zap.Logger

	s   Settings
	now func() time.Time
}

func New(shops ShopRepository, cards CardRepository, clients marketplace.Factory, renderer Renderer, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		shops:    shops,
		cards:    cards,
		clients:  clients,
		renderer: renderer,
		logger:   logger,
		s:        DefaultSettings(),
		now:      time.Now,
	}
}

func (e *Engine) WithSettings(s Settings) *Engine {
	e.s = normalizeSettings(s)
	return e
}

func (e *Engine) Aggregate(ctx context.Context, tenantID string, mode models.AggregationMode, lang string) (*models.AggregationResult, error) {
	if !mode.Valid() {
		return nil, errors.Errorf("unknown aggregation mode %q", mode)
	}
	log := e.logger.With(zap.String("tenant_id", tenantID), zap.String("mode", string(mode)))

	res := &models.AggregationResult{
		Mode:      mode,
		TenantID:  tenantID,
		StartedAt: e.now().UTC(),
	}

	shops, err := e.shops.ListActiveShops(ctx, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "list active shops")
	}

	for _, shop := range shops {
		r := &shopRun{
			engine: e,
			shop:   shop,
			mode:   mode,
			client: e.clients.ForShop(shop.ID, shop.APIToken(), shop.UseSandbox),
			s:      e.s,
			now:    res.StartedAt,
			log:    log.With(zap.Int64("shop_id", shop.ID)),
		}
		out := r.run(ctx)

		res.ProcessedShops++
		switch out.result.Status {
		case models.ShopStatusSuccess:
			res.SuccessShops++
		case models.ShopStatusSkipped:
			res.SkippedShops++
		case models.ShopStatusFailed:
			res.FailedShops++
		}
		res.Shops = append(res.Shops, out.result)
		res.Supplies = append(res.Supplies, out.supplies...)
		res.Rows = append(res.Rows, out.rows...)
		res.MissingProductCards += out.missingCards
		res.MissingOrderFacts += out.missingFacts
	}

	sortRows(res.Rows)
	res.TotalOrders = len(res.Rows)
	res.FinishedAt = e.now().UTC()

	// в имени файла и на сводной странице одно и то же локальное время
	local := res.FinishedAt.In(e.s.Location)
	meta := models.DocumentMeta{Mode: mode, Lang: lang, GeneratedAt: local}
	res.OrderList.FileName, res.Stickers.FileName = FileNames(mode, lang, local)

	if res.OrderList.Data, err = e.renderer.RenderOrderList(ctx, meta, res.Supplies, res.Rows); err != nil {
		return nil, errors.Wrap(err, "render order list")
	}
	if res.Stickers.Data, err = e.renderer.RenderStickers(ctx, meta, res.Rows); err != nil {
		return nil, errors.Wrap(err, "render stickers")
	}

	log.Info("aggregation finished",
		zap.Int("processed_shops", res.ProcessedShops),
		zap.Int("success_shops", res.SuccessShops),
		zap.Int("skipped_shops", res.SkippedShops),
		zap.Int("failed_shops", res.FailedShops),
		zap.Int("total_orders", res.TotalOrders),
		zap.Int("missing_product_cards", res.MissingProductCards),
		zap.Int("missing_order_facts", res.MissingOrderFacts),
	)
	return res, nil
}
