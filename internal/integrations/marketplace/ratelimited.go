package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimitedClient ограничивает число запросов одного магазина в минуту.
// Лимит у маркетплейса считается по токену, поэтому ключ: id магазина.
type RateLimitedClient struct {
	next    Client
	rl      RateLimiter
	shopID  int64
	limit   int64
	wait    time.Duration
	maxWait time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

func NewRateLimitedClient(next Client, rl RateLimiter, shopID int64, perMinute int64, logger *zap.Logger) *RateLimitedClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitedClient{
		next:    next,
		rl:      rl,
		shopID:  shopID,
		limit:   perMinute,
		wait:    500 * time.Millisecond,
		maxWait: 90 * time.Second,
		now:     time.Now,
		logger:  logger,
	}
}

func (c *RateLimitedClient) acquire(ctx context.Context) error {
	if c.rl == nil || c.limit <= 0 {
		return nil
	}
	deadline := c.now().Add(c.maxWait)
	key := fmt.Sprintf("rl:marketplace:%d", c.shopID)
	for {
		allowed, retryAfter, err := c.rl.Allow(ctx, key, c.limit, time.Minute)
		if err != nil {
			// лимитер недоступен, выгрузку не блокируем
			c.logger.Warn("marketplace rate limiter unavailable", zap.Int64("shop_id", c.shopID), zap.Error(err))
			return nil
		}
		if allowed {
			return nil
		}
		left := deadline.Sub(c.now())
		if left <= 0 {
			c.logger.Warn("marketplace rate limit wait exhausted", zap.Int64("shop_id", c.shopID))
			return nil
		}
		sleep := max(retryAfter, c.wait)
		sleep = min(sleep, left)
		c.logger.Debug("marketplace rate limited", zap.Int64("shop_id", c.shopID), zap.Duration("retry_after", sleep))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (c *RateLimitedClient) ListSupplies(ctx context.Context, limit int, next int64) (SupplyPage, error) {
	if err := c.acquire(ctx); err != nil {
		return SupplyPage{}, err
	}
	return c.next.ListSupplies(ctx, limit, next)
}

func (c *RateLimitedClient) GetSupplyOrderIDs(ctx context.Context, supplyID string) ([]json.RawMessage, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GetSupplyOrderIDs(ctx, supplyID)
}

func (c *RateLimitedClient) ListOrders(ctx context.Context, limit int, next int64, dateFrom time.Time) (OrderPage, error) {
	if err := c.acquire(ctx); err != nil {
		return OrderPage{}, err
	}
	return c.next.ListOrders(ctx, limit, next, dateFrom)
}

func (c *RateLimitedClient) GetOrderStatuses(ctx context.Context, orderIDs []int64) ([]OrderStatus, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GetOrderStatuses(ctx, orderIDs)
}

func (c *RateLimitedClient) GetStickers(ctx context.Context, orderIDs []int64) ([]Sticker, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GetStickers(ctx, orderIDs)
}

// RateLimitedFactory оборачивает клиентов другой фабрики лимитером.
type RateLimitedFactory struct {
	next      Factory
	rl        RateLimiter
	perMinute int64
	logger    *zap.Logger
}

func NewRateLimitedFactory(next Factory, rl RateLimiter, perMinute int64, logger *zap.Logger) *RateLimitedFactory {
	return &RateLimitedFactory{next: next, rl: rl, perMinute: perMinute, logger: logger}
}

func (f *RateLimitedFactory) ForShop(shopID int64, token string, sandbox bool) Client {
	return NewRateLimitedClient(f.next.ForShop(shopID, token, sandbox), f.rl, shopID, f.perMinute, f.logger)
}
