package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
)

// Client: детерминированный маркетплейс в памяти. Курсор, индекс в срезе.
type Client struct {
	mu sync.Mutex

	Supplies     []marketplace.Supply
	SupplyOrders map[string][]json.RawMessage
	Orders       []marketplace.Order
	Statuses     map[int64]string
	Stickers     map[int64]marketplace.Sticker

	// Ошибки по имени метода: "ListSupplies", "GetStickers", ...
	Errors map[string]error

	Calls map[string]int
	// Батчи, с которыми вызывались GetOrderStatuses / GetStickers.
	StatusBatches  [][]int64
	StickerBatches [][]int64
}

func New() *Client {
	return &Client{
		SupplyOrders: map[string][]json.RawMessage{},
		Statuses:     map[int64]string{},
		Stickers:     map[int64]marketplace.Sticker{},
		Errors:       map[string]error{},
		Calls:        map[string]int{},
	}
}

func (c *Client) call(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls[name]++
	return c.Errors[name]
}

func (c *Client) ListSupplies(ctx context.Context, limit int, next int64) (marketplace.SupplyPage, error) {
	if err := c.call("ListSupplies"); err != nil {
		return marketplace.SupplyPage{}, err
	}
	from, to := window(len(c.Supplies), limit, next)
	return marketplace.SupplyPage{Items: append([]marketplace.Supply(nil), c.Supplies[from:to]...), Next: int64(to)}, nil
}

func (c *Client) GetSupplyOrderIDs(ctx context.Context, supplyID string) ([]json.RawMessage, error) {
	if err := c.call("GetSupplyOrderIDs"); err != nil {
		return nil, err
	}
	return append([]json.RawMessage(nil), c.SupplyOrders[supplyID]...), nil
}

func (c *Client) ListOrders(ctx context.Context, limit int, next int64, dateFrom time.Time) (marketplace.OrderPage, error) {
	if err := c.call("ListOrders"); err != nil {
		return marketplace.OrderPage{}, err
	}
	from, to := window(len(c.Orders), limit, next)
	return marketplace.OrderPage{Items: append([]marketplace.Order(nil), c.Orders[from:to]...), Next: int64(to)}, nil
}

func (c *Client) GetOrderStatuses(ctx context.Context, orderIDs []int64) ([]marketplace.OrderStatus, error) {
	if err := c.call("GetOrderStatuses"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.StatusBatches = append(c.StatusBatches, append([]int64(nil), orderIDs...))
	c.mu.Unlock()

	out := make([]marketplace.OrderStatus, 0, len(orderIDs))
	for _, id := range orderIDs {
		st, ok := c.Statuses[id]
		if !ok {
			continue
		}
		out = append(out, marketplace.OrderStatus{ID: id, SupplierStatus: "complete", Status: st})
	}
	return out, nil
}

func (c *Client) GetStickers(ctx context.Context, orderIDs []int64) ([]marketplace.Sticker, error) {
	if err := c.call("GetStickers"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.StickerBatches = append(c.StickerBatches, append([]int64(nil), orderIDs...))
	c.mu.Unlock()

	out := make([]marketplace.Sticker, 0, len(orderIDs))
	for _, id := range orderIDs {
		if st, ok := c.Stickers[id]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func window(n, limit int, next int64) (int, int) {
	from := int(next)
	if from < 0 || from > n {
		from = n
	}
	if limit <= 0 {
		limit = n
	}
	to := from + limit
	if to > n {
		to = n
	}
	return from, to
}

// IDs: удобный конструктор сырых id для SupplyOrders.
func IDs(ids ...int64) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, json.RawMessage(strconv.FormatInt(id, 10)))
	}
	return out
}

// NewDemo: демо-магазин с детерминированным набором поставок по shopID.
// Используется, пока не настроен реальный API маркетплейса.
func NewDemo(shopID int64, prefix string) *Client {
	c := New()
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatInt(shopID, 10)))
	seed := int64(h.Sum32() % 1000)

	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := int64(0); i < 3; i++ {
		created := base.Add(time.Duration(i) * 24 * time.Hour)
		closed := created.Add(6 * time.Hour)
		id := fmt.Sprintf("WB-GI-%d%03d", seed, i)
		c.Supplies = append(c.Supplies, marketplace.Supply{
			ID: id, Name: fmt.Sprintf("%s%d", prefix, i), Done: true, CreatedAt: &created, ClosedAt: &closed,
		})
		var ids []int64
		for j := int64(0); j < 3; j++ {
			orderID := shopID*1_000_000 + seed*100 + i*10 + j
			nmID := 100_000 + seed + j
			ca := created
			ids = append(ids, orderID)
			c.Orders = append(c.Orders, marketplace.Order{ID: orderID, NmID: &nmID, CreatedAt: &ca})
			c.Statuses[orderID] = marketplace.OrderStatusWaiting
			c.Stickers[orderID] = marketplace.Sticker{
				OrderID: orderID,
				PartA:   strconv.FormatInt(orderID/10000, 10),
				PartB:   strconv.FormatInt(orderID%10000, 10),
			}
		}
		c.SupplyOrders[id] = IDs(ids...)
	}
	return c
}

type Factory struct {
	Prefix string
}

func (f Factory) ForShop(shopID int64, _ string, _ bool) marketplace.Client {
	return NewDemo(shopID, f.Prefix)
}
