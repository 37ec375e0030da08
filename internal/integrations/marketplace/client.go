package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrEmptyResponse: успешный ответ без тела тоже считается ошибкой.
var ErrEmptyResponse = errors.New("marketplace: empty response body")

// HTTPError: ответ API с не-2xx статусом.
type HTTPError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("marketplace %s %s: http %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("marketplace %s %s: http %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// OrderStatusWaiting: заказ ещё ждёт отгрузки.
const OrderStatusWaiting = "waiting"

type Supply struct {
	ID        string
	Name      string
	Done      bool
	CreatedAt *time.Time
	ClosedAt  *time.Time
}

// RecencyTime: closedAt, а если его нет, createdAt.
func (s Supply) RecencyTime() time.Time {
	if s.ClosedAt != nil {
		return *s.ClosedAt
	}
	if s.CreatedAt != nil {
		return *s.CreatedAt
	}
	return time.Time{}
}

type SupplyPage struct {
	Items []Supply
	Next  int64
}

type Order struct {
	ID        int64
	NmID      *int64
	CreatedAt *time.Time
}

type OrderPage struct {
	Items []Order
	Next  int64
}

type OrderStatus struct {
	ID             int64
	SupplierStatus string
	Status         string
}

type Sticker struct {
	OrderID int64
	PartA   string
	PartB   string
	File    *string
}

// Client: возможности API маркетплейса для одного магазина.
// Идентификаторы заказов поставки возвращаются "как есть" (json.Number/string),
// нормализация: ответственность вызывающего.
type Client interface {
	ListSupplies(ctx context.Context, limit int, next int64) (SupplyPage, error)
	GetSupplyOrderIDs(ctx context.Context, supplyID string) ([]json.RawMessage, error)
	ListOrders(ctx context.Context, limit int, next int64, dateFrom time.Time) (OrderPage, error)
	GetOrderStatuses(ctx context.Context, orderIDs []int64) ([]OrderStatus, error)
	GetStickers(ctx context.Context, orderIDs []int64) ([]Sticker, error)
}

// Factory выдаёт клиента под конкретный магазин (токен, sandbox).
type Factory interface {
	ForShop(shopID int64, token string, sandbox bool) Client
}
