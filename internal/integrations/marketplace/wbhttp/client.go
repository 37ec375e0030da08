package wbhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/BearBump/SellerFlow/internal/integrations/marketplace"
	"github.com/pkg/errors"
)

const (
	DefaultBaseURL        = "https://marketplace-api.wildberries.ru"
	DefaultSandboxBaseURL = "https://marketplace-api-sandbox.wildberries.ru"

	stickerType   = "png"
	stickerWidth  = 58
	stickerHeight = 40
)

type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type suppliesResp struct {
	Next     int64 `json:"next"`
	Supplies []struct {
		ID        string     `json:"id"`
		Name      string     `json:"name"`
		Done      bool       `json:"done"`
		CreatedAt *time.Time `json:"createdAt"`
		ClosedAt  *time.Time `json:"closedAt"`
	} `json:"supplies"`
}

type supplyOrderIDsResp struct {
	OrderIDs []json.RawMessage `json:"orderIds"`
}

type ordersResp struct {
	Next   int64 `json:"next"`
	Orders []struct {
		ID        int64      `json:"id"`
		NmID      *int64     `json:"nmId"`
		CreatedAt *time.Time `json:"createdAt"`
	} `json:"orders"`
}

type ordersReq struct {
	Orders []int64 `json:"orders"`
}

type statusesResp struct {
	Orders []struct {
		ID             int64  `json:"id"`
		SupplierStatus string `json:"supplierStatus"`
		WbStatus       string `json:"wbStatus"`
	} `json:"orders"`
}

type stickersResp struct {
	Stickers []struct {
		OrderID int64   `json:"orderId"`
		PartA   any     `json:"partA"`
		PartB   any     `json:"partB"`
		File    *string `json:"file"`
	} `json:"stickers"`
}

func (c *Client) ListSupplies(ctx context.Context, limit int, next int64) (marketplace.SupplyPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("next", strconv.FormatInt(next, 10))

	var r suppliesResp
	if err := c.do(ctx, http.MethodGet, "/api/v3/supplies", q, nil, &r); err != nil {
		return marketplace.SupplyPage{}, err
	}
	page := marketplace.SupplyPage{Next: r.Next, Items: make([]marketplace.Supply, 0, len(r.Supplies))}
	for _, s := range r.Supplies {
		page.Items = append(page.Items, marketplace.Supply{
			ID:        s.ID,
			Name:      s.Name,
			Done:      s.Done,
			CreatedAt: s.CreatedAt,
			ClosedAt:  s.ClosedAt,
		})
	}
	return page, nil
}

func (c *Client) GetSupplyOrderIDs(ctx context.Context, supplyID string) ([]json.RawMessage, error) {
	var r supplyOrderIDsResp
	path := "/api/marketplace/v3/supplies/" + url.PathEscape(supplyID) + "/order-ids"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &r); err != nil {
		return nil, err
	}
	return r.OrderIDs, nil
}

func (c *Client) ListOrders(ctx context.Context, limit int, next int64, dateFrom time.Time) (marketplace.OrderPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("next", strconv.FormatInt(next, 10))
	if !dateFrom.IsZero() {
		q.Set("dateFrom", strconv.FormatInt(dateFrom.Unix(), 10))
	}

	var r ordersResp
	if err := c.do(ctx, http.MethodGet, "/api/v3/orders", q, nil, &r); err != nil {
		return marketplace.OrderPage{}, err
	}
	page := marketplace.OrderPage{Next: r.Next, Items: make([]marketplace.Order, 0, len(r.Orders))}
	for _, o := range r.Orders {
		page.Items = append(page.Items, marketplace.Order{ID: o.ID, NmID: o.NmID, CreatedAt: o.CreatedAt})
	}
	return page, nil
}

func (c *Client) GetOrderStatuses(ctx context.Context, orderIDs []int64) ([]marketplace.OrderStatus, error) {
	var r statusesResp
	if err := c.do(ctx, http.MethodPost, "/api/v3/orders/status", nil, ordersReq{Orders: orderIDs}, &r); err != nil {
		return nil, err
	}
	out := make([]marketplace.OrderStatus, 0, len(r.Orders))
	for _, o := range r.Orders {
		out = append(out, marketplace.OrderStatus{ID: o.ID, SupplierStatus: o.SupplierStatus, Status: o.WbStatus})
	}
	return out, nil
}

func (c *Client) GetStickers(ctx context.Context, orderIDs []int64) ([]marketplace.Sticker, error) {
	q := url.Values{}
	q.Set("type", stickerType)
	q.Set("width", strconv.Itoa(stickerWidth))
	q.Set("height", strconv.Itoa(stickerHeight))

	var r stickersResp
	if err := c.do(ctx, http.MethodPost, "/api/v3/orders/stickers", q, ordersReq{Orders: orderIDs}, &r); err != nil {
		return nil, err
	}
	out := make([]marketplace.Sticker, 0, len(r.Stickers))
	for _, s := range r.Stickers {
		out = append(out, marketplace.Sticker{
			OrderID: s.OrderID,
			PartA:   stickerPart(s.PartA),
			PartB:   stickerPart(s.PartB),
			File:    s.File,
		})
	}
	return out, nil
}

// partA/partB приходят то числом, то строкой.
func stickerPart(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any, out any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}

	if resp.StatusCode/100 != 2 {
		return &marketplace.HTTPError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(string(raw), 512)}
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return errors.Wrapf(marketplace.ErrEmptyResponse, "%s %s", method, path)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s", path)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Factory создаёт клиентов с базовым URL по режиму магазина.
type Factory struct {
	BaseURL        string
	SandboxBaseURL string
	Timeout        time.Duration
}

func (f Factory) ForShop(_ int64, token string, sandbox bool) marketplace.Client {
	if sandbox {
		base := f.SandboxBaseURL
		if base == "" {
			base = DefaultSandboxBaseURL
		}
		return New(base, token, f.Timeout)
	}
	return New(f.BaseURL, token, f.Timeout)
}
