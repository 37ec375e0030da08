package models

import "time"

type AggregationMode string

const (
	AggregationModeLatest  AggregationMode = "latest"
	AggregationModeWaiting AggregationMode = "waiting"
)

func (m AggregationMode) Valid() bool {
	return m == AggregationModeLatest || m == AggregationModeWaiting
}

type ShopStatus string

const (
	ShopStatusSuccess ShopStatus = "success"
	ShopStatusSkipped ShopStatus = "skipped"
	ShopStatusFailed  ShopStatus = "failed"
)

// OrderFact: то, что известно о заказе из общего листинга.
type OrderFact struct {
	NmID      *int64
	CreatedAt *time.Time
}

// StickerFact: стикер заказа. File, PNG в base64, может отсутствовать.
type StickerFact struct {
	PartA string
	PartB string
	File  *string
}

// StickerCode: человекочитаемый код стикера "partA partB".
func (s StickerFact) StickerCode() string {
	switch {
	case s.PartA == "" && s.PartB == "":
		return ""
	case s.PartB == "":
		return s.PartA
	case s.PartA == "":
		return s.PartB
	}
	return s.PartA + " " + s.PartB
}

// CombinedRow: одна строка документа, пара (поставка, заказ) с обогащением.
type CombinedRow struct {
	ShopID     int64
	ShopName   string
	SupplyID   string
	SupplyName string
	OrderID    int64

	NmID           *int64
	OrderCreatedAt *time.Time

	Sticker StickerFact

	Brand    string
	Title    string
	ImageURL string
	AgeGroup string
}

type SupplySummary struct {
	ShopID     int64
	ShopName   string
	SupplyID   string
	SupplyName string
	RowCount   int
}

type ShopResult struct {
	ShopID      int64
	ShopName    string
	Status      ShopStatus
	SupplyIDs   []string
	OrderCount  int
	Error       string
	SkipReason  string
	Diagnostics []string
}

type Document struct {
	FileName string
	Data     []byte
}

type AggregationResult struct {
	Mode       AggregationMode
	TenantID   string
	StartedAt  time.Time
	FinishedAt time.Time

	ProcessedShops int
	SuccessShops   int
	SkippedShops   int
	FailedShops    int
	TotalOrders    int

	MissingProductCards int
	MissingOrderFacts   int

	Shops    []ShopResult
	Supplies []SupplySummary
	Rows     []CombinedRow

	OrderList Document
	Stickers  Document
}

// DocumentMeta: общие параметры рендера обоих документов.
type DocumentMeta struct {
	Mode        AggregationMode
	Lang        string
	GeneratedAt time.Time
}
