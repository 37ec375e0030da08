package aggregation

import "time"

type Settings struct {
	SupplyPageSize int // default: 1000
	LatestCount    int // default: 1
	WaitingCount   int // default: 6

	OrderLookback time.Duration // default: 30 days
	OrderPageSize int           // default: 1000

	StatusBatch  int // default: 1000
	StickerBatch int // default: 100

	// Жёсткий предел страниц в любом листинге.
	MaxPages int // default: 500

	// Часовой пояс для имён файлов.
	Location *time.Location // default: UTC
}

func DefaultSettings() Settings {
	return Settings{
		SupplyPageSize: 1000,
		LatestCount:    1,
		WaitingCount:   6,
		OrderLookback:  30 * 24 * time.Hour,
		OrderPageSize:  1000,
		StatusBatch:    1000,
		StickerBatch:   100,
		MaxPages:       500,
		Location:       time.UTC,
	}
}

func normalizeSettings(s Settings) Settings {
	def := DefaultSettings()
	if s.SupplyPageSize <= 0 {
		s.SupplyPageSize = def.SupplyPageSize
	}
	if s.LatestCount <= 0 {
		s.LatestCount = def.LatestCount
	}
	if s.WaitingCount <= 0 {
		s.WaitingCount = def.WaitingCount
	}
	if s.OrderLookback <= 0 {
		s.OrderLookback = def.OrderLookback
	}
	if s.OrderPageSize <= 0 {
		s.OrderPageSize = def.OrderPageSize
	}
	if s.StatusBatch <= 0 || s.StatusBatch > def.StatusBatch {
		s.StatusBatch = def.StatusBatch
	}
	if s.StickerBatch <= 0 || s.StickerBatch > def.StickerBatch {
		s.StickerBatch = def.StickerBatch
	}
	if s.MaxPages <= 0 {
		s.MaxPages = def.MaxPages
	}
	if s.Location == nil {
		s.Location = def.Location
	}
	return s
}
