package models

import "time"

// Shop: аккаунт продавца на маркетплейсе, принадлежащий тенанту.
type Shop struct {
	ID             int64
	TenantID       string
	Name           string
	Token          string
	SandboxToken   string
	UseSandbox     bool
	IsActive       bool
	SupplyPrefix   string
	TokenUpdatedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// APIToken возвращает токен, соответствующий текущему режиму магазина.
func (s *Shop) APIToken() string {
	if s.UseSandbox {
		return s.SandboxToken
	}
	return s.Token
}

// CatalogCard: ранее синхронизированная карточка товара.
type CatalogCard struct {
	ShopID   int64
	NmID     int64
	Brand    string
	Title    string
	ImageURL string
	AgeGroup string
}
