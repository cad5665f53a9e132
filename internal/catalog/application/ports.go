package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

type Sort int

const (
	SortDefault Sort = iota
	SortBestsellers
	SortNewest
)

type ItemFilter struct {
	Locale      string
	Category    string
	Subcategory string
	Brand       string
	// PromotionActiveAt narrows to items with a promotion below the base price,
	// in a visible warehouse, whose window covers that instant.
	PromotionActiveAt *time.Time
	Sort              Sort
	Limit             int
	Offset            int
}

type Repository interface {
	ListItems(ctx context.Context, f ItemFilter) ([]domain.Item, error)
	GetItem(ctx context.Context, articleID, locale string) (domain.Item, error)
	Banners(ctx context.Context, locale string) ([]domain.Banner, error)
	Page(ctx context.Context, slug, locale string) (domain.Page, error)
	AddSellCount(ctx context.Context, itemID int64, delta int) error
}

type Converter interface {
	Base() string
	Convert(amount decimal.Decimal, code string) (decimal.Decimal, error)
}

// CountryLocator maps a client IP to an ISO country code, "" when unknown.
type CountryLocator interface {
	Country(ip string) string
}
