package application

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/currency"
)

const (
	defaultPageSize = 48
	maxPageSize     = 200
	homeTabSize     = 12
)

// Query carries the shopper context of a catalog request.
type Query struct {
	Locale      string
	Currency    string
	Country     string
	ClientIP    string
	Category    string
	Subcategory string
	Brand       string
	Limit       int
	Offset      int
}

type WarehouseView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"countryCode"`
}

type OfferView struct {
	Warehouse      WarehouseView    `json:"warehouse"`
	Price          decimal.Decimal  `json:"price"`
	PromotionPrice *decimal.Decimal `json:"promotionPrice,omitempty"`
	Quantity       int              `json:"quantity"`
	Badge          domain.Badge     `json:"badge,omitempty"`
}

type Product struct {
	ItemID                  int64            `json:"itemId"`
	ArticleID               string           `json:"articleId"`
	Name                    string           `json:"name"`
	Description             string           `json:"description,omitempty"`
	Specifications          string           `json:"specifications,omitempty"`
	Seller                  string           `json:"seller,omitempty"`
	ImageLinks              []string         `json:"imageLinks"`
	Category                string           `json:"category"`
	Subcategory             string           `json:"subcategory,omitempty"`
	Brand                   string           `json:"brand,omitempty"`
	BrandName               string           `json:"brandName,omitempty"`
	WarrantyMonths          int              `json:"warrantyMonths,omitempty"`
	WarrantyType            string           `json:"warrantyType,omitempty"`
	Warehouse               WarehouseView    `json:"warehouse"`
	Currency                string           `json:"currency"`
	Price                   decimal.Decimal  `json:"price"`
	PromotionPrice          *decimal.Decimal `json:"promotionPrice,omitempty"`
	PriceFormatted          string           `json:"priceFormatted"`
	PromotionPriceFormatted string           `json:"promotionPriceFormatted,omitempty"`
	PromoEndDate            *time.Time       `json:"promoEndDate,omitempty"`
	InStock                 bool             `json:"inStock"`
	Badge                   domain.Badge     `json:"badge,omitempty"`
	Offers                  []OfferView      `json:"offers,omitempty"`
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	log            *slog.Logger
	repo           Repository
	conv           Converter
	locator        CountryLocator
	defaultCountry string
	now            func() time.Time
}

// NewService wires the catalog read side. locator may be nil.
func NewService(log *slog.Logger, repo Repository, conv Converter, locator CountryLocator, defaultCountry string, opts ...Option) *Service {
	s := &Service{
		log:            log,
		repo:           repo,
		conv:           conv,
		locator:        locator,
		defaultCountry: strings.ToUpper(defaultCountry),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Country resolves the shopper's preferred country: explicit parameter, then
// GeoIP, then the configured default.
func (s *Service) Country(q Query) string {
	if q.Country != "" {
		return strings.ToUpper(q.Country)
	}
	if s.locator != nil && q.ClientIP != "" {
		if c := s.locator.Country(q.ClientIP); c != "" {
			return c
		}
	}
	return s.defaultCountry
}

func (s *Service) ListProducts(ctx context.Context, q Query) ([]Product, error) {
	items, err := s.repo.ListItems(ctx, ItemFilter{
		Locale:      q.Locale,
		Category:    q.Category,
		Subcategory: q.Subcategory,
		Brand:       q.Brand,
		Limit:       pageSize(q.Limit),
		Offset:      max(q.Offset, 0),
	})
	if err != nil {
		return nil, err
	}
	return s.present(items, q, false)
}

func (s *Service) GetProduct(ctx context.Context, articleID string, q Query) (Product, error) {
	item, err := s.repo.GetItem(ctx, articleID, q.Locale)
	if err != nil {
		return Product{}, err
	}
	out, err := s.present([]domain.Item{item}, q, true)
	if err != nil {
		return Product{}, err
	}
	if len(out) == 0 {
		return Product{}, domain.ErrItemNotFound
	}
	return out[0], nil
}

// HomeTab builds one home page strip. All tabs price items through the same
// ResolvePrice rule as the category listing.
func (s *Service) HomeTab(ctx context.Context, tab domain.Tab, q Query) ([]Product, error) {
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = homeTabSize
	}
	filter := ItemFilter{Locale: q.Locale, Category: q.Category, Brand: q.Brand}

	switch tab {
	case domain.TabBestsellers:
		filter.Sort, filter.Limit = SortBestsellers, limit
	case domain.TabDiscount:
		now := s.now()
		filter.Sort, filter.Limit, filter.PromotionActiveAt = SortNewest, limit*2, &now
	case domain.TabNew:
		filter.Sort, filter.Limit = SortNewest, limit*4
	default:
		return nil, domain.ErrUnknownTab
	}

	items, err := s.repo.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	products, err := s.present(items, q, false)
	if err != nil {
		return nil, err
	}

	switch tab {
	case domain.TabDiscount:
		kept := products[:0]
		for _, p := range products {
			if p.PromotionPrice != nil {
				kept = append(kept, p)
			}
		}
		products = kept
	case domain.TabNew:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Badge == domain.BadgeNewArrivals && products[j].Badge != domain.BadgeNewArrivals
		})
	}
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Service) Banners(ctx context.Context, locale string) ([]domain.Banner, error) {
	return s.repo.Banners(ctx, locale)
}

func (s *Service) Page(ctx context.Context, slug, locale string) (domain.Page, error) {
	return s.repo.Page(ctx, slug, locale)
}

type SaleLine struct {
	ItemID   int64
	Quantity int
}

// RecordSale adds sold quantities to the items' sell counters; a negative sign
// reverts a cancelled sale.
func (s *Service) RecordSale(ctx context.Context, lines []SaleLine, sign int) error {
	perItem := map[int64]int{}
	for _, l := range lines {
		perItem[l.ItemID] += l.Quantity
	}
	for itemID, qty := range perItem {
		if err := s.repo.AddSellCount(ctx, itemID, sign*qty); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) present(items []domain.Item, q Query, withOffers bool) ([]Product, error) {
	code := strings.ToUpper(q.Currency)
	if code == "" {
		code = s.conv.Base()
	}
	country := s.Country(q)
	now := s.now()

	out := make([]Product, 0, len(items))
	for _, it := range items {
		rp, ok := domain.ResolvePrice(it.Offers, country, now)
		if !ok {
			continue
		}
		p := Product{
			ItemID:         it.ID,
			ArticleID:      it.ArticleID,
			Name:           it.Name,
			Description:    it.Description,
			Specifications: it.Specifications,
			Seller:         it.Seller,
			ImageLinks:     it.ImageLinks,
			Category:       it.CategorySlug,
			Subcategory:    it.SubcategorySlug,
			Brand:          it.BrandSlug,
			BrandName:      it.BrandName,
			WarrantyMonths: it.WarrantyMonths,
			WarrantyType:   it.WarrantyType,
			Warehouse: WarehouseView{
				ID:          rp.Offer.WarehouseID,
				Name:        rp.Offer.WarehouseName,
				CountryCode: rp.Offer.CountryCode,
			},
			Currency: code,
			InStock:  rp.InStock,
			Badge:    rp.Offer.Badge,
		}
		if p.ImageLinks == nil {
			p.ImageLinks = []string{}
		}

		price, err := s.conv.Convert(rp.Price, code)
		if err != nil {
			return nil, err
		}
		p.Price = price
		p.PriceFormatted = currency.Format(price, code, q.Locale)
		if rp.PromotionPrice != nil {
			promo, err := s.conv.Convert(*rp.PromotionPrice, code)
			if err != nil {
				return nil, err
			}
			p.PromotionPrice = &promo
			p.PromotionPriceFormatted = currency.Format(promo, code, q.Locale)
			p.PromoEndDate = rp.Offer.PromoEnd
		}

		if withOffers {
			for _, o := range it.Offers {
				ov := OfferView{
					Warehouse: WarehouseView{ID: o.WarehouseID, Name: o.WarehouseName, CountryCode: o.CountryCode},
					Quantity:  o.Quantity,
					Badge:     o.Badge,
				}
				if ov.Price, err = s.conv.Convert(o.Price, code); err != nil {
					return nil, err
				}
				if o.PromotionActive(now) {
					promo, err := s.conv.Convert(*o.PromotionPrice, code)
					if err != nil {
						return nil, err
					}
					ov.PromotionPrice = &promo
				}
				p.Offers = append(p.Offers, ov)
			}
		}
		out = append(out, p)
	}
	return out, nil
}

func pageSize(n int) int {
	if n <= 0 {
		return defaultPageSize
	}
	return min(n, maxPageSize)
}
