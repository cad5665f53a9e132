package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound = errors.New("item not found")
	ErrPageNotFound = errors.New("page not found")
	ErrUnknownTab   = errors.New("unknown home tab")
)

type Badge string

const (
	BadgeNone        Badge = ""
	BadgeNewArrivals Badge = "NEW_ARRIVALS"
	BadgeHotDeals    Badge = "HOT_DEALS"
	BadgeBestseller  Badge = "BESTSELLER"
	BadgeLimited     Badge = "LIMITED"
)

// Offer is one warehouse's price row for an item.
type Offer struct {
	WarehouseID    string
	WarehouseName  string
	CountryCode    string
	Price          decimal.Decimal
	PromotionPrice *decimal.Decimal
	PromoStart     *time.Time
	PromoEnd       *time.Time
	PromoCode      string
	Badge          Badge
	Quantity       int
}

// PromotionActive reports whether the promotion price applies at now: it must
// be below the base price and now must fall inside the optional date window.
func (o Offer) PromotionActive(now time.Time) bool {
	if o.PromotionPrice == nil || !o.PromotionPrice.LessThan(o.Price) {
		return false
	}
	if o.PromoStart != nil && now.Before(*o.PromoStart) {
		return false
	}
	if o.PromoEnd != nil && now.After(*o.PromoEnd) {
		return false
	}
	return true
}

type Item struct {
	ID              int64
	ArticleID       string
	Name            string
	Description     string
	Specifications  string
	Seller          string
	ImageLinks      []string
	CategorySlug    string
	SubcategorySlug string
	BrandSlug       string
	BrandName       string
	WarrantyMonths  int
	WarrantyType    string
	SellCounter     int
	CreatedAt       time.Time
	Offers          []Offer
}

// ResolvedPrice is the display price of an item for one shopper.
type ResolvedPrice struct {
	Offer          Offer
	Price          decimal.Decimal
	PromotionPrice *decimal.Decimal
	InStock        bool
}

// Effective is the price the shopper pays.
func (p ResolvedPrice) Effective() decimal.Decimal {
	if p.PromotionPrice != nil {
		return *p.PromotionPrice
	}
	return p.Price
}

// SelectOffer picks the offer to show: offers in the preferred country come
// first, then the rest, each group in its original order. The first offer with
// stock wins; with nothing in stock the first offer overall is used.
func SelectOffer(offers []Offer, country string) (Offer, bool) {
	if len(offers) == 0 {
		return Offer{}, false
	}
	ordered := make([]Offer, 0, len(offers))
	for _, o := range offers {
		if country != "" && o.CountryCode == country {
			ordered = append(ordered, o)
		}
	}
	for _, o := range offers {
		if country == "" || o.CountryCode != country {
			ordered = append(ordered, o)
		}
	}
	for _, o := range ordered {
		if o.Quantity > 0 {
			return o, true
		}
	}
	return ordered[0], true
}

// ResolvePrice is the single pricing rule used by every catalog listing.
func ResolvePrice(offers []Offer, country string, now time.Time) (ResolvedPrice, bool) {
	offer, ok := SelectOffer(offers, country)
	if !ok {
		return ResolvedPrice{}, false
	}
	rp := ResolvedPrice{
		Offer:   offer,
		Price:   offer.Price,
		InStock: offer.Quantity > 0,
	}
	if offer.PromotionActive(now) {
		promo := *offer.PromotionPrice
		rp.PromotionPrice = &promo
	}
	return rp, true
}

// Tab is a home page product strip.
type Tab string

const (
	TabBestsellers Tab = "bestsellers"
	TabDiscount    Tab = "discount"
	TabNew         Tab = "new"
)

func ParseTab(s string) (Tab, error) {
	switch Tab(s) {
	case TabBestsellers, TabDiscount, TabNew:
		return Tab(s), nil
	case "":
		return TabBestsellers, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTab, s)
}

type Banner struct {
	ID        int64
	Locale    string
	Title     string
	ImageURL  string
	LinkURL   string
	SortOrder int
}

// Page content is the block editor document, kept opaque.
type Page struct {
	Slug    string
	Locale  string
	Title   string
	Content []byte
}
