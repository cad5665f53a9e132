// Package domain holds the back-office records. They map one to one onto the
// storefront tables and carry their own validation rules.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Brand struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Slug      string    `gorm:"column:slug;uniqueIndex;not null" json:"slug" validate:"required,max=120"`
	Name      string    `gorm:"column:name;not null" json:"name" validate:"required,max=255"`
	LogoURL   string    `gorm:"column:logo_url" json:"logoUrl" validate:"omitempty,url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Brand) TableName() string { return "brands" }

type Category struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	Slug       string    `gorm:"column:slug;uniqueIndex;not null" json:"slug" validate:"required,max=120"`
	ParentSlug *string   `gorm:"column:parent_slug" json:"parentSlug,omitempty" validate:"omitempty,max=120"`
	Name       string    `gorm:"column:name;not null" json:"name" validate:"required,max=255"`
	SortOrder  int       `gorm:"column:sort_order" json:"sortOrder"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Category) TableName() string { return "categories" }

type Warehouse struct {
	ID          string    `gorm:"primaryKey;column:id" json:"id" validate:"required,max=64"`
	Name        string    `gorm:"column:name;not null" json:"name" validate:"required,max=255"`
	CountryCode string    `gorm:"column:country_code;not null" json:"countryCode" validate:"required,iso3166_1_alpha2"`
	IsVisible   bool      `gorm:"column:is_visible" json:"isVisible"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Warehouse) TableName() string { return "warehouses" }

// Item is a catalog article with its per-warehouse prices and per-locale
// details, saved and loaded together.
type Item struct {
	ID              int64        `gorm:"primaryKey;column:id" json:"id"`
	ArticleID       string       `gorm:"column:article_id;uniqueIndex;not null" json:"articleId" validate:"required,max=64"`
	IsDisplayed     bool         `gorm:"column:is_displayed" json:"isDisplayed"`
	ImageLinks      StringList   `gorm:"column:image_links;type:jsonb" json:"imageLinks" validate:"dive,url"`
	CategorySlug    string       `gorm:"column:category_slug" json:"categorySlug"`
	SubcategorySlug string       `gorm:"column:subcategory_slug" json:"subcategorySlug"`
	BrandSlug       string       `gorm:"column:brand_slug" json:"brandSlug"`
	WarrantyMonths  int          `gorm:"column:warranty_months" json:"warrantyMonths" validate:"gte=0"`
	WarrantyType    string       `gorm:"column:warranty_type" json:"warrantyType"`
	SellCounter     int          `gorm:"column:sell_counter" json:"sellCounter" validate:"gte=0"`
	Prices          []ItemPrice  `gorm:"foreignKey:ItemID" json:"prices" validate:"dive"`
	Details         []ItemDetail `gorm:"foreignKey:ItemID" json:"details" validate:"unique=Locale,dive"`
	CreatedAt       time.Time    `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time    `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Item) TableName() string { return "items" }

type ItemPrice struct {
	ID             int64               `gorm:"primaryKey;column:id" json:"id"`
	ItemID         int64               `gorm:"column:item_id;not null" json:"itemId"`
	WarehouseID    string              `gorm:"column:warehouse_id;not null" json:"warehouseId" validate:"required"`
	Price          decimal.Decimal     `gorm:"column:price;type:numeric(12,2)" json:"price"`
	Quantity       int                 `gorm:"column:quantity" json:"quantity" validate:"gte=0"`
	PromotionPrice decimal.NullDecimal `gorm:"column:promotion_price;type:numeric(12,2)" json:"promotionPrice"`
	PromoStartDate *time.Time          `gorm:"column:promo_start_date" json:"promoStartDate,omitempty"`
	PromoEndDate   *time.Time          `gorm:"column:promo_end_date" json:"promoEndDate,omitempty"`
	PromoCode      string              `gorm:"column:promo_code" json:"promoCode"`
	Badge          string              `gorm:"column:badge" json:"badge" validate:"omitempty,oneof=NEW_ARRIVALS HOT_DEALS BESTSELLER LIMITED"`
}

func (ItemPrice) TableName() string { return "item_prices" }

type ItemDetail struct {
	ID             int64  `gorm:"primaryKey;column:id" json:"id"`
	ItemID         int64  `gorm:"column:item_id;not null" json:"itemId"`
	Locale         string `gorm:"column:locale;not null" json:"locale" validate:"required,bcp47_language_tag"`
	Name           string `gorm:"column:name;not null" json:"name" validate:"required,max=500"`
	Description    string `gorm:"column:description" json:"description"`
	Specifications string `gorm:"column:specifications" json:"specifications"`
	Seller         string `gorm:"column:seller" json:"seller"`
	Discount       string `gorm:"column:discount" json:"discount"`
	Popularity     int    `gorm:"column:popularity" json:"popularity"`
}

func (ItemDetail) TableName() string { return "item_details" }

type User struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id" validate:"required,max=128"`
	Email     string    `gorm:"column:email;uniqueIndex;not null" json:"email" validate:"required,email"`
	Name      string    `gorm:"column:name" json:"name" validate:"max=255"`
	Role      string    `gorm:"column:role;not null" json:"role" validate:"required,oneof=user employer admin"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

type Banner struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Locale    string    `gorm:"column:locale;not null" json:"locale" validate:"required,bcp47_language_tag"`
	Title     string    `gorm:"column:title;not null" json:"title" validate:"required,max=255"`
	ImageURL  string    `gorm:"column:image_url;not null" json:"imageUrl" validate:"required,url"`
	LinkURL   string    `gorm:"column:link_url" json:"linkUrl" validate:"omitempty,uri"`
	SortOrder int       `gorm:"column:sort_order" json:"sortOrder"`
	IsActive  bool      `gorm:"column:is_active" json:"isActive"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Banner) TableName() string { return "banners" }

type Page struct {
	ID          int64     `gorm:"primaryKey;column:id" json:"id"`
	Slug        string    `gorm:"column:slug;not null" json:"slug" validate:"required,max=120"`
	Locale      string    `gorm:"column:locale;not null" json:"locale" validate:"required,bcp47_language_tag"`
	Title       string    `gorm:"column:title;not null" json:"title" validate:"required,max=255"`
	Content     RawJSON   `gorm:"column:content;type:jsonb" json:"content"`
	IsPublished bool      `gorm:"column:is_published" json:"isPublished"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Page) TableName() string { return "pages" }

// CurrencyRate is units of Code per one unit of the base currency.
type CurrencyRate struct {
	Code      string          `gorm:"primaryKey;column:code" json:"code" validate:"required,iso4217"`
	Rate      decimal.Decimal `gorm:"column:rate;type:numeric(18,8)" json:"rate"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (CurrencyRate) TableName() string { return "currency_rates" }
