package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/catalog/application"
	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

const itemSelect = `SELECT i.id, i.article_id,
		COALESCE(d.name, dd.name, i.article_id),
		COALESCE(d.description, dd.description, ''),
		COALESCE(d.specifications, dd.specifications, ''),
		COALESCE(d.seller, dd.seller, ''),
		i.image_links, COALESCE(i.category_slug, ''), COALESCE(i.subcategory_slug, ''),
		COALESCE(i.brand_slug, ''), COALESCE(b.name, ''),
		i.warranty_months, i.warranty_type, i.sell_counter, i.created_at
	FROM items i
	LEFT JOIN brands b ON b.slug = i.brand_slug
	LEFT JOIN item_details d ON d.item_id = i.id AND d.locale = $1
	LEFT JOIN item_details dd ON dd.item_id = i.id AND dd.locale = $2`

var orderBy = map[application.Sort]string{
	application.SortDefault:     `i.id`,
	application.SortBestsellers: `i.sell_counter DESC, i.id`,
	application.SortNewest:      `i.created_at DESC, i.id DESC`,
}

type Repository struct {
	log           *slog.Logger
	pool          *pgxpool.Pool
	defaultLocale string
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, defaultLocale string) *Repository {
	return &Repository{log: log, pool: pool, defaultLocale: defaultLocale}
}

func (r *Repository) ListItems(ctx context.Context, f application.ItemFilter) ([]domain.Item, error) {
	rows, err := r.pool.Query(ctx, itemSelect+`
		WHERE i.is_displayed
		  AND ($3 = '' OR i.category_slug = $3)
		  AND ($4 = '' OR i.subcategory_slug = $4)
		  AND ($5 = '' OR i.brand_slug = $5)
		  AND ($6::timestamptz IS NULL OR EXISTS (
			SELECT 1 FROM item_prices p
			JOIN warehouses w ON w.id = p.warehouse_id
			WHERE p.item_id = i.id AND w.is_visible
			  AND p.promotion_price < p.price
			  AND (p.promo_start_date IS NULL OR p.promo_start_date <= $6)
			  AND (p.promo_end_date IS NULL OR p.promo_end_date >= $6)))
		ORDER BY `+orderBy[f.Sort]+`
		LIMIT $7 OFFSET $8`,
		r.locale(f.Locale), r.defaultLocale, f.Category, f.Subcategory, f.Brand, f.PromotionActiveAt, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, err
	}
	if err := r.attachOffers(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, articleID, locale string) (domain.Item, error) {
	rows, err := r.pool.Query(ctx, itemSelect+` WHERE i.is_displayed AND i.article_id = $3`,
		r.locale(locale), r.defaultLocale, articleID)
	if err != nil {
		return domain.Item{}, fmt.Errorf("get item %s: %w", articleID, err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return domain.Item{}, err
	}
	if len(items) == 0 {
		return domain.Item{}, domain.ErrItemNotFound
	}
	if err := r.attachOffers(ctx, items); err != nil {
		return domain.Item{}, err
	}
	return items[0], nil
}

// attachOffers loads the visible warehouse offers of items in one query.
func (r *Repository) attachOffers(ctx context.Context, items []domain.Item) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(items))
	index := make(map[int64]int, len(items))
	for i, it := range items {
		ids = append(ids, it.ID)
		index[it.ID] = i
	}

	rows, err := r.pool.Query(ctx, `SELECT p.item_id, w.id, w.name, w.country_code, p.price, p.promotion_price,
			p.promo_start_date, p.promo_end_date, p.promo_code, p.badge, p.quantity
		FROM item_prices p
		JOIN warehouses w ON w.id = p.warehouse_id
		WHERE p.item_id = ANY($1) AND w.is_visible
		ORDER BY p.item_id, p.id`, ids)
	if err != nil {
		return fmt.Errorf("load offers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var itemID int64
		var o domain.Offer
		var promo decimal.NullDecimal
		var start, end *time.Time
		var badge string
		if err := rows.Scan(&itemID, &o.WarehouseID, &o.WarehouseName, &o.CountryCode, &o.Price, &promo,
			&start, &end, &o.PromoCode, &badge, &o.Quantity); err != nil {
			return err
		}
		if promo.Valid {
			o.PromotionPrice = &promo.Decimal
		}
		o.PromoStart, o.PromoEnd, o.Badge = start, end, domain.Badge(badge)
		i := index[itemID]
		items[i].Offers = append(items[i].Offers, o)
	}
	return rows.Err()
}

func (r *Repository) Banners(ctx context.Context, locale string) ([]domain.Banner, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, locale, title, image_url, link_url, sort_order
		FROM banners WHERE is_active AND locale = $1 ORDER BY sort_order, id`, r.locale(locale))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Banner
	for rows.Next() {
		var b domain.Banner
		if err := rows.Scan(&b.ID, &b.Locale, &b.Title, &b.ImageURL, &b.LinkURL, &b.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Page returns the published page in locale, or in the default locale when no
// translation exists.
func (r *Repository) Page(ctx context.Context, slug, locale string) (domain.Page, error) {
	var p domain.Page
	err := r.pool.QueryRow(ctx, `SELECT slug, locale, title, content FROM pages
		WHERE slug = $1 AND is_published AND locale IN ($2, $3)
		ORDER BY locale = $2 DESC
		LIMIT 1`, slug, r.locale(locale), r.defaultLocale).
		Scan(&p.Slug, &p.Locale, &p.Title, &p.Content)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Page{}, domain.ErrPageNotFound
	}
	return p, err
}

// AddSellCount moves an item's sell counter by delta, never below zero.
func (r *Repository) AddSellCount(ctx context.Context, itemID int64, delta int) error {
	_, err := r.pool.Exec(ctx, `UPDATE items SET sell_counter = GREATEST(sell_counter + $2, 0) WHERE id = $1`, itemID, delta)
	if err != nil {
		return fmt.Errorf("sell counter of item %d: %w", itemID, err)
	}
	return nil
}

func (r *Repository) locale(l string) string {
	if l == "" {
		return r.defaultLocale
	}
	return l
}

func collectItems(rows pgx.Rows) ([]domain.Item, error) {
	defer rows.Close()
	var out []domain.Item
	for rows.Next() {
		var it domain.Item
		var images []byte
		if err := rows.Scan(&it.ID, &it.ArticleID, &it.Name, &it.Description, &it.Specifications, &it.Seller,
			&images, &it.CategorySlug, &it.SubcategorySlug, &it.BrandSlug, &it.BrandName,
			&it.WarrantyMonths, &it.WarrantyType, &it.SellCounter, &it.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(images, &it.ImageLinks); err != nil {
			return nil, fmt.Errorf("decode image links of %s: %w", it.ArticleID, err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
