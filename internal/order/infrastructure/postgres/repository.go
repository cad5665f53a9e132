package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

const orderColumns = `id, user_id, status, original_total_price, total_price, line_items,
	COALESCE(delivery_id, ''), COALESCE(comment, ''), customer, is_price_request, stock_held, created_at, updated_at`

// offerQuery resolves an item's price row in one warehouse with the display
// name in the requested locale, falling back to the default locale. Hidden
// items and warehouses are not orderable.
const offerQuery = `SELECT i.id, i.article_id, COALESCE(d.name, dd.name, i.article_id),
		w.id, w.name, w.country_code, p.price, p.promotion_price, p.quantity
	FROM item_prices p
	JOIN items i ON i.id = p.item_id
	JOIN warehouses w ON w.id = p.warehouse_id
	LEFT JOIN item_details d ON d.item_id = i.id AND d.locale = $1
	LEFT JOIN item_details dd ON dd.item_id = i.id AND dd.locale = $2
	WHERE i.is_displayed AND w.is_visible`

type Repository struct {
	log           *slog.Logger
	pool          *pgxpool.Pool
	defaultLocale string
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool, defaultLocale string) *Repository {
	return &Repository{log: log, pool: pool, defaultLocale: defaultLocale}
}

func (r *Repository) InTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &txRepo{tx: tx, defaultLocale: r.defaultLocale}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
	return scanOrder(row)
}

func (r *Repository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *Repository) List(ctx context.Context, f application.ListFilter) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, string(f.Status), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (r *Repository) FindOffer(ctx context.Context, locale string, ref application.OfferRef) (domain.Offer, error) {
	row := r.pool.QueryRow(ctx, offerQuery+`
		  AND p.warehouse_id = $3 AND (i.id = $4 OR i.article_id = $5)
		LIMIT 1`, locale, r.defaultLocale, ref.WarehouseID, ref.ItemID, ref.ArticleID)
	offer, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		article := ref.ArticleID
		if article == "" {
			article = fmt.Sprintf("item %d", ref.ItemID)
		}
		return domain.Offer{}, &domain.NotAvailableError{ArticleID: article, WarehouseID: ref.WarehouseID}
	}
	return offer, err
}

type txRepo struct {
	tx            pgx.Tx
	defaultLocale string
}

// LockOffers locks price rows one key at a time in the order given, so callers
// passing domain.CartKeys always lock in the same order.
func (t *txRepo) LockOffers(ctx context.Context, locale string, keys []domain.OfferKey) (map[domain.OfferKey]domain.Offer, error) {
	out := make(map[domain.OfferKey]domain.Offer, len(keys))
	for _, k := range keys {
		row := t.tx.QueryRow(ctx, offerQuery+`
			  AND i.article_id = $3 AND p.warehouse_id = $4
			FOR UPDATE OF p`, locale, t.defaultLocale, k.ArticleID, k.WarehouseID)
		offer, err := scanOffer(row)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock offer %s/%s: %w", k.ArticleID, k.WarehouseID, err)
		}
		out[k] = offer
	}
	return out, nil
}

func (t *txRepo) InsertOrder(ctx context.Context, o domain.Order) error {
	lineItems, customer, err := encodeOrder(o)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO orders (id, user_id, status, original_total_price, total_price, line_items,
			delivery_id, comment, customer, is_price_request, stock_held, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''),$9,$10,$11,$12,$13)`,
		o.ID, o.UserID, string(o.Status), o.OriginalTotalPrice, o.TotalPrice, lineItems,
		o.DeliveryID, o.Comment, customer, o.PriceRequest, o.StockHeld, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (t *txRepo) AdjustStock(ctx context.Context, key domain.StockKey, delta int) error {
	ct, err := t.tx.Exec(ctx, `UPDATE item_prices SET quantity = quantity + $3
		WHERE item_id=$1 AND warehouse_id=$2 AND quantity + $3 >= 0`,
		key.ItemID, key.WarehouseID, delta)
	if err != nil {
		return fmt.Errorf("adjust stock item %d/%s: %w", key.ItemID, key.WarehouseID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: item %d in %s", domain.ErrInsufficientStock, key.ItemID, key.WarehouseID)
	}
	return nil
}

func (t *txRepo) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (t *txRepo) UpdateOrder(ctx context.Context, o domain.Order) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2, delivery_id=NULLIF($3,''), stock_held=$4, updated_at=$5
		WHERE id=$1`,
		o.ID, string(o.Status), o.DeliveryID, o.StockHeld, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	return nil
}

func (t *txRepo) Append(ctx context.Context, msg outbox.Message) error {
	return outbox.Append(ctx, t.tx, msg)
}

func encodeOrder(o domain.Order) ([]byte, []byte, error) {
	lineItems, err := json.Marshal(o.LineItems)
	if err != nil {
		return nil, nil, err
	}
	if o.Customer == nil {
		return lineItems, nil, nil
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, nil, err
	}
	return lineItems, customer, nil
}

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var promo decimal.NullDecimal
	if err := row.Scan(&o.ItemID, &o.ArticleID, &o.Name,
		&o.Warehouse.ID, &o.Warehouse.Name, &o.Warehouse.CountryCode,
		&o.Price, &promo, &o.Quantity); err != nil {
		return domain.Offer{}, err
	}
	if promo.Valid {
		o.PromotionPrice = &promo.Decimal
	}
	return o, nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	var lineItems, customer []byte
	err := row.Scan(&o.ID, &o.UserID, &status, &o.OriginalTotalPrice, &o.TotalPrice, &lineItems,
		&o.DeliveryID, &o.Comment, &customer, &o.PriceRequest, &o.StockHeld, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	if err := json.Unmarshal(lineItems, &o.LineItems); err != nil {
		return domain.Order{}, fmt.Errorf("decode line items of %s: %w", o.ID, err)
	}
	if len(customer) > 0 {
		o.Customer = &domain.Customer{}
		if err := json.Unmarshal(customer, o.Customer); err != nil {
			return domain.Order{}, fmt.Errorf("decode customer of %s: %w", o.ID, err)
		}
	}
	return o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
