//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	admindomain "github.com/dmehra2102/storefront/internal/admin/domain"
	adminapp "github.com/dmehra2102/storefront/internal/admin/application"
	"github.com/dmehra2102/storefront/internal/admin/infrastructure/gormstore"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	catalogapp "github.com/dmehra2102/storefront/internal/catalog/application"
	"github.com/dmehra2102/storefront/internal/currency"
	orderapp "github.com/dmehra2102/storefront/internal/order/application"
	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	orderkafka "github.com/dmehra2102/storefront/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/storefront/internal/order/infrastructure/postgres"
	paymentdomain "github.com/dmehra2102/storefront/internal/payment/domain"
	paymentpg "github.com/dmehra2102/storefront/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/platform/postgres"
	"github.com/dmehra2102/storefront/pkg/idempotency"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

var (
	env  *Env
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "containers:", err)
		os.Exit(1)
	}
	pool, err = postgres.Connect(ctx, log, env.PGURL)
	if err == nil {
		err = postgres.Migrate(ctx, pool)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "postgres:", err)
		env.Teardown(ctx)
		os.Exit(1)
	}
	rdb = redis.NewClient(&redis.Options{Addr: env.RedisAddr})

	code := m.Run()

	_ = rdb.Close()
	pool.Close()
	env.Teardown(ctx)
	os.Exit(code)
}

// seedOffer creates an item with one price row in warehouse W1 and returns its
// article id.
func seedOffer(t *testing.T, price, promo string, qty int) string {
	t.Helper()
	ctx := context.Background()
	article := "ART-" + uuid.NewString()[:8]

	_, err := pool.Exec(ctx, `INSERT INTO warehouses (id, name, country_code) VALUES ('W1','Warsaw','PL') ON CONFLICT DO NOTHING`)
	require.NoError(t, err)

	var itemID int64
	err = pool.QueryRow(ctx, `INSERT INTO items (article_id, category_slug) VALUES ($1, 'tools') RETURNING id`, article).Scan(&itemID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO item_details (item_id, locale, name) VALUES ($1, 'pl', 'Wiertarka'), ($1, 'en', 'Drill')`, itemID)
	require.NoError(t, err)

	var promotion any
	if promo != "" {
		promotion = promo
	}
	_, err = pool.Exec(ctx, `INSERT INTO item_prices (item_id, warehouse_id, price, promotion_price, quantity) VALUES ($1,'W1',$2,$3,$4)`,
		itemID, price, promotion, qty)
	require.NoError(t, err)
	return article
}

func stock(t *testing.T, article string) int {
	t.Helper()
	var q int
	err := pool.QueryRow(context.Background(), `SELECT p.quantity FROM item_prices p JOIN items i ON i.id = p.item_id
		WHERE i.article_id=$1 AND p.warehouse_id='W1'`, article).Scan(&q)
	require.NoError(t, err)
	return q
}

func newOrderService() *orderapp.Service {
	return orderapp.NewService(log, orderpg.NewRepository(log, pool, "pl"), idempotency.NewStore(rdb, time.Minute))
}

func TestPlaceOrderAgainstPostgres(t *testing.T) {
	svc := newOrderService()
	ctx := context.Background()
	article := seedOffer(t, "100", "80", 5)

	o, err := svc.PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u1",
		Locale:     "en",
		Lines:      []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 2}},
		TotalPrice: "160,00 zł",
	})
	require.NoError(t, err)
	assert.True(t, o.OriginalTotalPrice.Equal(decimal.NewFromInt(160)))
	assert.Equal(t, "Drill", o.LineItems[0].Name)
	assert.Equal(t, 3, stock(t, article))

	got, err := svc.GetForUser(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusNew, got.Status)
	require.Len(t, got.LineItems, 1)
	assert.True(t, got.LineItems[0].UnitPrice.Equal(decimal.NewFromInt(80)))

}

func TestPlaceOrderOverStockLeavesStock(t *testing.T) {
	svc := newOrderService()
	article := seedOffer(t, "100", "80", 5)

	_, err := svc.PlaceOrder(context.Background(), orderapp.PlaceOrderInput{
		UserID:     "u1",
		Lines:      []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 6}},
		TotalPrice: "480",
	})
	require.ErrorIs(t, err, orderdomain.ErrInsufficientStock)
	assert.Equal(t, 5, stock(t, article))
}

func TestHiddenOffersAreNotOrderable(t *testing.T) {
	svc := newOrderService()
	ctx := context.Background()

	hiddenItem := seedOffer(t, "100", "", 5)
	_, err := pool.Exec(ctx, `UPDATE items SET is_displayed = false WHERE article_id = $1`, hiddenItem)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u1",
		Lines:      []orderdomain.CartLine{{ArticleID: hiddenItem, WarehouseID: "W1", Quantity: 1}},
		TotalPrice: "100",
	})
	require.ErrorIs(t, err, orderdomain.ErrNotAvailable)
	assert.Equal(t, 5, stock(t, hiddenItem))

	_, err = pool.Exec(ctx, `INSERT INTO warehouses (id, name, country_code, is_visible) VALUES ('WH','Hidden','PL', false)
		ON CONFLICT DO NOTHING`)
	require.NoError(t, err)
	visible := seedOffer(t, "100", "", 5)
	_, err = pool.Exec(ctx, `INSERT INTO item_prices (item_id, warehouse_id, price, quantity)
		SELECT id, 'WH', 90, 5 FROM items WHERE article_id = $1`, visible)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u1",
		Lines:      []orderdomain.CartLine{{ArticleID: visible, WarehouseID: "WH", Quantity: 1}},
		TotalPrice: "90",
	})
	require.ErrorIs(t, err, orderdomain.ErrNotAvailable)

	_, err = svc.RequestPrice(ctx, orderapp.PriceRequestInput{
		UserID:   "u1",
		Offer:    orderapp.OfferRef{ArticleID: visible, WarehouseID: "WH"},
		Quantity: 1,
	})
	require.ErrorIs(t, err, orderdomain.ErrNotAvailable)
}

func TestCancelRestoresStockInPostgres(t *testing.T) {
	svc := newOrderService()
	ctx := context.Background()
	article := seedOffer(t, "100", "", 5)

	o, err := svc.PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u1",
		Lines:      []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 4}},
		TotalPrice: "400",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stock(t, article))

	_, err = svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stock(t, article))

	_, err = svc.Cancel(ctx, "u1", o.ID)
	require.ErrorIs(t, err, orderdomain.ErrInvalidTransition)
	assert.Equal(t, 5, stock(t, article))
}

func TestIdempotencyKeyAgainstRedis(t *testing.T) {
	svc := newOrderService()
	ctx := context.Background()
	article := seedOffer(t, "50", "", 5)
	key := uuid.NewString()

	in := orderapp.PlaceOrderInput{
		UserID:         "u-idem",
		Lines:          []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 1}},
		TotalPrice:     "50",
		IdempotencyKey: key,
	}
	first, err := svc.PlaceOrder(ctx, in)
	require.NoError(t, err)

	_, err = svc.PlaceOrder(ctx, in)
	var dup *orderapp.DuplicateRequestError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.OrderID)
	assert.Equal(t, 4, stock(t, article))
}

func TestOutboxRelayPublishesToKafka(t *testing.T) {
	svc := newOrderService()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	article := seedOffer(t, "10", "", 5)
	topic := "order.events." + uuid.NewString()[:8]

	o, err := svc.PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u-relay",
		Lines:      []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 1}},
		TotalPrice: "10",
	})
	require.NoError(t, err)

	writer := orderkafka.NewWriter(env.KAddr)
	defer writer.Close()
	relay := outbox.NewRelay(log, outbox.NewPostgresStore(log, pool), outbox.NewDispatcher(log, writer, topic),
		"it-relay", outbox.WithInterval(100*time.Millisecond))
	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go func() { _ = relay.Run(relayCtx) }()

	reader := kafka.NewReader(kafka.ReaderConfig{Brokers: env.KAddr, Topic: topic, StartOffset: kafka.FirstOffset})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		require.NoError(t, err)
		if string(msg.Key) != o.ID {
			continue
		}
		var ev orderdomain.OrderPlaced
		require.NoError(t, json.Unmarshal(msg.Value, &ev))
		assert.Equal(t, o.ID, ev.OrderID)
		for _, h := range msg.Headers {
			if h.Key == outbox.EventTypeHeader {
				assert.Equal(t, orderdomain.EventOrderPlaced, string(h.Value))
			}
		}
		return
	}
}

func TestCatalogSellCounter(t *testing.T) {
	ctx := context.Background()
	article := seedOffer(t, "10", "", 5)
	repo := catalogpg.NewRepository(log, pool, "pl")
	conv := currency.NewConverter(log, currency.NewPostgresRates(pool), "PLN")
	svc := catalogapp.NewService(log, repo, conv, nil, "PL")

	item, err := repo.GetItem(ctx, article, "en")
	require.NoError(t, err)

	require.NoError(t, svc.RecordSale(ctx, []catalogapp.SaleLine{{ItemID: item.ID, Quantity: 2}}, 1))
	require.NoError(t, svc.RecordSale(ctx, []catalogapp.SaleLine{{ItemID: item.ID, Quantity: 2}}, -1))
	require.NoError(t, svc.RecordSale(ctx, []catalogapp.SaleLine{{ItemID: item.ID, Quantity: 2}}, -1))

	item, err = repo.GetItem(ctx, article, "en")
	require.NoError(t, err)
	assert.Equal(t, 0, item.SellCounter)
}

func TestPromotionFilterInSQL(t *testing.T) {
	ctx := context.Background()
	category := "promo-" + uuid.NewString()[:8]
	active := seedOffer(t, "100", "80", 5)
	expired := seedOffer(t, "100", "80", 5)
	notCheaper := seedOffer(t, "100", "120", 5)
	_, err := pool.Exec(ctx, `UPDATE items SET category_slug = $1 WHERE article_id = ANY($2)`,
		category, []string{active, expired, notCheaper})
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `UPDATE item_prices SET promo_end_date = now() - interval '1 day'
		WHERE item_id = (SELECT id FROM items WHERE article_id = $1)`, expired)
	require.NoError(t, err)

	repo := catalogpg.NewRepository(log, pool, "pl")
	now := time.Now()
	items, err := repo.ListItems(ctx, catalogapp.ItemFilter{
		Category: category, PromotionActiveAt: &now, Sort: catalogapp.SortNewest, Limit: 10,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, active, items[0].ArticleID)
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	article := seedOffer(t, "10", "", 5)
	o, err := newOrderService().PlaceOrder(ctx, orderapp.PlaceOrderInput{
		UserID:     "u-pay",
		Lines:      []orderdomain.CartLine{{ArticleID: article, WarehouseID: "W1", Quantity: 1}},
		TotalPrice: "10",
	})
	require.NoError(t, err)

	repo := paymentpg.NewRepository(log, pool)
	now := time.Now().UTC().Truncate(time.Millisecond)
	p := paymentdomain.New(uuid.NewString(), o.ID, uuid.NewString(), "PLN", 1000, now)
	require.NoError(t, repo.Save(ctx, p))

	require.NoError(t, p.Succeed(424242, 25, now.Add(time.Second)))
	require.NoError(t, repo.SaveWithOutbox(ctx, p, paymentdomain.EventPaymentSucceeded, []byte(`{}`), nil, ""))

	got, err := repo.BySession(ctx, p.SessionID)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusSuccess, got.Status)
	assert.Equal(t, int64(424242), got.ProviderOrderID)

	latest, err := repo.LatestForOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, latest.ID)

	_, err = repo.BySession(ctx, "missing")
	require.ErrorIs(t, err, paymentdomain.ErrPaymentNotFound)
}

func TestAdminItemWithNestedRecords(t *testing.T) {
	ctx := context.Background()
	db, err := gormstore.Open(log, pool)
	require.NoError(t, err)
	require.NoError(t, gormstore.Ping(ctx, db))

	_, err = pool.Exec(ctx, `INSERT INTO warehouses (id, name, country_code) VALUES ('W1','Warsaw','PL') ON CONFLICT DO NOTHING`)
	require.NoError(t, err)

	res := adminapp.NewResource[admindomain.Item]("items", log, gormstore.NewStore(db, gormstore.ItemConfig()))
	article := "ADM-" + uuid.NewString()[:8]

	created, err := res.Create(ctx, admindomain.Item{
		ArticleID:   article,
		IsDisplayed: true,
		ImageLinks:  admindomain.StringList{"https://cdn.example/a.jpg"},
		Prices:      []admindomain.ItemPrice{{WarehouseID: "W1", Price: decimal.NewFromInt(99), Quantity: 3}},
		Details:     []admindomain.ItemDetail{{Locale: "pl", Name: "Młotek"}},
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	id := fmt.Sprint(created.ID)

	updated, err := res.Update(ctx, id, admindomain.Item{
		ArticleID:   article,
		IsDisplayed: false,
		Prices:      []admindomain.ItemPrice{{WarehouseID: "W1", Price: decimal.NewFromInt(89), Quantity: 7}},
		Details:     []admindomain.ItemDetail{{Locale: "pl", Name: "Młotek"}, {Locale: "en", Name: "Hammer"}},
	})
	require.NoError(t, err)
	assert.False(t, updated.IsDisplayed)
	require.Len(t, updated.Prices, 1)
	assert.True(t, updated.Prices[0].Price.Equal(decimal.NewFromInt(89)))
	assert.Len(t, updated.Details, 2)

	_, err = res.Create(ctx, admindomain.Item{ArticleID: article})
	require.ErrorIs(t, err, adminapp.ErrConflict)

	list, err := res.List(ctx, adminapp.Query{Filters: map[string]string{"article_id": article}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, res.Delete(ctx, id))
	_, err = res.Get(ctx, id)
	require.ErrorIs(t, err, adminapp.ErrNotFound)

	_, err = res.Get(ctx, "not-a-number")
	require.ErrorIs(t, err, adminapp.ErrNotFound)
}
