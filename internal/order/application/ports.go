package application

import (
	"context"

	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

// Store is the order persistence boundary. Everything that must commit
// together runs inside InTx.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Get(ctx context.Context, id string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	FindOffer(ctx context.Context, locale string, ref OfferRef) (domain.Offer, error)
}

type Tx interface {
	// LockOffers returns the offers for keys, locking their price rows. Keys
	// without an item or price row are absent from the result.
	LockOffers(ctx context.Context, locale string, keys []domain.OfferKey) (map[domain.OfferKey]domain.Offer, error)
	InsertOrder(ctx context.Context, o domain.Order) error
	// AdjustStock adds delta to a price row's quantity and fails with
	// domain.ErrInsufficientStock if the result would be negative.
	AdjustStock(ctx context.Context, key domain.StockKey, delta int) error
	LockOrder(ctx context.Context, id string) (domain.Order, error)
	UpdateOrder(ctx context.Context, o domain.Order) error
	Append(ctx context.Context, msg outbox.Message) error
}

type IdempotencyStore interface {
	RequestKey(scope, owner, key string) string
	Reserve(ctx context.Context, key string) (bool, string, error)
	Remember(ctx context.Context, key, value string) error
	Release(ctx context.Context, key string) error
}

// OfferRef picks an offer by item id or article id plus warehouse.
type OfferRef struct {
	ItemID      int64
	ArticleID   string
	WarehouseID string
}

type ListFilter struct {
	Status domain.OrderStatus
	Limit  int
	Offset int
}
