// Package memory is an in-process order store used by tests and local runs
// without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/storefront/internal/order/application"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

// Store keeps orders and offers in memory. InTx works on a copy that is
// swapped in only when fn succeeds.
type Store struct {
	mu     sync.Mutex
	offers map[domain.OfferKey]domain.Offer
	orders map[string]domain.Order
	events []outbox.Message
}

type tx struct {
	offers map[domain.OfferKey]domain.Offer
	orders map[string]domain.Order
	events []outbox.Message
}

func NewStore(offers ...domain.Offer) *Store {
	s := &Store{offers: map[domain.OfferKey]domain.Offer{}, orders: map[string]domain.Order{}}
	for _, o := range offers {
		s.offers[o.Key()] = o
	}
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		offers: make(map[domain.OfferKey]domain.Offer, len(s.offers)),
		orders: make(map[string]domain.Order, len(s.orders)),
		events: append([]outbox.Message(nil), s.events...),
	}
	for k, v := range s.offers {
		t.offers[k] = v
	}
	for k, v := range s.orders {
		t.orders[k] = v
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.offers, s.orders, s.events = t.offers, t.orders, t.events
	return nil
}

func (s *Store) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	return s.filter(func(o domain.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) List(_ context.Context, f application.ListFilter) ([]domain.Order, error) {
	out := s.filter(func(o domain.Order) bool { return f.Status == "" || o.Status == f.Status })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) FindOffer(_ context.Context, _ string, ref application.OfferRef) (domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offers {
		if o.Warehouse.ID != ref.WarehouseID {
			continue
		}
		if (ref.ItemID != 0 && o.ItemID == ref.ItemID) || (ref.ArticleID != "" && o.ArticleID == ref.ArticleID) {
			return o, nil
		}
	}
	return domain.Offer{}, &domain.NotAvailableError{ArticleID: ref.ArticleID, WarehouseID: ref.WarehouseID}
}

// Stock returns the current quantity of an offer.
func (s *Store) Stock(articleID, warehouseID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offers[domain.OfferKey{ArticleID: articleID, WarehouseID: warehouseID}].Quantity
}

// Events returns the outbox messages committed so far.
func (s *Store) Events() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Message(nil), s.events...)
}

// filter returns matching orders, newest first.
func (s *Store) filter(keep func(domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (t *tx) LockOffers(_ context.Context, _ string, keys []domain.OfferKey) (map[domain.OfferKey]domain.Offer, error) {
	out := map[domain.OfferKey]domain.Offer{}
	for _, k := range keys {
		if o, ok := t.offers[k]; ok {
			out[k] = o
		}
	}
	return out, nil
}

func (t *tx) InsertOrder(_ context.Context, o domain.Order) error {
	t.orders[o.ID] = o
	return nil
}

func (t *tx) AdjustStock(_ context.Context, key domain.StockKey, delta int) error {
	for k, o := range t.offers {
		if o.StockKey() != key {
			continue
		}
		if o.Quantity+delta < 0 {
			return domain.ErrInsufficientStock
		}
		o.Quantity += delta
		t.offers[k] = o
		return nil
	}
	return domain.ErrNotAvailable
}

func (t *tx) LockOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (t *tx) UpdateOrder(_ context.Context, o domain.Order) error {
	t.orders[o.ID] = o
	return nil
}

func (t *tx) Append(_ context.Context, msg outbox.Message) error {
	t.events = append(t.events, msg)
	return nil
}

// Idempotency is an in-memory application.IdempotencyStore.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewIdempotency() *Idempotency {
	return &Idempotency{keys: map[string]string{}}
}

func (m *Idempotency) RequestKey(scope, owner, key string) string {
	return scope + ":" + owner + ":" + key
}

func (m *Idempotency) Reserve(_ context.Context, key string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.keys[key]; ok {
		return false, v, nil
	}
	m.keys[key] = ""
	return true, "", nil
}

func (m *Idempotency) Remember(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}

func (m *Idempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
