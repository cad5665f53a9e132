// Package memory keeps payments in process for tests and local runs.
package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
)

type Repository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	events   []outbox.Message
}

func NewRepository() *Repository {
	return &Repository{payments: map[string]domain.Payment{}}
}

func (r *Repository) Save(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	return nil
}

func (r *Repository) SaveWithOutbox(_ context.Context, p domain.Payment, eventType string, payload []byte, headers map[string]string, traceparent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	r.events = append(r.events, outbox.Message{
		AggregateType: "payment",
		AggregateID:   p.OrderID,
		Type:          eventType,
		Payload:       payload,
		Headers:       headers,
		Traceparent:   traceparent,
	})
	return nil
}

func (r *Repository) BySession(_ context.Context, sessionID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.SessionID == sessionID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *Repository) LatestForOrder(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		out   domain.Payment
		found bool
	)
	for _, p := range r.payments {
		if p.OrderID != orderID {
			continue
		}
		if !found || p.CreatedAt.After(out.CreatedAt) || (p.CreatedAt.Equal(out.CreatedAt) && p.ID > out.ID) {
			out, found = p, true
		}
	}
	if !found {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return out, nil
}

// Events returns the outbox messages recorded so far.
func (r *Repository) Events() []outbox.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.Message(nil), r.events...)
}
