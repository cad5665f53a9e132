package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

const idempotencyScope = "orders"

var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// DuplicateRequestError is returned when an Idempotency-Key was already used
// to place an order.
type DuplicateRequestError struct {
	OrderID string
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("order %s already placed with this idempotency key", e.OrderID)
}

type PlaceOrderInput struct {
	UserID             string
	Locale             string
	Lines              []domain.CartLine
	TotalPrice         string
	OriginalTotalPrice *decimal.Decimal
	DeliveryID         string
	Comment            string
	Customer           *domain.Customer
	IdempotencyKey     string
}

type PriceRequestInput struct {
	UserID   string
	Locale   string
	Offer    OfferRef
	Quantity int
	Comment  string
	Customer *domain.Customer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

type Service struct {
	log   *slog.Logger
	store Store
	idem  IdempotencyStore
	now   func() time.Time
	newID func() string
}

// NewService wires the order use cases. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewService(log *slog.Logger, store Store, idem IdempotencyStore, opts ...Option) *Service {
	s := &Service{
		log:   log,
		store: store,
		idem:  idem,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	var idemKey string
	if s.idem != nil && in.IdempotencyKey != "" {
		idemKey = s.idem.RequestKey(idempotencyScope, in.UserID, in.IdempotencyKey)
		fresh, orderID, err := s.idem.Reserve(ctx, idemKey)
		if err != nil {
			return domain.Order{}, fmt.Errorf("reserve idempotency key: %w", err)
		}
		if !fresh {
			if orderID == "" {
				return domain.Order{}, ErrRequestInFlight
			}
			return domain.Order{}, &DuplicateRequestError{OrderID: orderID}
		}
	}

	o, err := s.placeOrder(ctx, in)
	if idemKey != "" {
		if err != nil {
			if rerr := s.idem.Release(ctx, idemKey); rerr != nil {
				s.log.Error("release idempotency key failed", "key", idemKey, "err", rerr)
			}
		} else if rerr := s.idem.Remember(ctx, idemKey, o.ID); rerr != nil {
			s.log.Error("remember idempotency key failed", "key", idemKey, "order_id", o.ID, "err", rerr)
		}
	}
	return o, err
}

func (s *Service) placeOrder(ctx context.Context, in PlaceOrderInput) (domain.Order, error) {
	if len(in.Lines) == 0 {
		return domain.Order{}, domain.ErrEmptyCart
	}

	var placed domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		offers, err := tx.LockOffers(ctx, in.Locale, domain.CartKeys(in.Lines))
		if err != nil {
			return err
		}

		p, err := domain.Place(domain.PlaceParams{
			ID:         s.newID(),
			UserID:     in.UserID,
			Lines:      in.Lines,
			TotalPrice: in.TotalPrice,
			DeliveryID: in.DeliveryID,
			Comment:    in.Comment,
			Customer:   in.Customer,
			Now:        s.now(),
		}, offers)
		if err != nil {
			return err
		}

		if in.OriginalTotalPrice != nil && domain.TotalMismatch(*in.OriginalTotalPrice, p.Order.OriginalTotalPrice) {
			s.log.Warn("client total differs from computed total",
				"user_id", in.UserID,
				"client_total", in.OriginalTotalPrice.String(),
				"computed_total", p.Order.OriginalTotalPrice.String(),
				"total_price", in.TotalPrice,
			)
		}

		if err := tx.InsertOrder(ctx, p.Order); err != nil {
			return err
		}
		for key, qty := range p.Decrement {
			if err := tx.AdjustStock(ctx, key, -qty); err != nil {
				return err
			}
		}
		if err := s.appendEvent(ctx, tx, p.Order.ID, domain.EventOrderPlaced, domain.NewOrderPlaced(p.Order)); err != nil {
			return err
		}
		placed = p.Order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order placed",
		"order_id", placed.ID,
		"user_id", placed.UserID,
		"lines", len(placed.LineItems),
		"original_total_price", placed.OriginalTotalPrice.String(),
	)
	return placed, nil
}

func (s *Service) RequestPrice(ctx context.Context, in PriceRequestInput) (domain.Order, error) {
	offer, err := s.store.FindOffer(ctx, in.Locale, in.Offer)
	if err != nil {
		return domain.Order{}, err
	}

	o, err := domain.NewPriceRequest(s.newID(), in.UserID, offer, in.Quantity, in.Comment, in.Customer, s.now())
	if err != nil {
		return domain.Order{}, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		return s.appendEvent(ctx, tx, o.ID, domain.EventOrderPlaced, domain.NewOrderPlaced(o))
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("price request created", "order_id", o.ID, "article_id", offer.ArticleID, "warehouse_id", offer.Warehouse.ID)
	return o, nil
}

// Cancel is the customer initiated cancellation of their own NEW order.
func (s *Service) Cancel(ctx context.Context, userID, orderID string) (domain.Order, error) {
	var out domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return domain.ErrOrderNotFound
		}

		from := o.Status
		released, err := o.Cancel(s.now())
		if err != nil {
			return err
		}
		if err := s.commitStatus(ctx, tx, o, from, released); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order cancelled by customer", "order_id", out.ID, "user_id", userID)
	return out, nil
}

// SetStatus is the back-office status change, also used by payment callbacks.
func (s *Service) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, deliveryID string) (domain.Order, error) {
	var out domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		from := o.Status
		released, err := o.SetStatus(status, deliveryID, s.now())
		if err != nil {
			return err
		}
		if err := s.commitStatus(ctx, tx, o, from, released); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order status changed", "order_id", out.ID, "status", out.Status, "delivery_id", out.DeliveryID)
	return out, nil
}

// AdvanceStatus moves the order to status only while it is in one of from,
// checked under the row lock. The bool reports whether it moved.
func (s *Service) AdvanceStatus(ctx context.Context, orderID string, status domain.OrderStatus, from ...domain.OrderStatus) (domain.Order, bool, error) {
	var (
		out   domain.Order
		moved bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out = o
		if !slices.Contains(from, o.Status) {
			return nil
		}

		prev := o.Status
		released, err := o.SetStatus(status, "", s.now())
		if err != nil {
			return err
		}
		if err := s.commitStatus(ctx, tx, o, prev, released); err != nil {
			return err
		}
		out, moved = o, true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, err
	}
	return out, moved, nil
}

func (s *Service) commitStatus(ctx context.Context, tx Tx, o domain.Order, from domain.OrderStatus, released map[domain.StockKey]int) error {
	if err := tx.UpdateOrder(ctx, o); err != nil {
		return err
	}
	for key, qty := range released {
		if err := tx.AdjustStock(ctx, key, qty); err != nil {
			return err
		}
	}
	return s.appendEvent(ctx, tx, o.ID, domain.EventOrderStatusChanged, domain.NewOrderStatusChanged(o, from))
}

func (s *Service) GetForUser(ctx context.Context, userID, orderID string) (domain.Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if o.UserID != userID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, orderID string) (domain.Order, error) {
	return s.store.Get(ctx, orderID)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.List(ctx, filter)
}

func (s *Service) appendEvent(ctx context.Context, tx Tx, orderID, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return tx.Append(ctx, outbox.Message{
		AggregateType: "order",
		AggregateID:   orderID,
		Type:          eventType,
		Payload:       payload,
		Headers:       map[string]string{"source": "storefront"},
		Traceparent:   tracing.Traceparent(ctx),
	})
}
