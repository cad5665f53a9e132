package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/storefront/internal/currency"
	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

const notificationScope = "p24"

var eventHeaders = map[string]string{"source": "storefront"}

// Initiated is what the customer needs to continue at the provider.
type Initiated struct {
	Payment     domain.Payment
	RedirectURL string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

type Service struct {
	log      *slog.Logger
	repo     PaymentRepository
	gateway  Gateway
	orders   Orders
	progress OrderProgress
	idem     IdempotencyStore
	currency string
	now      func() time.Time
	newID    func() string
}

// NewService charges orders in baseCurrency. idem may be nil, which disables
// notification deduplication.
func NewService(log *slog.Logger, repo PaymentRepository, gateway Gateway, orders Orders, progress OrderProgress, idem IdempotencyStore, baseCurrency string, opts ...Option) *Service {
	s := &Service{
		log:      log,
		repo:     repo,
		gateway:  gateway,
		orders:   orders,
		progress: progress,
		idem:     idem,
		currency: strings.ToUpper(baseCurrency),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate registers a transaction for the user's order and returns the
// provider redirect.
func (s *Service) Initiate(ctx context.Context, userID, orderID string) (Initiated, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if err != nil {
		return Initiated{}, err
	}
	if o.PriceRequest || (o.Status != orderdomain.StatusNew && o.Status != orderdomain.StatusWaitingForPayment) {
		return Initiated{}, fmt.Errorf("%w: order %s is %s", domain.ErrOrderNotPayable, o.ID, o.Status)
	}
	amount := currency.MinorUnits(o.OriginalTotalPrice, s.currency)
	if amount <= 0 {
		return Initiated{}, fmt.Errorf("%w: order %s has no amount", domain.ErrOrderNotPayable, o.ID)
	}

	p := domain.New(s.newID(), o.ID, s.newID(), s.currency, amount, s.now())
	if err := s.repo.Save(ctx, p); err != nil {
		return Initiated{}, err
	}

	req := RegisterRequest{
		SessionID:   p.SessionID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Description: "Order " + o.ID,
	}
	if o.Customer != nil {
		req.Email = o.Customer.Email
		req.Country = o.Customer.Country
	}
	token, err := s.gateway.Register(ctx, req)
	if err != nil {
		s.log.Error("register transaction failed", "order_id", o.ID, "payment_id", p.ID, "err", err)
		if ferr := s.fail(ctx, p, "register: "+err.Error()); ferr != nil {
			s.log.Error("mark payment failed", "payment_id", p.ID, "err", ferr)
		}
		return Initiated{}, fmt.Errorf("register transaction: %w", err)
	}

	p.ProviderToken = token
	p.UpdatedAt = s.now()
	err = s.saveEvent(ctx, p, domain.EventPaymentStarted, domain.PaymentStarted{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Amount:     p.Amount,
		Currency:   p.Currency,
		OccurredAt: p.UpdatedAt,
	})
	if err != nil {
		return Initiated{}, err
	}
	if err := s.progress.OnPaymentStarted(ctx, o.ID); err != nil {
		return Initiated{}, err
	}

	s.log.Info("payment initiated", "order_id", o.ID, "payment_id", p.ID, "amount", p.Amount, "currency", p.Currency)
	return Initiated{Payment: p, RedirectURL: s.gateway.RedirectURL(token)}, nil
}

// HandleNotification settles the payment a provider notification refers to.
// Replays of an already processed notification are accepted without effect.
func (s *Service) HandleNotification(ctx context.Context, n Notification) error {
	if err := s.gateway.VerifyNotification(n); err != nil {
		s.log.Warn("rejected payment notification", "session_id", n.SessionID, "err", err)
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	var key string
	if s.idem != nil {
		key = s.idem.RequestKey(notificationScope, n.SessionID, strconv.FormatInt(n.OrderID, 10))
		fresh, _, err := s.idem.Reserve(ctx, key)
		if err != nil {
			return fmt.Errorf("reserve notification key: %w", err)
		}
		if !fresh {
			s.log.Info("duplicate payment notification skipped", "session_id", n.SessionID)
			return nil
		}
	}

	err := s.settle(ctx, n)
	if key != "" {
		if err != nil {
			if rerr := s.idem.Release(ctx, key); rerr != nil {
				s.log.Error("release notification key failed", "key", key, "err", rerr)
			}
		} else if rerr := s.idem.Remember(ctx, key, "done"); rerr != nil {
			s.log.Error("remember notification key failed", "key", key, "err", rerr)
		}
	}
	return err
}

func (s *Service) settle(ctx context.Context, n Notification) error {
	p, err := s.repo.BySession(ctx, n.SessionID)
	if err != nil {
		return err
	}

	switch p.Status {
	case domain.StatusSuccess:
		return s.progress.OnPaymentSucceeded(ctx, p.OrderID)
	case domain.StatusFailed:
		return fmt.Errorf("%w: payment %s failed", domain.ErrAlreadySettled, p.ID)
	}

	if !p.Matches(n.Amount, n.Currency) {
		s.log.Warn("payment notification mismatch",
			"payment_id", p.ID,
			"order_id", p.OrderID,
			"expected_amount", p.Amount,
			"notified_amount", n.Amount,
			"expected_currency", p.Currency,
			"notified_currency", n.Currency,
		)
		if err := s.fail(ctx, p, "amount or currency mismatch"); err != nil {
			return err
		}
		return domain.ErrAmountMismatch
	}

	err = s.gateway.Verify(ctx, VerifyRequest{
		SessionID: p.SessionID,
		OrderID:   n.OrderID,
		Amount:    p.Amount,
		Currency:  p.Currency,
	})
	if err != nil {
		return fmt.Errorf("verify transaction: %w", err)
	}

	if err := p.Succeed(n.OrderID, n.MethodID, s.now()); err != nil {
		return err
	}
	err = s.saveEvent(ctx, p, domain.EventPaymentSucceeded, domain.PaymentSucceeded{
		PaymentID:       p.ID,
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		Currency:        p.Currency,
		ProviderOrderID: p.ProviderOrderID,
		OccurredAt:      p.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if err := s.progress.OnPaymentSucceeded(ctx, p.OrderID); err != nil {
		return err
	}

	s.log.Info("payment succeeded", "payment_id", p.ID, "order_id", p.OrderID, "provider_order_id", p.ProviderOrderID)
	return nil
}

// LatestForOrder returns the newest payment of an order the user owns.
func (s *Service) LatestForOrder(ctx context.Context, userID, orderID string) (domain.Payment, error) {
	if _, err := s.orders.GetForUser(ctx, userID, orderID); err != nil {
		return domain.Payment{}, err
	}
	return s.repo.LatestForOrder(ctx, orderID)
}

func (s *Service) fail(ctx context.Context, p domain.Payment, reason string) error {
	if err := p.Fail(s.now()); err != nil {
		if errors.Is(err, domain.ErrAlreadySettled) {
			return nil
		}
		return err
	}
	err := s.saveEvent(ctx, p, domain.EventPaymentFailed, domain.PaymentFailed{
		PaymentID:  p.ID,
		OrderID:    p.OrderID,
		Reason:     reason,
		OccurredAt: p.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return s.progress.OnPaymentFailed(ctx, p.OrderID)
}

func (s *Service) saveEvent(ctx context.Context, p domain.Payment, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.repo.SaveWithOutbox(ctx, p, eventType, payload, eventHeaders, tracing.Traceparent(ctx))
}
