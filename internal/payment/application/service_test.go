package application_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/payment/application"
	"github.com/dmehra2102/storefront/internal/payment/domain"
)

type savedEvent struct {
	paymentID string
	eventType string
}

type fakeRepo struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	events   []savedEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{payments: map[string]domain.Payment{}}
}

func (r *fakeRepo) Save(_ context.Context, p domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	return nil
}

func (r *fakeRepo) SaveWithOutbox(_ context.Context, p domain.Payment, eventType string, _ []byte, _ map[string]string, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = p
	r.events = append(r.events, savedEvent{paymentID: p.ID, eventType: eventType})
	return nil
}

func (r *fakeRepo) BySession(_ context.Context, sessionID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.SessionID == sessionID {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrPaymentNotFound
}

func (r *fakeRepo) LatestForOrder(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		out   domain.Payment
		found bool
	)
	for _, p := range r.payments {
		if p.OrderID == orderID && (!found || p.CreatedAt.After(out.CreatedAt)) {
			out, found = p, true
		}
	}
	if !found {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return out, nil
}

type fakeGateway struct {
	registerErr error
	verifyErr   error
	badSign     bool
	registered  []application.RegisterRequest
	verified    []application.VerifyRequest
}

func (g *fakeGateway) Register(_ context.Context, req application.RegisterRequest) (string, error) {
	g.registered = append(g.registered, req)
	if g.registerErr != nil {
		return "", g.registerErr
	}
	return "TOKEN-" + req.SessionID, nil
}

func (g *fakeGateway) RedirectURL(token string) string {
	return "https://sandbox.przelewy24.pl/trnRequest/" + token
}

func (g *fakeGateway) VerifyNotification(application.Notification) error {
	if g.badSign {
		return errors.New("sign mismatch")
	}
	return nil
}

func (g *fakeGateway) Verify(_ context.Context, req application.VerifyRequest) error {
	g.verified = append(g.verified, req)
	return g.verifyErr
}

type fakeOrders map[string]orderdomain.Order

func (f fakeOrders) GetForUser(_ context.Context, userID, orderID string) (orderdomain.Order, error) {
	o, ok := f[orderID]
	if !ok || o.UserID != userID {
		return orderdomain.Order{}, orderdomain.ErrOrderNotFound
	}
	return o, nil
}

type fakeProgress struct {
	calls []string
}

func (p *fakeProgress) OnPaymentStarted(_ context.Context, orderID string) error {
	p.calls = append(p.calls, "started:"+orderID)
	return nil
}

func (p *fakeProgress) OnPaymentSucceeded(_ context.Context, orderID string) error {
	p.calls = append(p.calls, "succeeded:"+orderID)
	return nil
}

func (p *fakeProgress) OnPaymentFailed(_ context.Context, orderID string) error {
	p.calls = append(p.calls, "failed:"+orderID)
	return nil
}

type fakeIdem struct {
	keys map[string]string
}

func (f *fakeIdem) RequestKey(scope, owner, key string) string {
	return scope + ":" + owner + ":" + key
}

func (f *fakeIdem) Reserve(_ context.Context, key string) (bool, string, error) {
	if v, ok := f.keys[key]; ok {
		return false, v, nil
	}
	f.keys[key] = ""
	return true, "", nil
}

func (f *fakeIdem) Remember(_ context.Context, key, value string) error {
	f.keys[key] = value
	return nil
}

func (f *fakeIdem) Release(_ context.Context, key string) error {
	delete(f.keys, key)
	return nil
}

type fixture struct {
	svc      *application.Service
	repo     *fakeRepo
	gateway  *fakeGateway
	progress *fakeProgress
	idem     *fakeIdem
}

func newFixture(orders fakeOrders) *fixture {
	f := &fixture{
		repo:     newFakeRepo(),
		gateway:  &fakeGateway{},
		progress: &fakeProgress{},
		idem:     &fakeIdem{keys: map[string]string{}},
	}
	n := 0
	f.svc = application.NewService(slog.New(slog.NewTextHandler(io.Discard, nil)),
		f.repo, f.gateway, orders, f.progress, f.idem, "pln",
		application.WithClock(func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }),
		application.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return f
}

func newOrder(status orderdomain.OrderStatus) orderdomain.Order {
	return orderdomain.Order{
		ID:                 "o1",
		UserID:             "u1",
		Status:             status,
		OriginalTotalPrice: decimal.RequireFromString("160.50"),
		Customer:           &orderdomain.Customer{Email: "jan@example.pl", Country: "PL"},
	}
}

func TestInitiate(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})

	got, err := f.svc.Initiate(context.Background(), "u1", "o1")
	require.NoError(t, err)

	assert.Equal(t, "https://sandbox.przelewy24.pl/trnRequest/TOKEN-id-2", got.RedirectURL)
	assert.Equal(t, domain.StatusPending, got.Payment.Status)
	assert.Equal(t, int64(16050), got.Payment.Amount)
	assert.Equal(t, "PLN", got.Payment.Currency)
	assert.Equal(t, "TOKEN-id-2", got.Payment.ProviderToken)

	require.Len(t, f.gateway.registered, 1)
	assert.Equal(t, "jan@example.pl", f.gateway.registered[0].Email)
	assert.Equal(t, []string{"started:o1"}, f.progress.calls)
	require.Len(t, f.repo.events, 1)
	assert.Equal(t, domain.EventPaymentStarted, f.repo.events[0].eventType)
}

func TestInitiateRejectsUnpayableOrders(t *testing.T) {
	priceRequest := newOrder(orderdomain.StatusAskForPrice)
	priceRequest.PriceRequest = true

	tests := []struct {
		name  string
		order orderdomain.Order
		user  string
		want  error
	}{
		{"processing", newOrder(orderdomain.StatusProcessing), "u1", domain.ErrOrderNotPayable},
		{"cancelled", newOrder(orderdomain.StatusCancelled), "u1", domain.ErrOrderNotPayable},
		{"price request", priceRequest, "u1", domain.ErrOrderNotPayable},
		{"foreign user", newOrder(orderdomain.StatusNew), "u2", orderdomain.ErrOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(fakeOrders{"o1": tt.order})
			_, err := f.svc.Initiate(context.Background(), tt.user, "o1")
			require.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.gateway.registered)
		})
	}
}

func TestInitiateRegisterFailureMarksPaymentFailed(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})
	f.gateway.registerErr = errors.New("provider down")

	_, err := f.svc.Initiate(context.Background(), "u1", "o1")
	require.Error(t, err)

	p, err := f.repo.LatestForOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Equal(t, []string{"failed:o1"}, f.progress.calls)
}

func notificationFor(p domain.Payment) application.Notification {
	return application.Notification{
		SessionID: p.SessionID,
		Amount:    p.Amount,
		Currency:  p.Currency,
		OrderID:   998877,
		MethodID:  25,
		Sign:      "x",
	}
}

func TestHandleNotificationSucceeds(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})
	ctx := context.Background()
	started, err := f.svc.Initiate(ctx, "u1", "o1")
	require.NoError(t, err)

	n := notificationFor(started.Payment)
	require.NoError(t, f.svc.HandleNotification(ctx, n))

	p, err := f.svc.LatestForOrder(ctx, "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, p.Status)
	assert.Equal(t, int64(998877), p.ProviderOrderID)
	assert.Equal(t, 25, p.Method)
	require.Len(t, f.gateway.verified, 1)
	assert.Equal(t, int64(16050), f.gateway.verified[0].Amount)
	assert.Equal(t, []string{"started:o1", "succeeded:o1"}, f.progress.calls)

	// replay is deduplicated
	require.NoError(t, f.svc.HandleNotification(ctx, n))
	assert.Len(t, f.gateway.verified, 1)
}

func TestHandleNotificationMismatchFailsPayment(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})
	ctx := context.Background()
	started, err := f.svc.Initiate(ctx, "u1", "o1")
	require.NoError(t, err)

	n := notificationFor(started.Payment)
	n.Amount = 100
	require.ErrorIs(t, f.svc.HandleNotification(ctx, n), domain.ErrAmountMismatch)

	p, err := f.repo.BySession(ctx, started.Payment.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, p.Status)
	assert.Empty(t, f.gateway.verified)
	assert.NotContains(t, f.progress.calls, "succeeded:o1")
}

func TestHandleNotificationBadSign(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})
	f.gateway.badSign = true

	err := f.svc.HandleNotification(context.Background(), application.Notification{SessionID: "s"})
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHandleNotificationVerifyFailureCanBeRetried(t *testing.T) {
	f := newFixture(fakeOrders{"o1": newOrder(orderdomain.StatusNew)})
	ctx := context.Background()
	started, err := f.svc.Initiate(ctx, "u1", "o1")
	require.NoError(t, err)

	f.gateway.verifyErr = errors.New("timeout")
	n := notificationFor(started.Payment)
	require.Error(t, f.svc.HandleNotification(ctx, n))

	f.gateway.verifyErr = nil
	require.NoError(t, f.svc.HandleNotification(ctx, n))

	p, err := f.repo.BySession(ctx, started.Payment.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, p.Status)
}

func TestHandleNotificationUnknownSession(t *testing.T) {
	f := newFixture(fakeOrders{})
	err := f.svc.HandleNotification(context.Background(), application.Notification{SessionID: "nope"})
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}
