package application

import (
	"context"

	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/payment/domain"
)

type PaymentRepository interface {
	Save(ctx context.Context, p domain.Payment) error
	SaveWithOutbox(ctx context.Context, p domain.Payment, eventType string, payload []byte, headers map[string]string, traceparent string) error
	BySession(ctx context.Context, sessionID string) (domain.Payment, error)
	LatestForOrder(ctx context.Context, orderID string) (domain.Payment, error)
}

// Gateway is the payment provider.
type Gateway interface {
	Register(ctx context.Context, req RegisterRequest) (string, error)
	RedirectURL(token string) string
	VerifyNotification(n Notification) error
	Verify(ctx context.Context, req VerifyRequest) error
}

type Orders interface {
	GetForUser(ctx context.Context, userID, orderID string) (orderdomain.Order, error)
}

// OrderProgress advances the order when a payment reaches a milestone.
type OrderProgress interface {
	OnPaymentStarted(ctx context.Context, orderID string) error
	OnPaymentSucceeded(ctx context.Context, orderID string) error
	OnPaymentFailed(ctx context.Context, orderID string) error
}

type IdempotencyStore interface {
	RequestKey(scope, owner, key string) string
	Reserve(ctx context.Context, key string) (bool, string, error)
	Remember(ctx context.Context, key, value string) error
	Release(ctx context.Context, key string) error
}

type RegisterRequest struct {
	SessionID   string
	Amount      int64
	Currency    string
	Description string
	Email       string
	Country     string
	Language    string
}

// Notification is the transaction status the provider posts back.
type Notification struct {
	MerchantID   int    `json:"merchantId"`
	PosID        int    `json:"posId"`
	SessionID    string `json:"sessionId"`
	Amount       int64  `json:"amount"`
	OriginAmount int64  `json:"originAmount"`
	Currency     string `json:"currency"`
	OrderID      int64  `json:"orderId"`
	MethodID     int    `json:"methodId"`
	Statement    string `json:"statement"`
	Sign         string `json:"sign"`
}

type VerifyRequest struct {
	SessionID string
	OrderID   int64
	Amount    int64
	Currency  string
}
