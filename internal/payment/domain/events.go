package domain

import "time"

const (
	EventPaymentStarted   = "PaymentStarted"
	EventPaymentSucceeded = "PaymentSucceeded"
	EventPaymentFailed    = "PaymentFailed"
)

type PaymentStarted struct {
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	Amount     int64     `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurredAt"`
}

type PaymentSucceeded struct {
	PaymentID       string    `json:"paymentId"`
	OrderID         string    `json:"orderId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	ProviderOrderID int64     `json:"providerOrderId"`
	OccurredAt      time.Time `json:"occurredAt"`
}

type PaymentFailed struct {
	PaymentID  string    `json:"paymentId"`
	OrderID    string    `json:"orderId"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}
