package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrOrderNotPayable  = errors.New("order cannot be paid in its current state")
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrAmountMismatch   = errors.New("notified amount or currency does not match payment")
	ErrAlreadySettled   = errors.New("payment already settled")
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// Payment is one attempt to pay an order through the provider. Amount is in
// minor units of Currency.
type Payment struct {
	ID              string
	OrderID         string
	Status          Status
	Currency        string
	Amount          int64
	Method          int
	SessionID       string
	ProviderToken   string
	ProviderOrderID int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func New(id, orderID, sessionID, currency string, amount int64, now time.Time) Payment {
	return Payment{
		ID:        id,
		OrderID:   orderID,
		Status:    StatusPending,
		Currency:  currency,
		Amount:    amount,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p Payment) Matches(amount int64, currency string) bool {
	return p.Amount == amount && p.Currency == currency
}

func (p *Payment) Succeed(providerOrderID int64, method int, now time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadySettled, p.ID, p.Status)
	}
	p.Status = StatusSuccess
	p.ProviderOrderID = providerOrderID
	p.Method = method
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Fail(now time.Time) error {
	if p.Status != StatusPending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadySettled, p.ID, p.Status)
	}
	p.Status = StatusFailed
	p.UpdatedAt = now
	return nil
}
