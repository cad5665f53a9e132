package domain

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrNotAvailable       = errors.New("item not available in selected warehouse")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrDeliveryIDRequired = errors.New("delivery id is required for DELIVERY status")
)

// StockError names the article whose requested quantity exceeds stock.
type StockError struct {
	ArticleID   string
	WarehouseID string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for article %s in warehouse %s: requested %d, available %d",
		e.ArticleID, e.WarehouseID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// NotAvailableError names an article with no item or no price row for the warehouse.
type NotAvailableError struct {
	ArticleID   string
	WarehouseID string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("article %s not available in selected warehouse %s", e.ArticleID, e.WarehouseID)
}

func (e *NotAvailableError) Unwrap() error { return ErrNotAvailable }
