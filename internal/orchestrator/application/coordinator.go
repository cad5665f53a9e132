package application

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/storefront/internal/orchestrator/domain"
	orderdomain "github.com/dmehra2102/storefront/internal/order/domain"
)

// OrderAdvancer moves an order to a new status when it is currently in one of
// from. It reports false when the order was elsewhere.
type OrderAdvancer interface {
	AdvanceStatus(ctx context.Context, orderID string, to orderdomain.OrderStatus, from ...orderdomain.OrderStatus) (orderdomain.Order, bool, error)
}

// Coordinator maps payment outcomes onto order statuses. Replayed outcomes are
// no-ops.
type Coordinator struct {
	log    *slog.Logger
	orders OrderAdvancer
}

func NewCoordinator(log *slog.Logger, orders OrderAdvancer) *Coordinator {
	return &Coordinator{log: log, orders: orders}
}

func (c *Coordinator) OnPaymentStarted(ctx context.Context, orderID string) error {
	return c.apply(ctx, orderID, domain.OutcomePaymentStarted)
}

func (c *Coordinator) OnPaymentSucceeded(ctx context.Context, orderID string) error {
	return c.apply(ctx, orderID, domain.OutcomePaymentSucceeded)
}

func (c *Coordinator) OnPaymentFailed(ctx context.Context, orderID string) error {
	return c.apply(ctx, orderID, domain.OutcomePaymentFailed)
}

func (c *Coordinator) apply(ctx context.Context, orderID string, outcome domain.Outcome) error {
	step, ok := domain.StepFor(outcome)
	if !ok {
		c.log.Info("payment outcome leaves order unchanged", "order_id", orderID, "outcome", outcome)
		return nil
	}

	o, moved, err := c.orders.AdvanceStatus(ctx, orderID, step.To, step.From...)
	if err != nil {
		c.log.Error("advance order failed", "order_id", orderID, "outcome", outcome, "err", err)
		return err
	}
	if !moved {
		c.log.Info("order already past payment step", "order_id", orderID, "outcome", outcome, "status", o.Status)
		return nil
	}
	c.log.Info("order advanced", "order_id", orderID, "outcome", outcome, "status", o.Status)
	return nil
}
