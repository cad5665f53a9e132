package domain

import orderdomain "github.com/dmehra2102/storefront/internal/order/domain"

// Outcome is a payment milestone that may move its order forward.
type Outcome string

const (
	OutcomePaymentStarted   Outcome = "payment_started"
	OutcomePaymentSucceeded Outcome = "payment_succeeded"
	OutcomePaymentFailed    Outcome = "payment_failed"
)

// Step is one order transition driven by a payment outcome. It applies only
// while the order is in one of From.
type Step struct {
	To   orderdomain.OrderStatus
	From []orderdomain.OrderStatus
}

var steps = map[Outcome]Step{
	OutcomePaymentStarted: {
		To:   orderdomain.StatusWaitingForPayment,
		From: []orderdomain.OrderStatus{orderdomain.StatusNew},
	},
	OutcomePaymentSucceeded: {
		To:   orderdomain.StatusProcessing,
		From: []orderdomain.OrderStatus{orderdomain.StatusNew, orderdomain.StatusWaitingForPayment},
	},
}

// StepFor returns the transition for outcome. A failed payment leaves the
// order as it is so the customer can retry.
func StepFor(o Outcome) (Step, bool) {
	s, ok := steps[o]
	return s, ok
}
