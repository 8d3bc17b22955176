package orders

import "github.com/angelmondragon/familyhub-backend/pkg/enums"

// Trigger names who may drive a transition.
type Trigger string

const (
	TriggerPayment Trigger = "payment"
	TriggerExpiry  Trigger = "expiry"
	TriggerAdmin   Trigger = "admin"
)

// Transition is one allowed edge of the order lifecycle.
type Transition struct {
	From    enums.OrderStatus
	To      enums.OrderStatus
	Trigger Trigger
}

// RestoresStock reports whether applying the edge must return committed stock.
func (t Transition) RestoresStock() bool {
	return t.To == enums.OrderStatusCancelled && t.From.HoldsStock()
}

// CANCELLED and REFUNDED have no outgoing edges.
var lifecycle = []Transition{
	{From: enums.OrderStatusPending, To: enums.OrderStatusPaid, Trigger: TriggerPayment},
	{From: enums.OrderStatusPaid, To: enums.OrderStatusRequiresRefund, Trigger: TriggerPayment},
	{From: enums.OrderStatusPending, To: enums.OrderStatusCancelled, Trigger: TriggerPayment},
	{From: enums.OrderStatusPending, To: enums.OrderStatusCancelled, Trigger: TriggerExpiry},
	{From: enums.OrderStatusPending, To: enums.OrderStatusCancelled, Trigger: TriggerAdmin},
	{From: enums.OrderStatusPaid, To: enums.OrderStatusFulfilled, Trigger: TriggerAdmin},
	{From: enums.OrderStatusPaid, To: enums.OrderStatusCancelled, Trigger: TriggerAdmin},
	{From: enums.OrderStatusFulfilled, To: enums.OrderStatusCancelled, Trigger: TriggerAdmin},
	{From: enums.OrderStatusRequiresRefund, To: enums.OrderStatusCancelled, Trigger: TriggerAdmin},
	{From: enums.OrderStatusRequiresRefund, To: enums.OrderStatusRefunded, Trigger: TriggerAdmin},
}

// Lookup returns the edge from -> to for the trigger, if one exists.
func Lookup(trigger Trigger, from, to enums.OrderStatus) (Transition, bool) {
	for _, t := range lifecycle {
		if t.Trigger == trigger && t.From == from && t.To == to {
			return t, true
		}
	}
	return Transition{}, false
}

// AdminTargets lists the statuses an admin may move an order in from into.
func AdminTargets(from enums.OrderStatus) []enums.OrderStatus {
	var out []enums.OrderStatus
	for _, t := range lifecycle {
		if t.Trigger == TriggerAdmin && t.From == from {
			out = append(out, t.To)
		}
	}
	return out
}

// IsTerminal reports whether no edge leaves status. A closed order accepts no
// admin changes and a payment arriving for it is recorded for refund.
func IsTerminal(status enums.OrderStatus) bool {
	for _, t := range lifecycle {
		if t.From == status {
			return false
		}
	}
	return true
}
