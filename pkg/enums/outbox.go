package enums

// OutboxAggregateType is stored in outbox_events.aggregate_type. Orders are the
// only aggregate that emits events.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

// OutboxEventType is stored in outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderCreated        OutboxEventType = "order_created"
	EventOrderPaid           OutboxEventType = "order_paid"
	EventOrderRefundRequired OutboxEventType = "order_refund_required"
	EventOrderStatusChanged  OutboxEventType = "order_status_changed"
	EventOrderExpired        OutboxEventType = "order_expired"
	EventPaymentFailed       OutboxEventType = "payment_failed"
	// EventPaymentAfterClose records money captured for an order that had
	// already left PENDING, typically one the expiry sweep cancelled.
	EventPaymentAfterClose OutboxEventType = "payment_captured_after_close"
)

// OutboxEventTypes lists every event type in declaration order.
func OutboxEventTypes() []OutboxEventType {
	return []OutboxEventType{
		EventOrderCreated,
		EventOrderPaid,
		EventOrderRefundRequired,
		EventOrderStatusChanged,
		EventOrderExpired,
		EventPaymentFailed,
		EventPaymentAfterClose,
	}
}

func (e OutboxEventType) IsValid() bool {
	for _, known := range OutboxEventTypes() {
		if known == e {
			return true
		}
	}
	return false
}

// NeedsStaff reports whether the event asks a person to move money back.
func (e OutboxEventType) NeedsStaff() bool {
	return e == EventOrderRefundRequired || e == EventPaymentAfterClose
}

// DeliveryPriority is attached to every published order event.
type DeliveryPriority string

const (
	PriorityRoutine DeliveryPriority = "routine"
	PriorityUrgent  DeliveryPriority = "urgent"
)

// DeadLetterReason is stored in outbox_dlq.error_reason.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)
