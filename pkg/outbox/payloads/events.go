package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/pkg/enums"
)

// OrderLine is the line snapshot carried by order events.
type OrderLine struct {
	VariantID      uuid.UUID `json:"variant_id"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
}

// OrderCreatedEvent is emitted when a PENDING order is placed.
type OrderCreatedEvent struct {
	OrderID    uuid.UUID   `json:"order_id"`
	UserID     uuid.UUID   `json:"user_id"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
	ExpiresAt  time.Time   `json:"expires_at"`
	Lines      []OrderLine `json:"lines"`
}

// OrderPaidEvent is emitted when payment is confirmed and stock committed.
type OrderPaidEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	TotalCents int64     `json:"total_cents"`
	GatewayRef *string   `json:"gateway_ref,omitempty"`
	PaidAt     time.Time `json:"paid_at"`
}

// OrderRefundRequiredEvent tells staff that a paid order could not be fulfilled from stock.
type OrderRefundRequiredEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	UserID           uuid.UUID `json:"user_id"`
	TotalCents       int64     `json:"total_cents"`
	GatewayRef       *string   `json:"gateway_ref,omitempty"`
	FailingVariantID uuid.UUID `json:"failing_variant_id"`
	Reason           string    `json:"reason"`
}

// OrderStatusChangedEvent is emitted for admin-driven transitions.
type OrderStatusChangedEvent struct {
	OrderID       uuid.UUID         `json:"order_id"`
	UserID        uuid.UUID         `json:"user_id"`
	From          enums.OrderStatus `json:"from"`
	To            enums.OrderStatus `json:"to"`
	Note          string            `json:"note,omitempty"`
	StockRestored bool              `json:"stock_restored"`
	// Variants deleted since the order was paid; their units were not put back.
	SkippedVariants []uuid.UUID `json:"skipped_variants,omitempty"`
}

// OrderExpiredEvent is emitted per order cancelled by the expiry sweep.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// PaymentFailedEvent is emitted when the gateway reports a failed payment.
type PaymentFailedEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	GatewayRef *string   `json:"gateway_ref,omitempty"`
}

// PaymentAfterCloseEvent reports money captured for an order that was already
// cancelled. Staff must refund it by hand.
type PaymentAfterCloseEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalCents int64             `json:"total_cents"`
	GatewayRef string            `json:"gateway_ref"`
	ReceiptURL *string           `json:"receipt_url,omitempty"`
}
