package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/pkg/enums"
)

// Order is one checkout attempt. Rows are never deleted.
type Order struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	IdempotencyKey *string           `gorm:"column:idempotency_key"`
	Status         enums.OrderStatus `gorm:"column:status;type:order_status;not null;default:'PENDING'"`
	TotalCents     int64             `gorm:"column:total_cents;not null"`
	Currency       string            `gorm:"column:currency;not null;default:'USD'"`
	GatewayRef     *string           `gorm:"column:gateway_ref"`
	ReceiptURL     *string           `gorm:"column:receipt_url"`
	Notes          *string           `gorm:"column:notes"`
	ExpiresAt      *time.Time        `gorm:"column:expires_at"`
	PaidAt         *time.Time        `gorm:"column:paid_at"`
	CreatedAt      time.Time         `gorm:"column:created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at"`
}

// OrderLine is the immutable price/quantity snapshot captured at creation.
type OrderLine struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	VariantID      uuid.UUID `gorm:"column:variant_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;not null"`
	Size           *string   `gorm:"column:size"`
	Color          *string   `gorm:"column:color"`
	Quantity       int       `gorm:"column:quantity;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int64     `gorm:"column:line_total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
}
