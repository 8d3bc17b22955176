package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
)

// OrderLineDTO is the API shape of one line snapshot.
type OrderLineDTO struct {
	ID             uuid.UUID `json:"id"`
	VariantID      uuid.UUID `json:"variant_id"`
	ProductName    string    `json:"product_name"`
	Size           *string   `json:"size,omitempty"`
	Color          *string   `json:"color,omitempty"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	UnitPrice      string    `json:"unit_price"`
	LineTotalCents int64     `json:"line_total_cents"`
}

// OrderDTO is the API shape of an order, with lines when loaded.
type OrderDTO struct {
	ID         uuid.UUID         `json:"id"`
	UserID     uuid.UUID         `json:"user_id"`
	Status     enums.OrderStatus `json:"status"`
	TotalCents int64             `json:"total_cents"`
	Total      string            `json:"total"`
	Currency   string            `json:"currency"`
	GatewayRef *string           `json:"gateway_ref,omitempty"`
	ReceiptURL *string           `json:"receipt_url,omitempty"`
	Notes      *string           `json:"notes,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	PaidAt     *time.Time        `json:"paid_at,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Lines      []OrderLineDTO    `json:"lines,omitempty"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// FormatCents renders minor units as a fixed two-decimal amount, e.g. 1999 -> "19.99".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2)
}

// NewOrderDTO maps an order header.
func NewOrderDTO(order models.Order) OrderDTO {
	return OrderDTO{
		ID:         order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TotalCents: order.TotalCents,
		Total:      FormatCents(order.TotalCents),
		Currency:   order.Currency,
		GatewayRef: order.GatewayRef,
		ReceiptURL: order.ReceiptURL,
		Notes:      order.Notes,
		ExpiresAt:  order.ExpiresAt,
		PaidAt:     order.PaidAt,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

// NewOrderDetailDTO maps an order with its lines.
func NewOrderDetailDTO(detail OrderDetail) OrderDTO {
	dto := NewOrderDTO(detail.Order)
	dto.Lines = make([]OrderLineDTO, 0, len(detail.Lines))
	for _, line := range detail.Lines {
		dto.Lines = append(dto.Lines, OrderLineDTO{
			ID:             line.ID,
			VariantID:      line.VariantID,
			ProductName:    line.ProductName,
			Size:           line.Size,
			Color:          line.Color,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
			UnitPrice:      FormatCents(line.UnitPriceCents),
			LineTotalCents: line.LineTotalCents,
		})
	}
	return dto
}
