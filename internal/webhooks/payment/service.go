package paymentwebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/internal/orders"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

// Event is the gateway callback body.
type Event struct {
	EventID    string                 `json:"event_id"`
	Type       enums.PaymentEventType `json:"type"`
	OrderID    uuid.UUID              `json:"order_id"`
	GatewayRef *string                `json:"gateway_ref,omitempty"`
	ReceiptURL *string                `json:"receipt_url,omitempty"`
}

// ParseEvent decodes and validates a callback body.
func ParseEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment event")
	}
	if event.EventID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event_id is required")
	}
	if !event.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment event type")
	}
	if event.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id is required")
	}
	return &event, nil
}

type paymentOrders interface {
	MarkPaid(ctx context.Context, input orders.MarkPaidInput) (*models.Order, error)
	FailPayment(ctx context.Context, input orders.FailPaymentInput) (*models.Order, error)
	RecordLatePayment(ctx context.Context, input orders.LatePaymentInput) (*models.Order, error)
}

type ServiceParams struct {
	Orders paymentOrders
	Logger *logger.Logger
}

// Service routes gateway callbacks to the order lifecycle engine.
type Service struct {
	orders paymentOrders
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent applies the callback. A state conflict is acknowledged rather than
// returned so the gateway stops redelivering an event that can never apply.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment event required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"order_id":   event.OrderID.String(),
		"event_id":   event.EventID,
		"event_type": event.Type,
	})

	var err error
	switch event.Type {
	case enums.PaymentEventSucceeded:
		var order *models.Order
		order, err = s.orders.MarkPaid(ctx, orders.MarkPaidInput{
			OrderID:    event.OrderID,
			GatewayRef: event.GatewayRef,
			ReceiptURL: event.ReceiptURL,
		})
		if err == nil && order.Status == enums.OrderStatusRequiresRefund {
			s.logg.Warn(ctx, "payment captured for an order that could not be fulfilled")
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// Money was taken for an order that is no longer pending. If the order
			// is closed, record it so staff refund it.
			_, err = s.orders.RecordLatePayment(ctx, orders.LatePaymentInput{
				OrderID:    event.OrderID,
				GatewayRef: event.GatewayRef,
				ReceiptURL: event.ReceiptURL,
			})
		}
	case enums.PaymentEventFailed:
		_, err = s.orders.FailPayment(ctx, orders.FailPaymentInput{
			OrderID:    event.OrderID,
			GatewayRef: event.GatewayRef,
		})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment event type")
	}

	if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		s.logg.Warn(s.logg.WithField(ctx, "reason", pkgerrors.As(err).Message()), "payment event ignored")
		return nil
	}
	return err
}
