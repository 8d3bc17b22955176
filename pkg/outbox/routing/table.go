// Package routing decides where each outbox row is published and decodes its
// payload before it leaves the process.
package routing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox/payloads"
)

// Route is the destination of one event type.
type Route struct {
	Topic    string
	Priority enums.DeliveryPriority
}

// Delivery is a row that passed validation and is ready to publish.
type Delivery struct {
	Route    Route
	Type     enums.OutboxEventType
	OrderID  uuid.UUID
	Envelope outbox.Envelope
	Payload  any
}

// Attributes are the Pub/Sub message attributes for the delivery.
func (d *Delivery) Attributes() map[string]string {
	return map[string]string{
		"event_id":       d.Envelope.EventID,
		"event_type":     string(d.Type),
		"order_id":       d.OrderID.String(),
		"priority":       string(d.Route.Priority),
		"schema_version": fmt.Sprint(d.Envelope.Version),
	}
}

// PermanentError marks a row that will never publish no matter how often it
// is retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

var decoders = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:        func() any { return &payloads.OrderCreatedEvent{} },
	enums.EventOrderPaid:           func() any { return &payloads.OrderPaidEvent{} },
	enums.EventOrderStatusChanged:  func() any { return &payloads.OrderStatusChangedEvent{} },
	enums.EventOrderExpired:        func() any { return &payloads.OrderExpiredEvent{} },
	enums.EventPaymentFailed:       func() any { return &payloads.PaymentFailedEvent{} },
	enums.EventOrderRefundRequired: func() any { return &payloads.OrderRefundRequiredEvent{} },
	enums.EventPaymentAfterClose:   func() any { return &payloads.PaymentAfterCloseEvent{} },
}

// Table maps event types to routes. Events that need a person go to the
// notification topic at urgent priority; the rest feed the orders topic.
type Table struct {
	routes map[enums.OutboxEventType]Route
}

func NewTable(cfg config.PubSubConfig) (*Table, error) {
	if cfg.OrdersTopic == "" || cfg.NotificationTopic == "" {
		return nil, errors.New("orders and notification topics are required")
	}
	t := &Table{routes: make(map[enums.OutboxEventType]Route, len(decoders))}
	for _, typ := range enums.OutboxEventTypes() {
		if _, ok := decoders[typ]; !ok {
			return nil, fmt.Errorf("no payload decoder for %s", typ)
		}
		route := Route{Topic: cfg.OrdersTopic, Priority: enums.PriorityRoutine}
		if typ.NeedsStaff() {
			route = Route{Topic: cfg.NotificationTopic, Priority: enums.PriorityUrgent}
		}
		t.routes[typ] = route
	}
	return t, nil
}

// Topics returns the orders topic first, then the notification topic.
func (t *Table) Topics() []string {
	var out []string
	seen := map[string]bool{}
	for _, typ := range enums.OutboxEventTypes() {
		topic := t.routes[typ].Topic
		if !seen[topic] {
			seen[topic] = true
			out = append(out, topic)
		}
	}
	return out
}

// Resolve checks a row and decodes its payload. Every error it returns is
// permanent.
func (t *Table) Resolve(row models.OutboxEvent) (*Delivery, error) {
	route, ok := t.routes[row.EventType]
	if !ok {
		return nil, permanent("no route for event type %q", row.EventType)
	}
	if row.AggregateType != enums.AggregateOrder {
		return nil, permanent("event %s is not about an order (%q)", row.ID, row.AggregateType)
	}
	if row.OrderID == uuid.Nil {
		return nil, permanent("event %s has no order id", row.ID)
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	if env.OrderID != uuid.Nil && env.OrderID != row.OrderID {
		return nil, permanent("event %s envelope names order %s, row names %s", row.ID, env.OrderID, row.OrderID)
	}

	payload := decoders[row.EventType]()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", row.EventType, err)
	}

	return &Delivery{
		Route:    route,
		Type:     row.EventType,
		OrderID:  row.OrderID,
		Envelope: env,
		Payload:  payload,
	}, nil
}
