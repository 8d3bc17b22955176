package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

// Event is an order change to be recorded next to the change itself.
type Event struct {
	Type    enums.OutboxEventType
	OrderID uuid.UUID
	Actor   *ActorRef
	At      time.Time
	Data    any
}

// Writer appends events inside the caller's transaction, so an event exists if
// and only if its order change committed.
type Writer struct {
	store *Store
	logg  *logger.Logger
}

func NewWriter(store *Store, logg *logger.Logger) *Writer {
	return &Writer{store: store, logg: logg}
}

func (w *Writer) Append(ctx context.Context, tx *gorm.DB, event Event) error {
	if tx == nil {
		return errors.New("outbox append needs a transaction")
	}
	if !event.Type.IsValid() {
		return fmt.Errorf("unknown outbox event type %q", event.Type)
	}
	if event.OrderID == uuid.Nil {
		return errors.New("outbox event needs an order id")
	}
	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", event.Type, err)
	}
	env := Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OrderID:    event.OrderID,
		OccurredAt: at,
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.Type, err)
	}

	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.Type,
		AggregateType: enums.AggregateOrder,
		OrderID:       event.OrderID,
		Payload:       payload,
		CreatedAt:     at,
	}
	if err := w.store.insert(tx, &row); err != nil {
		return err
	}

	if w.logg != nil {
		w.logg.Debug(w.logg.WithFields(ctx, map[string]any{
			"order_id":   event.OrderID.String(),
			"event_type": event.Type,
			"event_id":   env.EventID,
		}), "order event recorded")
	}
	return nil
}
