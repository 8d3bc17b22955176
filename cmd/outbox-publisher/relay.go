package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/health"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox/routing"
)

const (
	publishTimeout = 15 * time.Second
	idleCeiling    = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID) error
	RecordFailure(tx *gorm.DB, id uuid.UUID, cause error) error
	DeadLetter(tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error, attempts int) error
}

type resolver interface {
	Resolve(row models.OutboxEvent) (*routing.Delivery, error)
}

// topicPublisher is the part of a Pub/Sub publisher the relay drives.
type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
	ResumePublish(orderingKey string)
}

type RelayParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	Store      eventStore
	Routes     resolver
	Publishers func(topic string) topicPublisher
	Checks     health.Checks
}

// Relay moves committed order events from outbox_events to Pub/Sub. Events
// for one order keep their commit order: a failed publish holds back the rest
// of that order's events until the next pass.
type Relay struct {
	logg       *logger.Logger
	db         txRunner
	store      eventStore
	routes     resolver
	publishers func(topic string) topicPublisher
	checks     health.Checks

	batchSize   int
	maxAttempts int
	interval    time.Duration
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database is required")
	case p.Store == nil:
		return nil, errors.New("outbox store is required")
	case p.Routes == nil:
		return nil, errors.New("routing table is required")
	case p.Publishers == nil:
		return nil, errors.New("publisher lookup is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		store:       p.Store,
		routes:      p.Routes,
		publishers:  p.Publishers,
		checks:      p.Checks,
		batchSize:   p.Outbox.BatchSize,
		maxAttempts: p.Outbox.MaxAttempts,
		interval:    p.Outbox.PollInterval,
	}
	if r.batchSize <= 0 {
		r.batchSize = 50
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 10
	}
	if r.interval <= 0 {
		r.interval = 500 * time.Millisecond
	}
	return r, nil
}

// Run polls until ctx is done. It refuses to start while a dependency is down.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checks.Err(ctx); err != nil {
		r.logg.Error(ctx, "outbox relay dependencies unavailable", err)
		return fmt.Errorf("dependencies unavailable: %w", err)
	}

	wait := r.interval
	for {
		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay pass failed", err)
			wait = min(wait*2, idleCeiling)
		case n > 0:
			wait = r.interval
			continue
		default:
			wait = r.interval
		}

		timer := time.NewTimer(wait + rand.N(jitterWindow))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// drain runs one pass over a claimed batch and reports how many rows it saw.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var claimed int
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim: %w", err)
		}
		claimed = len(rows)

		held := map[uuid.UUID]bool{}
		for _, row := range rows {
			if held[row.OrderID] {
				continue
			}
			ok, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			if !ok {
				held[row.OrderID] = true
			}
		}
		return nil
	})
	return claimed, err
}

// deliver publishes one row. It returns false when the row stays queued for a
// retry; the error is reserved for bookkeeping failures.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (bool, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     row.ID.String(),
		"order_id":      row.OrderID.String(),
		"event_type":    row.EventType,
		"attempt_count": row.AttemptCount,
	})

	d, err := r.routes.Resolve(row)
	if err != nil {
		return true, r.retire(ctx, tx, row, enums.DeadLetterNonRetryable, err, row.AttemptCount)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id": d.Envelope.EventID,
		"topic":    d.Route.Topic,
		"priority": d.Route.Priority,
	})

	pubErr := r.publish(ctx, d, row.Payload)
	attempts := row.AttemptCount + 1
	switch {
	case pubErr == nil:
		if err := r.store.MarkPublished(tx, row.ID); err != nil {
			return false, fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		if d.Route.Priority == enums.PriorityUrgent {
			r.logg.Warn(ctx, "order event needs staff attention")
		} else {
			r.logg.Info(ctx, "order event published")
		}
		return true, nil
	case routing.IsPermanent(pubErr):
		return true, r.retire(ctx, tx, row, enums.DeadLetterNonRetryable, pubErr, attempts)
	case attempts >= r.maxAttempts:
		return true, r.retire(ctx, tx, row, enums.DeadLetterMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", attempts, pubErr), attempts)
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", pubErr.Error()), "order event publish failed, will retry")
	if err := r.store.RecordFailure(tx, row.ID, pubErr); err != nil {
		return false, fmt.Errorf("record failure %s: %w", row.ID, err)
	}
	return false, nil
}

func (r *Relay) publish(ctx context.Context, d *routing.Delivery, body []byte) error {
	pub := r.publishers(d.Route.Topic)
	if pub == nil {
		return &routing.PermanentError{Err: fmt.Errorf("no publisher for topic %s", d.Route.Topic)}
	}
	key := d.OrderID.String()

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := pub.Publish(ctx, &gcppubsub.Message{
		Data:        body,
		Attributes:  d.Attributes(),
		OrderingKey: key,
	})
	if err != nil {
		// The publisher pauses a key after a failure until told to resume.
		pub.ResumePublish(key)
	}
	return err
}

func (r *Relay) retire(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.DeadLetterReason, cause error, attempts int) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"dead_letter_reason": reason,
		"error":              cause.Error(),
	}), "order event dead-lettered")
	if err := r.store.DeadLetter(tx, row, reason, cause, attempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	return nil
}

// gcpTopic adapts *pubsub.Publisher so Publish blocks for the server ack.
type gcpTopic struct {
	p *gcppubsub.Publisher
}

func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	return t.p.Publish(ctx, msg).Get(ctx)
}

func (t gcpTopic) ResumePublish(key string) {
	t.p.ResumePublish(key)
}
