package paymentwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type seenStore interface {
	MarkSeen(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, scope, id string) error
}

// IdempotencyGuard remembers gateway event ids so redeliveries are acknowledged
// without being processed again.
type IdempotencyGuard struct {
	store seenStore
	ttl   time.Duration
	scope string
}

func NewIdempotencyGuard(store seenStore, ttl time.Duration, scope string) (*IdempotencyGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &IdempotencyGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports true when the event was already seen.
func (g *IdempotencyGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	first, err := g.store.MarkSeen(ctx, g.scope, eventID, g.ttl)
	if err != nil {
		return false, fmt.Errorf("mark webhook event: %w", err)
	}
	return !first, nil
}

// Delete forgets an event so a failed delivery can be retried.
func (g *IdempotencyGuard) Delete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Forget(ctx, g.scope, eventID)
}
