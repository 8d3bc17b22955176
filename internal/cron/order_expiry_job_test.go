package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

type fakeSweeper struct {
	count int
	err   error
	calls int
}

func (f *fakeSweeper) CancelExpired(context.Context) (int, error) {
	f.calls++
	return f.count, f.err
}

func TestOrderExpiryJobCallsSweeper(t *testing.T) {
	sweeper := &fakeSweeper{count: 3}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Orders: sweeper,
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	if job.Name() != "order-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestOrderExpiryJobPropagatesError(t *testing.T) {
	boom := errors.New("db down")
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Orders: &fakeSweeper{err: boom},
	})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	if err := job.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped sweep error, got %v", err)
	}
}

func TestOrderExpiryJobRequiresDependencies(t *testing.T) {
	if _, err := NewOrderExpiryJob(OrderExpiryJobParams{}); err == nil {
		t.Fatal("expected logger requirement error")
	}
	if _, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: logger.New(logger.Options{Output: io.Discard})}); err == nil {
		t.Fatal("expected sweeper requirement error")
	}
}
