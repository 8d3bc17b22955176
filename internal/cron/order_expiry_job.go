package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

type expirySweeper interface {
	CancelExpired(ctx context.Context) (int, error)
}

// OrderExpiryJobParams configure the pending order sweeper.
type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders expirySweeper
}

// NewOrderExpiryJob builds the job that cancels PENDING orders past expires_at.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	return &orderExpiryJob{logg: params.Logger, orders: params.Orders}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders expirySweeper
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	count, err := j.orders.CancelExpired(ctx)
	if err != nil {
		return fmt.Errorf("order expiry: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "orders_cancelled", count), "order expiry sweep complete")
	return nil
}
