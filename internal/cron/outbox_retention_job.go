package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

type publishedPurger interface {
	PurgePublished(tx *gorm.DB, cutoff time.Time) (int64, error)
}

// OutboxRetentionJobParams configure the published-event cleanup.
type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Store  publishedPurger
	Days   int
}

// NewOutboxRetentionJob builds the job that drops order events published more
// than Days ago. Unpublished events are kept whatever their age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Store == nil {
		return nil, fmt.Errorf("outbox store required")
	}
	days := params.Days
	if days <= 0 {
		days = 30
	}
	return &outboxRetentionJob{
		logg:  params.Logger,
		store: params.Store,
		keep:  time.Duration(days) * 24 * time.Hour,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

type outboxRetentionJob struct {
	logg  *logger.Logger
	store publishedPurger
	keep  time.Duration
	now   func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.keep)
	n, err := j.store.PurgePublished(nil, cutoff)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": n,
	}), "published order events purged")
	return nil
}
