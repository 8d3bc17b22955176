package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/familyhub-backend/internal/boot"
	"github.com/angelmondragon/familyhub-backend/internal/cron"
	"github.com/angelmondragon/familyhub-backend/pkg/metrics"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
)

func main() {
	p := boot.Start("cron-worker")
	defer p.Close()
	ctx, stop := p.Context()
	defer stop()

	dbClient := p.OpenDB(ctx)
	redisClient := p.OpenRedis(ctx)
	registry := prometheus.NewRegistry()

	ordersSvc, err := p.Orders(dbClient, registry)
	p.Must(ctx, "failed to create orders service", err)

	expiryJob, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{Logger: p.Log, Orders: ordersSvc})
	p.Must(ctx, "failed to create order expiry job", err)
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger: p.Log,
		Store:  outbox.NewStore(dbClient.DB()),
		Days:   p.Cfg.Outbox.RetentionDays,
	})
	p.Must(ctx, "failed to create outbox retention job", err)

	lock, err := cron.NewRedisLock(redisClient, "cron-worker:"+p.Cfg.App.Env, p.Cfg.Cron.LockTTL)
	p.Must(ctx, "failed to create cron lock", err)

	scheduler, err := cron.NewScheduler(cron.SchedulerParams{
		Logger:   p.Log,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(registry),
		Interval: p.Cfg.Cron.Interval,
		Jobs:     []cron.Job{expiryJob, retentionJob},
	})
	p.Must(ctx, "failed to create cron scheduler", err)

	// metrics only; the worker serves no API traffic
	metricsServer := &http.Server{
		Addr:              ":" + p.Cfg.App.Port,
		Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	p.Log.Info(ctx, "starting cron worker")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return boot.Serve(gctx, metricsServer, 5*time.Second)
	})
	p.Must(ctx, "cron worker stopped unexpectedly", g.Wait())
	p.Log.Info(ctx, "cron worker shut down gracefully")
}
