package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/familyhub-backend/api/routes"
	"github.com/angelmondragon/familyhub-backend/internal/boot"
	paymentwebhook "github.com/angelmondragon/familyhub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/familyhub-backend/pkg/metrics"
)

const shutdownTimeout = 15 * time.Second

func main() {
	p := boot.Start("api")
	defer p.Close()
	ctx, stop := p.Context()
	defer stop()

	dbClient := p.OpenDB(ctx)
	redisClient := p.OpenRedis(ctx)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ordersSvc, err := p.Orders(dbClient, registry)
	p.Must(ctx, "failed to create orders service", err)

	paymentService, err := paymentwebhook.NewService(paymentwebhook.ServiceParams{Orders: ordersSvc, Logger: p.Log})
	p.Must(ctx, "failed to create payment webhook service", err)
	paymentGuard, err := paymentwebhook.NewIdempotencyGuard(redisClient, p.Cfg.Payments.IdempotencyTTL, "payment-webhook")
	p.Must(ctx, "failed to create payment webhook guard", err)
	if p.Cfg.Payments.WebhookSecret == "" {
		p.Log.Warn(ctx, "payment webhook secret not configured; callbacks will be rejected")
	}

	// PORT is set by the platform and wins over FAMILYHUB_APP_PORT.
	port := os.Getenv("PORT")
	if port == "" {
		port = p.Cfg.App.Port
	}
	server := &http.Server{
		Addr: ":" + port,
		Handler: routes.NewRouter(
			p.Cfg,
			p.Log,
			dbClient,
			redisClient,
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			metrics.NewHTTPMetrics(registry),
			ordersSvc,
			paymentService,
			paymentGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx = p.Log.WithField(ctx, "addr", server.Addr)
	p.Log.Info(ctx, "starting api server")
	p.Must(ctx, "api server stopped unexpectedly", boot.Serve(ctx, server, shutdownTimeout))
	p.Log.Info(ctx, "api server shut down gracefully")
}
