// Package boot holds the start-up sequence shared by every familyhub binary.
package boot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/familyhub-backend/internal/catalog"
	"github.com/angelmondragon/familyhub-backend/internal/inventory"
	"github.com/angelmondragon/familyhub-backend/internal/orders"
	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/db"
	"github.com/angelmondragon/familyhub-backend/pkg/instance"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/metrics"
	"github.com/angelmondragon/familyhub-backend/pkg/migrate"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
	"github.com/angelmondragon/familyhub-backend/pkg/redis"
)

// Process is a started binary: its config, its logger and the resources it
// has to close on the way out.
type Process struct {
	Name string
	Cfg  *config.Config
	Log  *logger.Logger

	closers []func() error
}

// Start loads .env and the FAMILYHUB_* environment and builds the process
// logger. A bad config ends the process.
func Start(name string) *Process {
	logg := logger.New(logger.Options{ServiceName: name})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	return &Process{
		Name: name,
		Cfg:  cfg,
		Log: logger.New(logger.Options{
			ServiceName: name,
			Level:       logger.ParseLevel(cfg.Log.Level),
			WarnStack:   cfg.Log.WarnStack,
			Format:      cfg.Log.Format,
		}),
	}
}

// Context is canceled on SIGINT or SIGTERM and carries the process log fields.
func (p *Process) Context() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = p.Log.WithFields(ctx, map[string]any{
		"env":      p.Cfg.App.Env,
		"instance": instance.GetID(),
	})
	return ctx, stop
}

// Must ends the process when err is set.
func (p *Process) Must(ctx context.Context, what string, err error) {
	if err == nil {
		return
	}
	p.Log.Error(ctx, what, err)
	p.Close()
	os.Exit(1)
}

func (p *Process) onClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.Log.Error(context.Background(), "close resource", err)
		}
	}
	p.closers = nil
}

// OpenDB connects to the database and, in dev, applies pending migrations.
func (p *Process) OpenDB(ctx context.Context) *db.Client {
	client, err := db.New(ctx, p.Cfg.DB, p.Log)
	p.Must(ctx, "failed to bootstrap database", err)
	p.onClose(client.Close)
	p.Must(ctx, "failed to run dev migrations", migrate.AutoMigrate(ctx, p.Cfg, client, p.Log))
	return client
}

func (p *Process) OpenRedis(ctx context.Context) *redis.Client {
	if p.Cfg.Redis.URL == "" {
		p.Must(ctx, "failed to bootstrap redis", errors.New("FAMILYHUB_REDIS_URL is not set"))
	}
	client, err := redis.New(ctx, p.Cfg.Redis, p.Log)
	p.Must(ctx, "failed to bootstrap redis", err)
	p.onClose(client.Close)
	return client
}

// Orders wires the order service onto the shared database client.
func (p *Process) Orders(client *db.Client, registry prometheus.Registerer) (orders.Service, error) {
	conn := client.DB()
	return orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(conn),
		Tx:         client,
		Ledger:     inventory.NewLedger(conn),
		Catalog:    catalog.NewReader(conn),
		Outbox:     outbox.NewWriter(outbox.NewStore(conn), p.Log),
		Metrics:    metrics.NewOrderMetrics(registry),
		Logger:     p.Log,
		PendingTTL: p.Cfg.Orders.PendingTTL,
		MaxLines:   p.Cfg.Orders.MaxLines,
		Currency:   p.Cfg.Orders.Currency,
	})
}

// Serve runs srv until ctx is done, then gives in-flight requests grace to
// finish.
func Serve(ctx context.Context, srv *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen on %s: %w", srv.Addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s: %w", srv.Addr, err)
	}
	return <-errCh
}
