package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/familyhub-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/familyhub-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/familyhub-backend/api/controllers/webhooks"
	"github.com/angelmondragon/familyhub-backend/api/middleware"
	"github.com/angelmondragon/familyhub-backend/internal/orders"
	paymentwebhook "github.com/angelmondragon/familyhub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/db"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/health"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/metrics"
)

// RedisStore is the slice of the redis client the HTTP layer depends on.
type RedisStore interface {
	MarkSeen(ctx context.Context, scope, id string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, scope, id string) error
	Replay(ctx context.Context, scope string) (string, bool, error)
	Remember(ctx context.Context, scope, payload string, ttl time.Duration) error
	Hit(ctx context.Context, bucket string, window time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

const (
	statusReplayTTL = 7 * 24 * time.Hour
	expireReplayTTL = 24 * time.Hour
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	metricsHandler http.Handler,
	httpMetrics *metrics.HTTPMetrics,
	ordersSvc orders.Service,
	paymentWebhookService webhookcontrollers.PaymentWebhookService,
	paymentWebhookGuard *paymentwebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.AccessLog(logg, httpMetrics),
	)

	orderCreatePolicy := middleware.NewRateLimitPolicy("order-create", time.Minute, cfg.Orders.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, health.Checks{
			"db":    dbP,
			"redis": redisStore,
		}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.Ping("public"))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.PaymentWebhook(paymentWebhookService, paymentWebhookGuard, cfg.Payments.WebhookSecret, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/ping", controllers.Ping("member"))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(ordersSvc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersSvc, logg))
			r.With(middleware.RateLimit(orderCreatePolicy, redisStore, logg)).Post("/", ordercontrollers.Create(ordersSvc, logg))
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin, logg))
		r.Get("/ping", controllers.Ping("admin"))

		r.Route("/v1/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminOrders(ordersSvc, logg))
			r.With(middleware.Replay(redisStore, expireReplayTTL, logg)).Post("/expire", controllers.AdminExpireOrders(ordersSvc, logg))
			r.Get("/{orderId}", controllers.AdminOrderDetail(ordersSvc, logg))
			r.With(middleware.Replay(redisStore, statusReplayTTL, logg)).Post("/{orderId}/status", controllers.AdminUpdateOrderStatus(ordersSvc, logg))
		})
	})

	return r
}
