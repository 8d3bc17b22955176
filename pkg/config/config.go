package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Prefix namespaces every variable, e.g. FAMILYHUB_ORDER_PENDING_TTL.
const Prefix = "FAMILYHUB"

type Config struct {
	App      AppConfig
	Log      LogConfig
	DB       DBConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Orders   OrdersConfig `envconfig:"ORDER"`
	Cron     CronConfig
	Payments PaymentsConfig
	GCP      GCPConfig
	PubSub   PubSubConfig `envconfig:"PUBSUB"`
	Outbox   OutboxConfig
}

// Load reads the environment and reports every invalid setting at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env         string   `required:"true"`
	Port        string   `required:"true"`
	CORSOrigins []string `split_words:"true" default:"http://localhost:3000,https://familyhub.app,https://admin.familyhub.app"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, "dev")
}

type LogConfig struct {
	Level     string `default:"info"`
	WarnStack bool   `split_words:"true"`
	Format    string `default:"json"`
}

type DBConfig struct {
	DSN             string        `required:"true"`
	Driver          string        `default:"postgres"`
	MaxOpenConns    int           `split_words:"true" default:"20"`
	MaxIdleConns    int           `split_words:"true" default:"10"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"1h"`
	ConnMaxIdleTime time.Duration `split_words:"true" default:"10m"`
	// AutoMigrate applies the embedded migrations at boot; honoured in dev only.
	AutoMigrate bool `split_words:"true"`
}

// RedisConfig is needed by the api and the cron worker; the outbox
// publisher runs without it.
type RedisConfig struct {
	URL          string
	PoolSize     int           `split_words:"true" default:"10"`
	MinIdleConns int           `split_words:"true" default:"2"`
	DialTimeout  time.Duration `split_words:"true" default:"5s"`
	ReadTimeout  time.Duration `split_words:"true" default:"5s"`
	WriteTimeout time.Duration `split_words:"true" default:"5s"`
}

type JWTConfig struct {
	Secret            string `required:"true"`
	Issuer            string `required:"true"`
	ExpirationMinutes int    `split_words:"true" default:"60"`
}

// OrdersConfig tunes the order lifecycle engine.
type OrdersConfig struct {
	PendingTTL time.Duration `split_words:"true" default:"30m"`
	MaxLines   int           `split_words:"true" default:"50"`
	Currency   string        `default:"USD"`
	// RateLimit caps order creation per member per minute; zero disables it.
	RateLimit int64 `split_words:"true" default:"20"`
}

type CronConfig struct {
	Interval time.Duration `default:"5m"`
	LockTTL  time.Duration `split_words:"true" default:"4m"`
}

type PaymentsConfig struct {
	WebhookSecret  string        `split_words:"true"`
	IdempotencyTTL time.Duration `split_words:"true" default:"720h"`
}

type GCPConfig struct {
	ProjectID string `split_words:"true"`
}

type PubSubConfig struct {
	OrdersTopic        string `split_words:"true" default:"fh-order-events"`
	NotificationTopic  string `split_words:"true" default:"fh-notification-events"`
	OrdersSubscription string `split_words:"true"`
}

type OutboxConfig struct {
	BatchSize     int           `split_words:"true" default:"50"`
	PollInterval  time.Duration `split_words:"true" default:"500ms"`
	MaxAttempts   int           `split_words:"true" default:"10"`
	RetentionDays int           `split_words:"true" default:"30"`
}

func (c *Config) validate() error {
	var errs error
	check := func(ok bool, name, msg string) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("%s_%s %s", Prefix, name, msg))
		}
	}
	check(strings.TrimSpace(c.DB.DSN) != "", "DB_DSN", "is required")
	check(c.Orders.PendingTTL > 0, "ORDER_PENDING_TTL", "must be positive")
	check(c.Orders.MaxLines > 0, "ORDER_MAX_LINES", "must be positive")
	check(len(strings.TrimSpace(c.Orders.Currency)) == 3, "ORDER_CURRENCY", "must be a 3-letter code")
	check(c.Orders.RateLimit >= 0, "ORDER_RATE_LIMIT", "must not be negative")
	check(c.Cron.Interval > 0, "CRON_INTERVAL", "must be positive")
	check(c.Outbox.BatchSize > 0, "OUTBOX_BATCH_SIZE", "must be positive")
	check(c.Outbox.MaxAttempts > 0, "OUTBOX_MAX_ATTEMPTS", "must be positive")
	check(c.DB.Driver == "postgres" || c.DB.Driver == "sqlite", "DB_DRIVER", "must be postgres or sqlite")
	return errs
}
