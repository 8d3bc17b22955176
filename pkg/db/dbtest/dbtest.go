// Package dbtest opens throwaway SQLite databases carrying the order schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/familyhub-backend/pkg/db"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
)

var schema = []string{
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		base_price_cents INTEGER NOT NULL CHECK (base_price_cents >= 0),
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE product_variants (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		sku TEXT NOT NULL UNIQUE,
		size TEXT,
		color TEXT,
		price_cents INTEGER,
		stock INTEGER NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT ck_product_variants_stock_non_negative CHECK (stock >= 0)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		idempotency_key TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
		currency TEXT NOT NULL DEFAULT 'USD',
		gateway_ref TEXT,
		receipt_url TEXT,
		notes TEXT,
		expires_at DATETIME,
		paid_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CONSTRAINT ux_orders_idempotency_key UNIQUE (idempotency_key),
		CONSTRAINT ck_orders_expires_only_pending CHECK (expires_at IS NULL OR status = 'PENDING')
	)`,
	`CREATE TABLE order_lines (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id),
		variant_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		size TEXT,
		color TEXT,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents INTEGER NOT NULL,
		line_total_cents INTEGER NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a client over a private in-memory database with the schema applied.
func Open(t testing.TB) *db.Client {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_foreign_keys=1", name, uuid.NewString()[:8])
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return db.Wrap(conn)
}

// VariantSeed describes a variant row to insert.
type VariantSeed struct {
	ProductName    string
	BasePriceCents int64
	ProductActive  bool
	PriceCents     *int64
	Size           *string
	Color          *string
	Stock          int
	Active         bool
}

// SeedVariant inserts a product and one variant, returning the variant.
func SeedVariant(t testing.TB, client *db.Client, seed VariantSeed) models.ProductVariant {
	t.Helper()

	if seed.ProductName == "" {
		seed.ProductName = "Hub Tee"
	}
	product := models.Product{
		ID:             uuid.New(),
		Name:           seed.ProductName,
		BasePriceCents: seed.BasePriceCents,
		Active:         seed.ProductActive,
	}
	require.NoError(t, client.DB().Select("*").Create(&product).Error)

	variant := models.ProductVariant{
		ID:         uuid.New(),
		ProductID:  product.ID,
		SKU:        "SKU-" + uuid.NewString()[:8],
		Size:       seed.Size,
		Color:      seed.Color,
		PriceCents: seed.PriceCents,
		Stock:      seed.Stock,
		Active:     seed.Active,
	}
	require.NoError(t, client.DB().Omit("Product").Select("*").Create(&variant).Error)
	return variant
}

// Stock reads the current stock of a variant.
func Stock(t testing.TB, client *db.Client, variantID uuid.UUID) int {
	t.Helper()
	var variant models.ProductVariant
	require.NoError(t, client.DB().Select("stock").Where("id = ?", variantID).Take(&variant).Error)
	return variant.Stock
}

// OutboxEvents returns every queued outbox row ordered by creation.
func OutboxEvents(t testing.TB, client *db.Client) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, client.DB().Order("created_at ASC").Order("id ASC").Find(&rows).Error)
	return rows
}
