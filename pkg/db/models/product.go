package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the merchandise catalog entry that variants hang off.
type Product struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name           string    `gorm:"column:name;not null"`
	Description    *string   `gorm:"column:description"`
	BasePriceCents int64     `gorm:"column:base_price_cents;not null"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductVariant is a purchasable SKU. Stock is only mutated through the
// inventory ledger's conditional updates.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SKU        string    `gorm:"column:sku;not null"`
	Size       *string   `gorm:"column:size"`
	Color      *string   `gorm:"column:color"`
	PriceCents *int64    `gorm:"column:price_cents"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	Active     bool      `gorm:"column:active;not null;default:true"`
	Product    *Product  `gorm:"foreignKey:ProductID"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ProductVariant) TableName() string {
	return "product_variants"
}
