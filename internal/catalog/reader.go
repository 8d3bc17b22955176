// Package catalog gives the order engine a read-only, point-in-time view of variants.
package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
)

// VariantSnapshot is what cart validation needs to know about one variant.
type VariantSnapshot struct {
	VariantID          uuid.UUID
	SKU                string
	Active             bool
	ProductActive      bool
	ProductName        string
	Size               *string
	Color              *string
	OverridePriceCents *int64
	BasePriceCents     int64
	Stock              int
}

// UnitPriceCents is the override price when present, otherwise the product base price.
func (v VariantSnapshot) UnitPriceCents() int64 {
	if v.OverridePriceCents != nil {
		return *v.OverridePriceCents
	}
	return v.BasePriceCents
}

// Purchasable reports whether both the variant and its product are active.
func (v VariantSnapshot) Purchasable() bool {
	return v.Active && v.ProductActive
}

// Reader loads variant snapshots. Missing ids are simply absent from the result.
type Reader interface {
	WithTx(tx *gorm.DB) Reader
	FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]VariantSnapshot, error)
}

type reader struct {
	db *gorm.DB
}

// NewReader builds a catalog reader bound to the provided DB.
func NewReader(db *gorm.DB) Reader {
	return &reader{db: db}
}

func (r *reader) WithTx(tx *gorm.DB) Reader {
	if tx == nil {
		return r
	}
	return &reader{db: tx}
}

func (r *reader) FindVariants(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]VariantSnapshot, error) {
	out := make(map[uuid.UUID]VariantSnapshot, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var variants []models.ProductVariant
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Where("id IN ?", ids).
		Find(&variants).Error; err != nil {
		return nil, err
	}
	for _, variant := range variants {
		snapshot := VariantSnapshot{
			VariantID:          variant.ID,
			SKU:                variant.SKU,
			Active:             variant.Active,
			Size:               variant.Size,
			Color:              variant.Color,
			OverridePriceCents: variant.PriceCents,
			Stock:              variant.Stock,
		}
		if variant.Product != nil {
			snapshot.ProductActive = variant.Product.Active
			snapshot.ProductName = variant.Product.Name
			snapshot.BasePriceCents = variant.Product.BasePriceCents
		}
		out[variant.ID] = snapshot
	}
	return out, nil
}
