// Package inventory owns the stock column of product variants. Every change is a
// single conditional UPDATE so concurrent writers can never drive stock negative.
package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
)

// Ledger decrements and restores variant stock.
type Ledger interface {
	WithTx(tx *gorm.DB) Ledger
	// TryDecrement removes qty units if at least qty are available. It reports
	// false, with no error, when stock is short or the variant does not exist.
	TryDecrement(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	// Restore adds qty units back. It reports false, with no error, when the
	// variant row no longer exists.
	Restore(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
}

type ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger builds a stock ledger bound to the provided DB.
func NewLedger(db *gorm.DB) Ledger {
	return &ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *ledger) WithTx(tx *gorm.DB) Ledger {
	if tx == nil {
		return l
	}
	return &ledger{db: tx, now: l.now}
}

func (l *ledger) TryDecrement(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if err := validateQty(variantID, qty); err != nil {
		return false, err
	}
	result := l.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ? AND stock >= ?", variantID, qty).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock - ?", qty),
			"updated_at": l.now(),
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "decrement stock")
	}
	return result.RowsAffected == 1, nil
}

func (l *ledger) Restore(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	if err := validateQty(variantID, qty); err != nil {
		return false, err
	}
	result := l.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Updates(map[string]any{
			"stock":      gorm.Expr("stock + ?", qty),
			"updated_at": l.now(),
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "restore stock")
	}
	return result.RowsAffected == 1, nil
}

func validateQty(variantID uuid.UUID, qty int) error {
	if variantID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "variant id is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	return nil
}
