package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/pagination"
)

const noteSeparator = "\n"

type repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, now: r.now}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) CreateOrderLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("variant_id ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := r.FindOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	lines, err := r.FindOrderLines(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{Order: *order, Lines: lines}, nil
}

// FindByIdempotencyKey returns nil, nil when no order carries the key.
func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListUserOrders(ctx context.Context, userID uuid.UUID, query ListQuery) ([]models.Order, *pagination.Cursor, error) {
	return r.ListOrders(ctx, OrderFilters{UserID: &userID}, query)
}

func (r *repository) ListOrders(ctx context.Context, filters OrderFilters, query ListQuery) ([]models.Order, *pagination.Cursor, error) {
	limit := pagination.ClampLimit(query.Limit)
	q := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		q = q.Where("user_id = ?", *filters.UserID)
	}
	if query.Cursor != nil {
		q = q.Where("(created_at, id) <= (?, ?)", query.Cursor.CreatedAt, query.Cursor.ID)
	}

	var orders []models.Order
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&orders).Error; err != nil {
		return nil, nil, err
	}

	page, next := pagination.Cut(orders, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return page, next, nil
}

func (r *repository) TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{}
	for column, value := range updates {
		values[column] = value
	}
	values["status"] = to
	values["updated_at"] = r.now()
	if from == enums.OrderStatusPending {
		values["expires_at"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, from).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) CancelExpired(ctx context.Context, cutoff time.Time, note string) ([]models.Order, error) {
	var cancelled []models.Order
	result := r.db.WithContext(ctx).
		Model(&cancelled).
		Clauses(clause.Returning{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", enums.OrderStatusPending, cutoff).
		Updates(map[string]any{
			"status":     enums.OrderStatusCancelled,
			"expires_at": nil,
			"notes":      AppendNote(note),
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	return cancelled, nil
}

// AppendNote builds an expression that appends note to the existing notes column.
func AppendNote(note string) clause.Expr {
	return gorm.Expr("CASE WHEN notes IS NULL OR notes = '' THEN ? ELSE notes || ? END", note, noteSeparator+note)
}
