package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	"github.com/angelmondragon/familyhub-backend/pkg/pagination"
)

// Repository defines persistence operations for the orders and order_lines tables.
// Gating reads must run on the same transaction handle as the write they gate.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderLines(ctx context.Context, lines []models.OrderLine) error
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
	FindOrderDetail(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, query ListQuery) ([]models.Order, *pagination.Cursor, error)
	ListOrders(ctx context.Context, filters OrderFilters, query ListQuery) ([]models.Order, *pagination.Cursor, error)
	// TransitionStatus applies updates only if the row is still in from. It reports
	// whether the guard matched.
	TransitionStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	// CancelExpired cancels every PENDING order whose expires_at is strictly before
	// cutoff and returns the rows it changed.
	CancelExpired(ctx context.Context, cutoff time.Time, note string) ([]models.Order, error)
}

// ListQuery carries a normalized page request.
type ListQuery struct {
	Limit  int
	Cursor *pagination.Cursor
}

// OrderFilters narrow the admin order listing.
type OrderFilters struct {
	Status *enums.OrderStatus
	UserID *uuid.UUID
}

// OrderDetail is an order header plus its line snapshots.
type OrderDetail struct {
	Order models.Order
	Lines []models.OrderLine
}
