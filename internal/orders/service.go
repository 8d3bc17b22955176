package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/familyhub-backend/internal/catalog"
	"github.com/angelmondragon/familyhub-backend/internal/inventory"
	"github.com/angelmondragon/familyhub-backend/pkg/db"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/metrics"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/familyhub-backend/pkg/pagination"
)

const (
	idempotencyKeyConstraint = "ux_orders_idempotency_key"
	maxIdempotencyKeyLength  = 255

	// ExpiryNote is appended to orders cancelled by the expiry sweep.
	ExpiryNote = "expired: payment window elapsed"
	// PaymentFailedNote is appended to orders cancelled by a failed payment.
	PaymentFailedNote = "payment failed"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventWriter interface {
	Append(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

// Service is the order lifecycle engine. Every state change goes through it.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error)
	MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error)
	FailPayment(ctx context.Context, input FailPaymentInput) (*models.Order, error)
	RecordLatePayment(ctx context.Context, input LatePaymentInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	CancelExpired(ctx context.Context) (int, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error)
	ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListOrders(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error)
}

// LineInput is one requested cart line.
type LineInput struct {
	VariantID uuid.UUID `json:"variant_id"`
	Quantity  int       `json:"quantity"`
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	UserID         uuid.UUID
	Lines          []LineInput
	Notes          *string
	IdempotencyKey *string
}

// CreateOrderResult reports whether the order was created by this call or replayed.
type CreateOrderResult struct {
	Detail   OrderDetail
	Replayed bool
}

// MarkPaidInput carries a successful payment confirmation.
type MarkPaidInput struct {
	OrderID    uuid.UUID
	GatewayRef *string
	ReceiptURL *string
}

// FailPaymentInput carries a failed payment notification.
type FailPaymentInput struct {
	OrderID    uuid.UUID
	GatewayRef *string
}

// LatePaymentInput carries a successful payment that arrived after the order closed.
type LatePaymentInput struct {
	OrderID    uuid.UUID
	GatewayRef *string
	ReceiptURL *string
}

// UpdateStatusInput is an admin-driven transition.
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Note    *string
	Actor   *outbox.ActorRef
}

// LineProblem explains why one requested line was rejected.
type LineProblem struct {
	VariantID uuid.UUID `json:"variant_id"`
	Reason    string    `json:"reason"`
	Requested int       `json:"requested,omitempty"`
	Available *int      `json:"available,omitempty"`
}

const (
	ReasonInvalidQuantity   = "invalid_quantity"
	ReasonUnknownVariant    = "unknown_variant"
	ReasonInactive          = "inactive"
	ReasonInsufficientStock = "insufficient_stock"
)

// ServiceParams wires the lifecycle engine's collaborators.
type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Ledger     inventory.Ledger
	Catalog    catalog.Reader
	Outbox     eventWriter
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	PendingTTL time.Duration
	MaxLines   int
	Currency   string
	Now        func() time.Time
}

type service struct {
	repo       Repository
	tx         txRunner
	ledger     inventory.Ledger
	catalog    catalog.Reader
	outbox     eventWriter
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	pendingTTL time.Duration
	maxLines   int
	currency   string
	now        func() time.Time
}

// NewService constructs the lifecycle engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orders repository required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory ledger required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "catalog reader required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox writer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.PendingTTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending ttl must be positive")
	}
	if params.MaxLines <= 0 {
		params.MaxLines = 50
	}
	if params.Currency == "" {
		params.Currency = "USD"
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:       params.Repository,
		tx:         params.Tx,
		ledger:     params.Ledger,
		catalog:    params.Catalog,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		pendingTTL: params.PendingTTL,
		maxLines:   params.MaxLines,
		currency:   strings.ToUpper(params.Currency),
		now:        now,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	key, err := normalizeIdempotencyKey(input.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	if key != nil {
		existing, err := s.repo.FindByIdempotencyKey(ctx, *key)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
		}
		if existing != nil {
			return s.replay(ctx, input.UserID, existing)
		}
	}

	lines, err := s.mergeLines(input.Lines)
	if err != nil {
		s.metrics.IncCreated(metrics.OutcomeRejected)
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariantID)
	}
	snapshots, err := s.catalog.FindVariants(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variants")
	}

	var problems []LineProblem
	for _, line := range lines {
		snap, ok := snapshots[line.VariantID]
		switch {
		case !ok:
			problems = append(problems, LineProblem{VariantID: line.VariantID, Reason: ReasonUnknownVariant, Requested: line.Quantity})
		case !snap.Purchasable():
			problems = append(problems, LineProblem{VariantID: line.VariantID, Reason: ReasonInactive, Requested: line.Quantity})
		case snap.Stock < line.Quantity:
			available := snap.Stock
			problems = append(problems, LineProblem{VariantID: line.VariantID, Reason: ReasonInsufficientStock, Requested: line.Quantity, Available: &available})
		}
	}
	if len(problems) > 0 {
		s.metrics.IncCreated(metrics.OutcomeRejected)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart cannot be ordered").WithDetails(problems)
	}

	now := s.now()
	expiresAt := now.Add(s.pendingTTL)
	order := &models.Order{
		ID:             uuid.New(),
		UserID:         input.UserID,
		IdempotencyKey: key,
		Status:         enums.OrderStatusPending,
		Currency:       s.currency,
		Notes:          trimmedOrNil(input.Notes),
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	orderLines := make([]models.OrderLine, 0, len(lines))
	eventLines := make([]payloads.OrderLine, 0, len(lines))
	for _, line := range lines {
		snap := snapshots[line.VariantID]
		unit := snap.UnitPriceCents()
		lineTotal := unit * int64(line.Quantity)
		order.TotalCents += lineTotal
		orderLines = append(orderLines, models.OrderLine{
			ID:             uuid.New(),
			OrderID:        order.ID,
			VariantID:      line.VariantID,
			ProductName:    snap.ProductName,
			Size:           snap.Size,
			Color:          snap.Color,
			Quantity:       line.Quantity,
			UnitPriceCents: unit,
			LineTotalCents: lineTotal,
			CreatedAt:      now,
		})
		eventLines = append(eventLines, payloads.OrderLine{
			VariantID:      line.VariantID,
			Quantity:       line.Quantity,
			UnitPriceCents: unit,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := repo.CreateOrderLines(ctx, orderLines); err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, outbox.Event{
			Type:    enums.EventOrderCreated,
			OrderID: order.ID,
			Actor:   &outbox.ActorRef{UserID: &order.UserID, Role: string(enums.MemberRoleMember)},
			At:      now,
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				TotalCents: order.TotalCents,
				Currency:   order.Currency,
				ExpiresAt:  expiresAt,
				Lines:      eventLines,
			},
		})
	})
	if err != nil {
		if key != nil && db.IsUniqueViolation(err, idempotencyKeyConstraint) {
			winner, findErr := s.repo.FindByIdempotencyKey(ctx, *key)
			if findErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "lookup idempotency key")
			}
			if winner != nil {
				return s.replay(ctx, input.UserID, winner)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	s.metrics.IncCreated(metrics.OutcomeCreated)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":    order.ID.String(),
		"user_id":     order.UserID.String(),
		"total_cents": order.TotalCents,
		"lines":       len(orderLines),
	})
	s.logg.Info(logCtx, "order created")

	return &CreateOrderResult{Detail: OrderDetail{Order: *order, Lines: orderLines}}, nil
}

func (s *service) replay(ctx context.Context, userID uuid.UUID, existing *models.Order) (*CreateOrderResult, error) {
	if existing.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used")
	}
	lines, err := s.repo.FindOrderLines(ctx, existing.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
	}
	s.metrics.IncCreated(metrics.OutcomeReplayed)
	s.logg.Debug(s.logg.WithOrderID(ctx, existing.ID.String()), "order creation replayed")
	return &CreateOrderResult{Detail: OrderDetail{Order: *existing, Lines: lines}, Replayed: true}, nil
}

// mergeLines sums duplicate variants and returns the lines ordered by variant id.
func (s *service) mergeLines(lines []LineInput) ([]LineInput, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var problems []LineProblem
	totals := map[uuid.UUID]int{}
	for _, line := range lines {
		if line.VariantID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "variant id required")
		}
		if line.Quantity <= 0 {
			problems = append(problems, LineProblem{VariantID: line.VariantID, Reason: ReasonInvalidQuantity, Requested: line.Quantity})
			continue
		}
		totals[line.VariantID] += line.Quantity
	}
	if len(problems) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").WithDetails(problems)
	}
	if len(totals) > s.maxLines {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("cart exceeds %d lines", s.maxLines))
	}

	merged := make([]LineInput, 0, len(totals))
	for variantID, qty := range totals {
		merged = append(merged, LineInput{VariantID: variantID, Quantity: qty})
	}
	sortLines(merged, func(l LineInput) uuid.UUID { return l.VariantID })
	return merged, nil
}

func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		result     *models.Order
		replayed   bool
		failedLine *models.OrderLine
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		updates := map[string]any{"paid_at": now}
		if ref := trimmedOrNil(input.GatewayRef); ref != nil {
			updates["gateway_ref"] = *ref
		}
		if receipt := trimmedOrNil(input.ReceiptURL); receipt != nil {
			updates["receipt_url"] = *receipt
		}
		ok, err := repo.TransitionStatus(ctx, input.OrderID, enums.OrderStatusPending, enums.OrderStatusPaid, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
		}
		if !ok {
			current, err := s.findOrder(ctx, repo, input.OrderID)
			if err != nil {
				return err
			}
			if current.Status == enums.OrderStatusPaid {
				result = current
				replayed = true
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and cannot be marked paid", current.Status))
		}

		lines, err := repo.FindOrderLines(ctx, input.OrderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
		}
		sortLines(lines, func(l models.OrderLine) uuid.UUID { return l.VariantID })

		ledger := s.ledger.WithTx(tx)
		committed := make([]models.OrderLine, 0, len(lines))
		for i := range lines {
			ok, err := ledger.TryDecrement(ctx, lines[i].VariantID, lines[i].Quantity)
			if err != nil {
				return err
			}
			if !ok {
				failedLine = &lines[i]
				break
			}
			committed = append(committed, lines[i])
		}

		order, err := s.findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		if failedLine == nil {
			result = order
			return s.outbox.Append(ctx, tx, outbox.Event{
				Type:    enums.EventOrderPaid,
				OrderID: order.ID,
				At:      now,
				Data: payloads.OrderPaidEvent{
					OrderID:    order.ID,
					UserID:     order.UserID,
					TotalCents: order.TotalCents,
					GatewayRef: order.GatewayRef,
					PaidAt:     now,
				},
			})
		}

		var restoreErr error
		for _, line := range committed {
			found, err := ledger.Restore(ctx, line.VariantID, line.Quantity)
			if err == nil && !found {
				err = fmt.Errorf("variant %s vanished during payment confirmation", line.VariantID)
			}
			restoreErr = multierr.Append(restoreErr, err)
		}
		if restoreErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, restoreErr, "restore committed stock")
		}

		reason := fmt.Sprintf("insufficient stock for variant %s at payment confirmation", failedLine.VariantID)
		ok, err = repo.TransitionStatus(ctx, input.OrderID, enums.OrderStatusPaid, enums.OrderStatusRequiresRefund, map[string]any{
			"notes": AppendNote(reason),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag order for refund")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed during payment confirmation")
		}
		if err := s.outbox.Append(ctx, tx, outbox.Event{
			Type:    enums.EventOrderRefundRequired,
			OrderID: order.ID,
			At:      now,
			Data: payloads.OrderRefundRequiredEvent{
				OrderID:          order.ID,
				UserID:           order.UserID,
				TotalCents:       order.TotalCents,
				GatewayRef:       order.GatewayRef,
				FailingVariantID: failedLine.VariantID,
				Reason:           reason,
			},
		}); err != nil {
			return err
		}

		result, err = s.findOrder(ctx, repo, input.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, result.ID.String())
	switch {
	case replayed:
		s.logg.Debug(logCtx, "payment confirmation replayed")
	case failedLine != nil:
		s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusPaid))
		s.metrics.IncTransition(string(enums.OrderStatusPaid), string(enums.OrderStatusRequiresRefund))
		s.metrics.IncCommitFailure()
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"from":       enums.OrderStatusPending,
			"to":         enums.OrderStatusRequiresRefund,
			"user_id":    result.UserID.String(),
			"variant_id": failedLine.VariantID.String(),
		})
		s.logg.Warn(logCtx, "stock commit failed, order requires refund")
	default:
		s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusPaid))
		s.logTransition(logCtx, result, enums.OrderStatusPending, enums.OrderStatusPaid)
	}
	return result, nil
}

func (s *service) FailPayment(ctx context.Context, input FailPaymentInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var (
		result   *models.Order
		replayed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		updates := map[string]any{"notes": AppendNote(PaymentFailedNote)}
		if ref := trimmedOrNil(input.GatewayRef); ref != nil {
			updates["gateway_ref"] = *ref
		}
		ok, err := repo.TransitionStatus(ctx, input.OrderID, enums.OrderStatusPending, enums.OrderStatusCancelled, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		order, err := s.findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		result = order
		if !ok {
			if order.Status == enums.OrderStatusCancelled {
				replayed = true
				return nil
			}
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and cannot fail payment", order.Status))
		}
		return s.outbox.Append(ctx, tx, outbox.Event{
			Type:    enums.EventPaymentFailed,
			OrderID: order.ID,
			Data: payloads.PaymentFailedEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				GatewayRef: order.GatewayRef,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderID(ctx, result.ID.String())
	if replayed {
		s.logg.Debug(logCtx, "payment failure replayed")
		return result, nil
	}
	s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusCancelled))
	s.logTransition(logCtx, result, enums.OrderStatusPending, enums.OrderStatusCancelled)
	return result, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	note := trimmedOrNil(input.Note)

	var (
		result   *models.Order
		from     enums.OrderStatus
		restored bool
		skipped  []uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		from = current.Status
		if IsTerminal(from) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s and can no longer change", from)).
				WithDetails(map[string]any{"from": from, "to": input.Status})
		}

		transition, ok := Lookup(TriggerAdmin, from, input.Status)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, input.Status)).
				WithDetails(map[string]any{"from": from, "to": input.Status, "allowed": AdminTargets(from)})
		}

		updates := map[string]any{}
		if note != nil {
			updates["notes"] = AppendNote(*note)
		}
		ok, err = repo.TransitionStatus(ctx, input.OrderID, from, input.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		if transition.RestoresStock() {
			lines, err := repo.FindOrderLines(ctx, input.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order lines")
			}
			sortLines(lines, func(l models.OrderLine) uuid.UUID { return l.VariantID })
			ledger := s.ledger.WithTx(tx)
			for _, line := range lines {
				found, err := ledger.Restore(ctx, line.VariantID, line.Quantity)
				if err != nil {
					return err
				}
				if !found {
					skipped = append(skipped, line.VariantID)
				}
			}
			restored = true

			// A deleted variant has nowhere to take its units back; the cancel
			// still goes through and the order says what was skipped.
			for _, id := range skipped {
				if _, err := repo.TransitionStatus(ctx, input.OrderID, input.Status, input.Status, map[string]any{
					"notes": AppendNote(fmt.Sprintf("stock not restored for deleted variant %s", id)),
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "annotate order")
				}
			}
		}

		result, err = s.findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}

		var noteValue string
		if note != nil {
			noteValue = *note
		}
		return s.outbox.Append(ctx, tx, outbox.Event{
			Type:    enums.EventOrderStatusChanged,
			OrderID: result.ID,
			Actor:   input.Actor,
			Data: payloads.OrderStatusChangedEvent{
				OrderID:         result.ID,
				UserID:          result.UserID,
				From:            from,
				To:              input.Status,
				Note:            noteValue,
				StockRestored:   restored,
				SkippedVariants: skipped,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(input.Status))
	logCtx := s.logg.WithOrderID(ctx, result.ID.String())
	if input.Actor != nil && input.Actor.Role != "" {
		logCtx = s.logg.WithActorRole(logCtx, input.Actor.Role)
	}
	if restored {
		logCtx = s.logg.WithField(logCtx, "stock_restored", true)
	}
	if len(skipped) > 0 {
		s.logg.Warn(s.logg.WithField(logCtx, "skipped_variants", skipped), "stock not restored for deleted variants")
	}
	s.logTransition(logCtx, result, from, input.Status)
	return result, nil
}

// RecordLatePayment handles a successful payment for an order that is already
// closed, typically one the expiry sweep cancelled while the customer was
// still paying. The order stays closed; staff are told to refund. Repeating the
// same gateway reference is a no-op.
func (s *service) RecordLatePayment(ctx context.Context, input LatePaymentInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	ref := "unknown"
	if trimmed := trimmedOrNil(input.GatewayRef); trimmed != nil {
		ref = *trimmed
	}
	marker := fmt.Sprintf("payment %s captured after order closed", ref)

	var (
		result   *models.Order
		replayed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.findOrder(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !IsTerminal(order.Status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order is %s, not closed", order.Status))
		}
		if order.Notes != nil && strings.Contains(*order.Notes, marker) {
			result = order
			replayed = true
			return nil
		}

		updates := map[string]any{"notes": AppendNote(marker)}
		if order.GatewayRef == nil && ref != "unknown" {
			updates["gateway_ref"] = ref
		}
		if receipt := trimmedOrNil(input.ReceiptURL); receipt != nil && order.ReceiptURL == nil {
			updates["receipt_url"] = *receipt
		}
		ok, err := repo.TransitionStatus(ctx, order.ID, order.Status, order.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "annotate order")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently")
		}

		result, err = s.findOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		return s.outbox.Append(ctx, tx, outbox.Event{
			Type:    enums.EventPaymentAfterClose,
			OrderID: result.ID,
			At:      s.now(),
			Data: payloads.PaymentAfterCloseEvent{
				OrderID:    result.ID,
				UserID:     result.UserID,
				Status:     result.Status,
				TotalCents: result.TotalCents,
				GatewayRef: ref,
				ReceiptURL: trimmedOrNil(input.ReceiptURL),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, result.ID.String()), map[string]any{
		"status":      result.Status,
		"gateway_ref": ref,
	})
	if replayed {
		s.logg.Debug(logCtx, "late payment replayed")
		return result, nil
	}
	s.logg.Warn(logCtx, "payment captured for closed order, refund needed")
	return result, nil
}

func (s *service) CancelExpired(ctx context.Context) (int, error) {
	now := s.now()
	var cancelled []models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		cancelled, err = s.repo.WithTx(tx).CancelExpired(ctx, now, ExpiryNote)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel expired orders")
		}
		for _, order := range cancelled {
			if err := s.outbox.Append(ctx, tx, outbox.Event{
				Type:    enums.EventOrderExpired,
				OrderID: order.ID,
				At:      now,
				Data: payloads.OrderExpiredEvent{
					OrderID:   order.ID,
					UserID:    order.UserID,
					ExpiredAt: now,
				},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for range cancelled {
		s.metrics.IncTransition(string(enums.OrderStatusPending), string(enums.OrderStatusCancelled))
	}
	if len(cancelled) > 0 {
		s.logg.Info(s.logg.WithField(ctx, "count", len(cancelled)), "expired pending orders cancelled")
	}
	return len(cancelled), nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	detail, err := s.repo.FindOrderDetail(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return detail, nil
}

// GetUserOrder hides orders owned by someone else behind NOT_FOUND.
func (s *service) GetUserOrder(ctx context.Context, userID, orderID uuid.UUID) (*OrderDetail, error) {
	detail, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if detail.Order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return detail, nil
}

func (s *service) ListUserOrders(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	query, err := toListQuery(params)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListUserOrders(ctx, userID, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toOrderList(rows, next), nil
}

func (s *service) ListOrders(ctx context.Context, filters OrderFilters, params pagination.Params) (*OrderList, error) {
	query, err := toListQuery(params)
	if err != nil {
		return nil, err
	}
	rows, next, err := s.repo.ListOrders(ctx, filters, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return toOrderList(rows, next), nil
}

func (s *service) findOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return order, nil
}

func (s *service) logTransition(ctx context.Context, order *models.Order, from, to enums.OrderStatus) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"from":    from,
		"to":      to,
		"user_id": order.UserID.String(),
	})
	s.logg.Info(logCtx, "order status changed")
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func toListQuery(params pagination.Params) (ListQuery, error) {
	cursor, err := pagination.Decode(params.Cursor)
	if err != nil {
		return ListQuery{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return ListQuery{Limit: pagination.ClampLimit(params.Limit), Cursor: cursor}, nil
}

func toOrderList(rows []models.Order, next *pagination.Cursor) *OrderList {
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, NewOrderDTO(row))
	}
	if next != nil {
		list.NextCursor = next.Encode()
	}
	return list
}

func normalizeIdempotencyKey(key *string) (*string, error) {
	trimmed := trimmedOrNil(key)
	if trimmed == nil {
		return nil, nil
	}
	if len(*trimmed) > maxIdempotencyKeyLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long")
	}
	return trimmed, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// sortLines orders by variant id so concurrent confirmations take row locks in the same order.
func sortLines[T any](lines []T, variantID func(T) uuid.UUID) {
	sort.Slice(lines, func(i, j int) bool {
		return variantID(lines[i]).String() < variantID(lines[j]).String()
	})
}
