package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/api/middleware"
	internalorders "github.com/angelmondragon/familyhub-backend/internal/orders"
	"github.com/angelmondragon/familyhub-backend/pkg/db/models"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/pagination"
)

type stubAdminOrdersService struct {
	internalorders.Service
	list          func(ctx context.Context, filters internalorders.OrderFilters, params pagination.Params) (*internalorders.OrderList, error)
	get           func(ctx context.Context, orderID uuid.UUID) (*internalorders.OrderDetail, error)
	update        func(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error)
	cancelExpired func(ctx context.Context) (int, error)
}

func (s *stubAdminOrdersService) ListOrders(ctx context.Context, filters internalorders.OrderFilters, params pagination.Params) (*internalorders.OrderList, error) {
	return s.list(ctx, filters, params)
}

func (s *stubAdminOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*internalorders.OrderDetail, error) {
	return s.get(ctx, orderID)
}

func (s *stubAdminOrdersService) UpdateStatus(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
	return s.update(ctx, input)
}

func (s *stubAdminOrdersService) CancelExpired(ctx context.Context) (int, error) {
	return s.cancelExpired(ctx)
}

func TestAdminOrdersListFilters(t *testing.T) {
	userID := uuid.New()
	svc := &stubAdminOrdersService{
		list: func(ctx context.Context, filters internalorders.OrderFilters, params pagination.Params) (*internalorders.OrderList, error) {
			if filters.Status == nil || *filters.Status != enums.OrderStatusPaid {
				t.Fatalf("expected PAID filter, got %v", filters.Status)
			}
			if filters.UserID == nil || *filters.UserID != userID {
				t.Fatalf("expected user filter")
			}
			if params.Limit != pagination.DefaultLimit {
				t.Fatalf("expected default limit, got %d", params.Limit)
			}
			return &internalorders.OrderList{Orders: []internalorders.OrderDTO{}}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=paid&user_id="+userID.String(), nil)
	resp := httptest.NewRecorder()
	AdminOrders(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAdminOrdersListRejectsUnknownStatus(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders?status=LOST", nil)
	resp := httptest.NewRecorder()
	AdminOrders(&stubAdminOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOrderDetail(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{
		get: func(ctx context.Context, got uuid.UUID) (*internalorders.OrderDetail, error) {
			return &internalorders.OrderDetail{Order: models.Order{ID: got, Status: enums.OrderStatusShipped}}, nil
		},
	}
	req := withOrderID(httptest.NewRequest(http.MethodGet, "/api/admin/v1/orders/"+orderID.String(), nil), orderID)
	resp := httptest.NewRecorder()
	AdminOrderDetail(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), orderID.String()) {
		t.Fatalf("expected order id in body")
	}
}

func TestAdminUpdateOrderStatusForwardsActor(t *testing.T) {
	orderID := uuid.New()
	adminID := uuid.New()
	svc := &stubAdminOrdersService{
		update: func(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
			if input.OrderID != orderID || input.Status != enums.OrderStatusShipped {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.Note == nil || *input.Note != "tracking 123" {
				t.Fatalf("expected note forwarded")
			}
			if input.Actor == nil || input.Actor.UserID == nil || *input.Actor.UserID != adminID || input.Actor.Role != string(enums.MemberRoleAdmin) {
				t.Fatalf("unexpected actor %+v", input.Actor)
			}
			return &models.Order{ID: orderID, Status: enums.OrderStatusShipped}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/"+orderID.String()+"/status", strings.NewReader(`{"status":"shipped","note":"tracking 123"}`))
	req = withOrderID(req, orderID)
	req = req.WithContext(middleware.WithUserID(req.Context(), adminID.String()))
	req = req.WithContext(middleware.WithRole(req.Context(), string(enums.MemberRoleAdmin)))

	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
}

func TestAdminUpdateOrderStatusIllegalTransition(t *testing.T) {
	orderID := uuid.New()
	svc := &stubAdminOrdersService{
		update: func(ctx context.Context, input internalorders.UpdateStatusInput) (*models.Order, error) {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transition not allowed")
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"status":"DELIVERED"}`))
	req = withOrderID(req, orderID)

	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestAdminUpdateOrderStatusRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"status":"PAID","force":true}`))
	req = withOrderID(req, uuid.New())
	resp := httptest.NewRecorder()
	AdminUpdateOrderStatus(&stubAdminOrdersService{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminExpireOrders(t *testing.T) {
	svc := &stubAdminOrdersService{
		cancelExpired: func(ctx context.Context) (int, error) { return 3, nil },
	}
	resp := httptest.NewRecorder()
	AdminExpireOrders(svc, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/expire", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"cancelled":3`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func withOrderID(req *http.Request, orderID uuid.UUID) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("orderId", orderID.String())
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, ctx))
}
