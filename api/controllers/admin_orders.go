package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	ordercontrollers "github.com/angelmondragon/familyhub-backend/api/controllers/orders"
	"github.com/angelmondragon/familyhub-backend/api/middleware"
	"github.com/angelmondragon/familyhub-backend/api/responses"
	"github.com/angelmondragon/familyhub-backend/api/validators"
	internalorders "github.com/angelmondragon/familyhub-backend/internal/orders"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/outbox"
)

const maxAdminNoteLength = 1000

type adminStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Note   *string `json:"note,omitempty"`
}

type adminAction func(w http.ResponseWriter, r *http.Request) error

func asAdmin(svc internalorders.Service, logg *logger.Logger, act adminAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")
		if svc != nil {
			err = act(w, r)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// AdminOrders lists every order, optionally filtered by status and user.
func AdminOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asAdmin(svc, logg, func(w http.ResponseWriter, r *http.Request) error {
		params, err := ordercontrollers.PageParams(r)
		if err != nil {
			return err
		}
		filters, err := adminOrderFilters(r)
		if err != nil {
			return err
		}
		list, err := svc.ListOrders(r.Context(), filters, params)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, list)
		return nil
	})
}

func AdminOrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asAdmin(svc, logg, func(w http.ResponseWriter, r *http.Request) error {
		orderID, err := ordercontrollers.OrderIDParam(r)
		if err != nil {
			return err
		}
		detail, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, internalorders.NewOrderDetailDTO(*detail))
		return nil
	})
}

// AdminUpdateOrderStatus applies a manual transition such as PAID -> SHIPPED.
func AdminUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asAdmin(svc, logg, func(w http.ResponseWriter, r *http.Request) error {
		orderID, err := ordercontrollers.OrderIDParam(r)
		if err != nil {
			return err
		}
		var req adminStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return err
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"})
		}

		input := internalorders.UpdateStatusInput{OrderID: orderID, Status: status, Actor: actorFromRequest(r)}
		if req.Note != nil {
			if note := validators.SanitizeString(*req.Note, maxAdminNoteLength); note != "" {
				input.Note = &note
			}
		}
		order, err := svc.UpdateStatus(r.Context(), input)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, internalorders.NewOrderDTO(*order))
		return nil
	})
}

// AdminExpireOrders runs one expiry sweep on demand.
func AdminExpireOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asAdmin(svc, logg, func(w http.ResponseWriter, r *http.Request) error {
		cancelled, err := svc.CancelExpired(r.Context())
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]int{"cancelled": cancelled})
		return nil
	})
}

func adminOrderFilters(r *http.Request) (internalorders.OrderFilters, error) {
	var filters internalorders.OrderFilters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").WithDetails(map[string]any{"field": "status"})
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("user_id")); raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user_id filter").WithDetails(map[string]any{"field": "user_id"})
		}
		filters.UserID = &userID
	}
	return filters, nil
}

func actorFromRequest(r *http.Request) *outbox.ActorRef {
	actor := &outbox.ActorRef{Role: middleware.RoleFromContext(r.Context())}
	if userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context())); err == nil {
		actor.UserID = &userID
	}
	return actor
}
