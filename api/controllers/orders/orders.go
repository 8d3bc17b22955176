package orders

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/api/middleware"
	"github.com/angelmondragon/familyhub-backend/api/responses"
	"github.com/angelmondragon/familyhub-backend/api/validators"
	internalorders "github.com/angelmondragon/familyhub-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
	"github.com/angelmondragon/familyhub-backend/pkg/pagination"
)

const maxNotesLength = 1000

var errServiceUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

type createOrderLine struct {
	VariantID uuid.UUID `json:"variant_id" validate:"required"`
	Quantity  int       `json:"quantity"`
}

type createOrderRequest struct {
	Lines []createOrderLine `json:"lines" validate:"required,min=1,dive"`
	Notes *string           `json:"notes,omitempty"`
}

func (req createOrderRequest) input(userID uuid.UUID, key string) internalorders.CreateOrderInput {
	in := internalorders.CreateOrderInput{
		UserID: userID,
		Lines:  make([]internalorders.LineInput, 0, len(req.Lines)),
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, internalorders.LineInput{VariantID: line.VariantID, Quantity: line.Quantity})
	}
	if req.Notes != nil {
		if notes := validators.SanitizeString(*req.Notes, maxNotesLength); notes != "" {
			in.Notes = &notes
		}
	}
	if key != "" {
		in.IdempotencyKey = &key
	}
	return in
}

// memberAction serves one request on behalf of the signed-in member.
type memberAction func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error

func asMember(svc internalorders.Service, logg *logger.Logger, act memberAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error = errServiceUnavailable
		if svc != nil {
			var userID uuid.UUID
			if userID, err = userIDFromRequest(r); err == nil {
				err = act(w, r, userID)
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// Create places a new PENDING order for the member. Retrying with the same
// Idempotency-Key answers 200 with the order the first call created.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asMember(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return err
		}
		key := strings.TrimSpace(r.Header.Get(middleware.IdempotencyHeader))
		result, err := svc.CreateOrder(r.Context(), req.input(userID, key))
		if err != nil {
			return err
		}
		dto := internalorders.NewOrderDetailDTO(result.Detail)
		if result.Replayed {
			w.Header().Set(middleware.ReplayedHeader, "true")
			responses.WriteSuccess(w, dto)
			return nil
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
		return nil
	})
}

// List pages through the member's own orders, newest first.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asMember(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		params, err := PageParams(r)
		if err != nil {
			return err
		}
		list, err := svc.ListUserOrders(r.Context(), userID, params)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, list)
		return nil
	})
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return asMember(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
		orderID, err := OrderIDParam(r)
		if err != nil {
			return err
		}
		detail, err := svc.GetUserOrder(r.Context(), userID, orderID)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, internalorders.NewOrderDetailDTO(*detail))
		return nil
	})
}

// OrderIDParam parses the {orderId} route parameter.
func OrderIDParam(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}

// PageParams reads the limit and cursor query parameters.
func PageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{Limit: limit, Cursor: strings.TrimSpace(r.URL.Query().Get("cursor"))}, nil
}

func userIDFromRequest(r *http.Request) (uuid.UUID, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "user context missing")
	}
	return userID, nil
}
