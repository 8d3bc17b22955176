package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/familyhub-backend/api/responses"
	paymentwebhook "github.com/angelmondragon/familyhub-backend/internal/webhooks/payment"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

// maxPayloadBytes bounds gateway callback bodies.
const maxPayloadBytes = 64 << 10

type PaymentWebhookService interface {
	HandleEvent(ctx context.Context, event *paymentwebhook.Event) error
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaymentWebhook handles payment.succeeded and payment.failed callbacks from the gateway.
func PaymentWebhook(svc PaymentWebhookService, guard paymentWebhookGuard, secret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}
		if secret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		if err := paymentwebhook.VerifySignature(payload, r.Header.Get(paymentwebhook.SignatureHeader), secret); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		event, err := paymentwebhook.ParseEvent(payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.EventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, map[string]any{"event_id": event.EventID, "duplicate": true})
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, event.EventID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithFields(ctx, map[string]any{
				"event_id":   event.EventID,
				"event_type": event.Type,
				"order_id":   event.OrderID.String(),
			}), "payment event processed")
		}
		responses.WriteSuccess(w, map[string]any{"event_id": event.EventID, "duplicate": false})
	}
}
