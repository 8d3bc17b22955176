package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	paymentwebhook "github.com/angelmondragon/familyhub-backend/internal/webhooks/payment"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
)

const testSecret = "whsec_test"

func TestPaymentWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildEvent(t, enums.PaymentEventSucceeded)
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, newGuard(t), testSecret, nil)

	for i := range 2 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set(paymentwebhook.SignatureHeader, paymentwebhook.Sign(payload, testSecret))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if service.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", service.calls)
	}
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	payload := buildEvent(t, enums.PaymentEventSucceeded)
	service := &fakePaymentWebhookService{}
	handler := PaymentWebhook(service, newGuard(t), testSecret, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set(paymentwebhook.SignatureHeader, paymentwebhook.Sign(payload, "other"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPaymentWebhook_MalformedEvent(t *testing.T) {
	payload := []byte(`{"event_id":"","type":"payment.succeeded"}`)
	handler := PaymentWebhook(&fakePaymentWebhookService{}, newGuard(t), testSecret, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
	req.Header.Set(paymentwebhook.SignatureHeader, paymentwebhook.Sign(payload, testSecret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestPaymentWebhook_FailureAllowsRedelivery(t *testing.T) {
	payload := buildEvent(t, enums.PaymentEventFailed)
	service := &fakePaymentWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := PaymentWebhook(service, newGuard(t), testSecret, nil)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set(paymentwebhook.SignatureHeader, paymentwebhook.Sign(payload, testSecret))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := send(); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	service.err = nil
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected redelivery to succeed, got %d", code)
	}
	if service.calls != 2 {
		t.Fatalf("expected two attempts, got %d", service.calls)
	}
}

func TestPaymentWebhook_MissingSecret(t *testing.T) {
	handler := PaymentWebhook(&fakePaymentWebhookService{}, newGuard(t), "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func buildEvent(t *testing.T, eventType enums.PaymentEventType) []byte {
	t.Helper()
	ref := "pi_" + uuid.NewString()
	payload, err := json.Marshal(paymentwebhook.Event{
		EventID:    "evt_" + uuid.NewString(),
		Type:       eventType,
		OrderID:    uuid.New(),
		GatewayRef: &ref,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func newGuard(t *testing.T) *paymentwebhook.IdempotencyGuard {
	t.Helper()
	guard, err := paymentwebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "payment-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakePaymentWebhookService struct {
	calls int
	err   error
}

func (f *fakePaymentWebhookService) HandleEvent(ctx context.Context, event *paymentwebhook.Event) error {
	f.calls++
	if event == nil {
		return errors.New("nil event")
	}
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{seen: make(map[string]struct{})}
}

func (s *inMemoryStore) MarkSeen(_ context.Context, scope, id string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[scope+"/"+id]; ok {
		return false, nil
	}
	s.seen[scope+"/"+id] = struct{}{}
	return true, nil
}

func (s *inMemoryStore) Forget(_ context.Context, scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, scope+"/"+id)
	return nil
}
