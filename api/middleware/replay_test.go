package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
)

type fakeReplayStore struct {
	mu     sync.Mutex
	stored map[string]string
}

func newFakeReplayStore() *fakeReplayStore {
	return &fakeReplayStore{stored: map[string]string{}}
}

func (f *fakeReplayStore) Replay(_ context.Context, scope string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.stored[scope]
	return v, ok, nil
}

func (f *fakeReplayStore) Remember(_ context.Context, scope, payload string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.stored[scope]; !ok {
		f.stored[scope] = payload
	}
	return nil
}

type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(h.calls) + `}`))
}

func replayRequest(user, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/o-1/status", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	return req.WithContext(WithUserID(req.Context(), user))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestReplayRequiresKey(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Replay(newFakeReplayStore(), time.Hour, nil)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, replayRequest(uuid.NewString(), "", `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
	if next.calls != 0 {
		t.Fatalf("handler must not run without a key")
	}
}

func TestReplayServesStoredResponse(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Replay(newFakeReplayStore(), time.Hour, nil)(next)
	user := uuid.NewString()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, replayRequest(user, "ship-1", `{"status":"SHIPPED"}`))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, replayRequest(user, "ship-1", `{"status":"SHIPPED"}`))

	if next.calls != 1 {
		t.Fatalf("expected one handler call, got %d", next.calls)
	}
	if second.Code != http.StatusOK || second.Body.String() != first.Body.String() {
		t.Fatalf("replay mismatch: %d %q vs %q", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Fatalf("expected %s header on replay", ReplayedHeader)
	}
	if first.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("first response must not be marked replayed")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content type carried over, got %q", second.Header().Get("Content-Type"))
	}
}

func TestReplayRejectsChangedBody(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Replay(newFakeReplayStore(), time.Hour, nil)(next)
	user := uuid.NewString()

	handler.ServeHTTP(httptest.NewRecorder(), replayRequest(user, "ship-1", `{"status":"SHIPPED"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, replayRequest(user, "ship-1", `{"status":"CANCELLED"}`))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("unexpected code %s", code)
	}
	if next.calls != 1 {
		t.Fatalf("changed body must not reach the handler")
	}
}

func TestReplaySkipsServerErrors(t *testing.T) {
	next := &countingHandler{status: http.StatusServiceUnavailable}
	handler := Replay(newFakeReplayStore(), time.Hour, nil)(next)
	user := uuid.NewString()

	for range 2 {
		handler.ServeHTTP(httptest.NewRecorder(), replayRequest(user, "expire-1", `{}`))
	}
	if next.calls != 2 {
		t.Fatalf("5xx responses must be retried, got %d calls", next.calls)
	}
}

func TestReplayIsScopedPerCaller(t *testing.T) {
	next := &countingHandler{status: http.StatusOK}
	handler := Replay(newFakeReplayStore(), time.Hour, nil)(next)

	handler.ServeHTTP(httptest.NewRecorder(), replayRequest(uuid.NewString(), "ship-1", `{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, replayRequest(uuid.NewString(), "ship-1", `{}`))

	if next.calls != 2 {
		t.Fatalf("same key from another admin must run, got %d calls", next.calls)
	}
	if rec.Header().Get(ReplayedHeader) != "" {
		t.Fatalf("other caller must not see a replay")
	}
}
