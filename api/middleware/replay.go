package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/familyhub-backend/api/responses"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"
)

type replayStore interface {
	Replay(ctx context.Context, scope string) (string, bool, error)
	Remember(ctx context.Context, scope, payload string, ttl time.Duration) error
}

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Replay makes an admin mutation safe to retry. The first non-5xx response
// for a caller, path and Idempotency-Key is kept for ttl and served again on
// retries; a retry with a different body is rejected.
func Replay(store replayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || ttl <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, IdempotencyHeader+" header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			sum := sha256.Sum256(body)
			fingerprint := hex.EncodeToString(sum[:])
			scope := strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path, clientKey}, "|")

			raw, found, err := store.Replay(ctx, scope)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stored response"))
				return
			}
			if found {
				var prior storedResponse
				if err := json.Unmarshal([]byte(raw), &prior); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode stored response"))
					return
				}
				if prior.Fingerprint != fingerprint {
					responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
					return
				}
				if prior.ContentType != "" {
					w.Header().Set("Content-Type", prior.ContentType)
				}
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(prior.Status)
				_, _ = w.Write(prior.Body)
				return
			}

			tee := &teeRecorder{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(tee, r)
			if tee.code() >= http.StatusInternalServerError {
				return
			}

			payload, _ := json.Marshal(storedResponse{
				Status:      tee.code(),
				ContentType: w.Header().Get("Content-Type"),
				Body:        tee.body.Bytes(),
				Fingerprint: fingerprint,
			})
			if err := store.Remember(ctx, scope, string(payload), ttl); err != nil && logg != nil {
				logg.Error(ctx, "store admin response for replay", err)
			}
		})
	}
}

type teeRecorder struct {
	statusRecorder
	body bytes.Buffer
}

func (t *teeRecorder) Write(b []byte) (int, error) {
	t.body.Write(b)
	return t.statusRecorder.Write(b)
}
