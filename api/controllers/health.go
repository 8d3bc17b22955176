package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/familyhub-backend/api/responses"
	"github.com/angelmondragon/familyhub-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/health"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FamilyHub-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers a ping.
func HealthReady(cfg *config.Config, deps health.Checks, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FamilyHub-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		if failed := deps.Failures(ctx); len(failed) > 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "dependencies unavailable").WithDetails(failed))
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
