package controllers

import (
	"net/http"

	"github.com/angelmondragon/familyhub-backend/api/middleware"
	"github.com/angelmondragon/familyhub-backend/api/responses"
)

// Ping answers on each route group so a client can check its credentials
// reach that group. Authenticated groups echo the caller back.
func Ping(scope string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]string{"scope": scope, "status": "ok"}
		if id := middleware.UserIDFromContext(r.Context()); id != "" {
			body["user_id"] = id
			body["role"] = middleware.RoleFromContext(r.Context())
		}
		responses.WriteSuccess(w, body)
	}
}
