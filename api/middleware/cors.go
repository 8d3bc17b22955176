package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS lets the storefront and admin console call the API from the browser.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, ReplayedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
