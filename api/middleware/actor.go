package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/familyhub-backend/api/responses"
	"github.com/angelmondragon/familyhub-backend/pkg/auth"
	"github.com/angelmondragon/familyhub-backend/pkg/config"
	"github.com/angelmondragon/familyhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/familyhub-backend/pkg/errors"
	"github.com/angelmondragon/familyhub-backend/pkg/logger"
)

type memberKey struct{}

func memberFrom(ctx context.Context) auth.Member {
	if ctx == nil {
		return auth.Member{}
	}
	m, _ := ctx.Value(memberKey{}).(auth.Member)
	return m
}

func withMember(ctx context.Context, m auth.Member) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, memberKey{}, m)
}

// UserIDFromContext returns the caller's user id, or "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	if m := memberFrom(ctx); m.UserID != uuid.Nil {
		return m.UserID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	return string(memberFrom(ctx).Role)
}

// WithUserID and WithRole seed the caller for handlers exercised without Auth.
func WithUserID(ctx context.Context, userID string) context.Context {
	m := memberFrom(ctx)
	m.UserID, _ = uuid.Parse(userID)
	return withMember(ctx, m)
}

func WithRole(ctx context.Context, role string) context.Context {
	m := memberFrom(ctx)
	m.Role = enums.MemberRole(role)
	return withMember(ctx, m)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Auth requires a bearer access token and puts the member it names on the context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			member, err := auth.Verify(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			ctx := withMember(r.Context(), member)
			if logg != nil {
				ctx = logg.WithUserID(ctx, member.UserID.String())
				ctx = logg.WithActorRole(ctx, string(member.Role))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(role enums.MemberRole, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if memberFrom(r.Context()).Role != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, string(role)+" role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
