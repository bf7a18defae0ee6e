package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"course-admin-service/internal/auth"
	"course-admin-service/internal/model"
	"course-admin-service/internal/service"
)

type contextKey string

const userContextKey contextKey = "authenticated_user"

// NewTokenHeader is where a reissued token is returned; clients replace
// their stored token whenever the header is present.
const NewTokenHeader = "x-new-token"

// UserFromContext returns the account the gate attached, or nil on
// unprotected routes.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// Protect is the authorization gate. It verifies the bearer token, loads
// the live account, and rejects before any handler runs. An expired token
// is flagged so clients can distinguish re-login from rejection.
func Protect(authService *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				respondWithError(w, http.StatusUnauthorized,
					errors.New("missing bearer token"), "Authentication required")
				return
			}

			user, reissued, err := authService.VerifyToken(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					respondWithJSON(w, http.StatusUnauthorized, Response{
						Success: false,
						Error:   "token expired",
						Expired: true,
					})
					return
				}
				respondWithError(w, getStatusCode(err), err, "Authentication failed")
				return
			}

			// Header must be set before the handler writes the body.
			if reissued != "" {
				w.Header().Set(NewTokenHeader, reissued)
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin sits behind Protect on the administrative routes.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil || !user.IsAdmin() {
			respondWithError(w, http.StatusForbidden,
				errors.New("admin role required"), "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
