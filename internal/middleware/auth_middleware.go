package middleware

import (
	"context"
	"net/http"
	"strings"

	"diffsync-server/pkg/jwt"
	"diffsync-server/pkg/response"
)

type contextKey string

const UserIDKey contextKey = "userID"

// AuthMiddleware validates bearer tokens. When required is false, requests
// without an Authorization header pass through anonymously, but a header
// that is present must still carry a valid token.
func AuthMiddleware(jwtSecret string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					response.Unauthorized(w, "Missing authorization header")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}
