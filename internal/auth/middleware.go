package auth

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey string

const userKey ctxKey = "user"

// Middleware guards the diagnostics API with a Bearer token. With an
// empty secret the guard is disabled (embedded and test setups).
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				http.Error(w, "unauthorized", 401)
				return
			}

			ac, err := ParseToken(strings.TrimPrefix(h, "Bearer "), secret)
			if err != nil {
				http.Error(w, "unauthorized", 401)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, *ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func FromContext(ctx context.Context) AuthContext {
	if ac, ok := ctx.Value(userKey).(AuthContext); ok {
		return ac
	}
	return AuthContext{}
}
