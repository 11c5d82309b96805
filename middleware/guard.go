package middleware

import (
	"context"
	"net/http"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type claimsContextKey struct{}

type credentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (*goIdentity.CredentialClaims, error)
}

// ClaimsFromContext returns the claims stored by RequireCredential.
func ClaimsFromContext(ctx context.Context) (*goIdentity.CredentialClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*goIdentity.CredentialClaims)
	return claims, ok
}

// RequireCredential rejects requests without a valid bearer credential and
// stores the verified claims in the request context.
func RequireCredential(engine *goIdentity.Engine) func(http.Handler) http.Handler {
	if engine == nil {
		return RequireCredentialFrom(nil)
	}
	return RequireCredentialFrom(engine)
}

// RequireCredentialFrom is RequireCredential over any verifier.
func RequireCredentialFrom(verifier credentialVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := verifier.VerifyCredential(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets a request through when its claims carry any of roles.
// It must run after RequireCredential.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if claims.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
