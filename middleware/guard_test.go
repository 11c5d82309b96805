package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
)

type fakeVerifier struct {
	tokens map[string]*goIdentity.CredentialClaims
}

func (f fakeVerifier) VerifyCredential(_ context.Context, token string) (*goIdentity.CredentialClaims, error) {
	claims, ok := f.tokens[token]
	if !ok {
		return nil, goIdentity.ErrUnauthorized
	}
	return claims, nil
}

func testVerifier() fakeVerifier {
	return fakeVerifier{tokens: map[string]*goIdentity.CredentialClaims{
		"admin-token": {AccountID: "u1", Roles: []string{"admin", "user"}},
		"user-token":  {AccountID: "u2", Roles: []string{"user"}},
	}}
}

func serve(h http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRequireCredential(t *testing.T) {
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok {
			t.Fatal("expected claims in context")
		}
		seen = claims.AccountID
		w.WriteHeader(http.StatusNoContent)
	})
	h := RequireCredentialFrom(testVerifier())(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz", want: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer ", want: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer user-token", want: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer user-token", want: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rr := serve(h, tc.header); rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
		})
	}
	if seen != "u2" {
		t.Fatalf("expected handler to see u2, got %q", seen)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireCredentialFrom(testVerifier())(RequireRole("admin")(ok))

	if rr := serve(h, "Bearer admin-token"); rr.Code != http.StatusOK {
		t.Fatalf("expected admin admitted, got %d", rr.Code)
	}
	if rr := serve(h, "Bearer user-token"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected user forbidden, got %d", rr.Code)
	}

	bare := RequireRole("admin")(ok)
	if rr := serve(bare, ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without claims, got %d", rr.Code)
	}
}

func TestRequireCredentialNilEngine(t *testing.T) {
	h := RequireCredential(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	if rr := serve(h, "Bearer admin-token"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", rr.Code)
	}
}
