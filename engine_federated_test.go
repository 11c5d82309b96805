package goIdentity

import (
	"context"
	"errors"
	"testing"
)

type mapResolver struct {
	links map[string]string
	store *mockCredentialStore
}

func (r *mapResolver) FindByExternalLogin(ctx context.Context, provider, providerKey string) (*Account, error) {
	id, ok := r.links[provider+"|"+providerKey]
	if !ok {
		return nil, ErrNotFound
	}
	return r.store.find(func(a Account) bool { return a.ID == id })
}

func newFederatedEnv(t *testing.T) *testEnv {
	t.Helper()

	resolver := &mapResolver{links: map[string]string{"github|4242": "u1"}}
	env := newTestEnv(t, testConfig(), func(b *Builder) {
		b.WithExternalLoginResolver(resolver)
	})
	resolver.store = env.store
	return env
}

func TestLoginExternalLinkedAccount(t *testing.T) {
	env := newFederatedEnv(t)

	result, err := env.engine.LoginExternal(context.Background(), "github", "4242", "alice@example.com")
	if err != nil {
		t.Fatalf("LoginExternal failed: %v", err)
	}
	if result.Status != ExternalAuthenticated || result.Credential == nil {
		t.Fatalf("expected authenticated result, got %+v", result)
	}
	if result.Credential.AccountID != "u1" {
		t.Fatalf("expected u1, got %q", result.Credential.AccountID)
	}
	if _, err := env.engine.VerifyCredential(context.Background(), result.Credential.Token); err != nil {
		t.Fatalf("expected credential to verify, got %v", err)
	}
}

func TestLoginExternalNeedsLinking(t *testing.T) {
	env := newFederatedEnv(t)

	result, err := env.engine.LoginExternal(context.Background(), "github", "9999", " New.User@Example.com ")
	if err != nil {
		t.Fatalf("LoginExternal failed: %v", err)
	}
	if result.Status != ExternalNeedsLinking || result.Credential != nil {
		t.Fatalf("expected needs-linking result, got %+v", result)
	}
	if result.Provider != "github" || result.Email != "new.user@example.com" {
		t.Fatalf("unexpected hint: %+v", result)
	}
	if result.Status.String() != "needs_linking" {
		t.Fatalf("unexpected status string %q", result.Status.String())
	}
}

func TestLoginExternalLockedAccount(t *testing.T) {
	env := newFederatedEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = env.engine.Login(ctx, "alice", "wrong-secret")
	}

	if _, err := env.engine.LoginExternal(ctx, "github", "4242", ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginExternalWithoutResolver(t *testing.T) {
	env := newTestEnv(t, testConfig())

	if _, err := env.engine.LoginExternal(context.Background(), "github", "4242", ""); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestLoginExternalRequiresProviderAndKey(t *testing.T) {
	env := newFederatedEnv(t)

	if _, err := env.engine.LoginExternal(context.Background(), "", "4242", ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
