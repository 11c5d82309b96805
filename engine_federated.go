package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// LoginExternal signs in the account linked to (provider, providerKey). An
// unlinked identity is not an error: the result has ExternalNeedsLinking and
// the email hint so the caller can link or create an account.
func (e *Engine) LoginExternal(ctx context.Context, provider, providerKey, email string) (*ExternalLoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	if e.external == nil {
		return nil, ErrFeatureDisabled
	}

	resolver := e.external
	outcome, err := internalflows.RunExternalLogin(ctx, provider, providerKey, email, internalflows.ExternalLoginDeps{
		Hooks: e.flowHooks(),
		FindByExternalLogin: func(ctx context.Context, provider, providerKey string) (internalflows.AccountRecord, error) {
			return accountRecord(resolver.FindByExternalLogin(ctx, provider, providerKey))
		},
		Accounts:        e.accountDeps(),
		IssueCredential: e.issueCredential,
		Metrics: internalflows.ExternalLoginMetrics{
			Authenticated:    int(MetricExternalAuthenticated),
			NeedsLinking:     int(MetricExternalNeedsLinking),
			Failure:          int(MetricExternalFailure),
			CredentialIssued: int(MetricCredentialIssued),
		},
		EventName: auditEventExternalLogin,
		Errors:    flowErrors(),
	})
	if err != nil {
		return nil, err
	}

	result := &ExternalLoginResult{
		Status:   ExternalNeedsLinking,
		Provider: outcome.Provider,
		Email:    outcome.Email,
	}
	if outcome.Authenticated {
		result.Status = ExternalAuthenticated
		result.Credential = credentialFromRecord(outcome.Credential)
	}
	return result, nil
}
