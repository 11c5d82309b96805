package flows

import (
	"context"
	"strings"
)

type ExternalLoginMetrics struct {
	Authenticated    int
	NeedsLinking     int
	Failure          int
	CredentialIssued int
}

type ExternalLoginDeps struct {
	Hooks

	FindByExternalLogin func(context.Context, string, string) (AccountRecord, error)
	Accounts            AccountDeps
	IssueCredential     func(context.Context, AccountRecord, []string) (CredentialRecord, error)

	Metrics   ExternalLoginMetrics
	EventName string
	Errors    Errors
}

// ExternalLoginOutcome is either Authenticated with a credential or
// NeedsLinking with the email hint the caller can use to link or create.
type ExternalLoginOutcome struct {
	Authenticated bool
	Credential    *CredentialRecord
	Provider      string
	Email         string
}

// RunExternalLogin signs in an account already linked to (provider, key).
// Unlinked identities are not an error; they come back as NeedsLinking.
func RunExternalLogin(ctx context.Context, provider, providerKey, email string, deps ExternalLoginDeps) (*ExternalLoginOutcome, error) {
	deps.normalize()
	if deps.FindByExternalLogin == nil || deps.Accounts.IsLocked == nil || deps.Accounts.IsNotFound == nil || deps.IssueCredential == nil {
		return nil, deps.Errors.EngineNotReady
	}

	provider = strings.TrimSpace(provider)
	providerKey = strings.TrimSpace(providerKey)
	if provider == "" || providerKey == "" {
		return nil, deps.Errors.InvalidRequest
	}

	tenantID := deps.TenantIDFromContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))

	account, err := deps.FindByExternalLogin(ctx, provider, providerKey)
	if err != nil {
		if deps.Accounts.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.NeedsLinking)
			deps.EmitAudit(ctx, deps.EventName, true, "", tenantID, nil, func() map[string]string {
				return map[string]string{
					"provider": provider,
					"result":   "needs_linking",
				}
			})
			return &ExternalLoginOutcome{Provider: provider, Email: email}, nil
		}
		mapped := unavailable(deps.Errors, err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.EventName, false, "", tenantID, mapped, nil)
		return nil, mapped
	}

	locked, err := deps.Accounts.IsLocked(ctx, account)
	if err != nil {
		mapped := unavailable(deps.Errors, err)
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, mapped, nil)
		return nil, mapped
	}
	if locked {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, deps.Errors.Locked, nil)
		return nil, deps.Errors.Locked
	}

	credential, err := issueCredential(ctx, account, deps.Accounts, deps.IssueCredential, deps.Errors)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, err, nil)
		return nil, err
	}

	deps.MetricInc(deps.Metrics.CredentialIssued)
	deps.MetricInc(deps.Metrics.Authenticated)
	deps.EmitAudit(ctx, deps.EventName, true, account.ID, tenantID, nil, func() map[string]string {
		return map[string]string{
			"provider": provider,
			"result":   "authenticated",
		}
	})

	return &ExternalLoginOutcome{
		Authenticated: true,
		Credential:    credential,
		Provider:      provider,
		Email:         email,
	}, nil
}
