package flows

import (
	"context"
	"errors"
	"strings"
)

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	CredentialIssued int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
}

// LoginDeps captures direct password login dependencies.
type LoginDeps struct {
	Hooks

	Accounts        AccountDeps
	IssueCredential func(context.Context, AccountRecord, []string) (CredentialRecord, error)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  Errors
}

// RunLogin verifies identifier and secret and issues a credential carrying the
// account's current roles.
func RunLogin(ctx context.Context, identifier, secret string, deps LoginDeps) (*CredentialRecord, error) {
	deps.normalize()
	if !deps.Accounts.ready() || deps.IssueCredential == nil {
		return nil, deps.Errors.EngineNotReady
	}

	tenantID := deps.TenantIDFromContext(ctx)

	account, err := authenticate(ctx, identifier, secret, deps.Accounts, deps.Errors)
	if err != nil {
		recordLoginFailure(ctx, deps, account, tenantID, identifier, err)
		return nil, err
	}

	credential, err := issueCredential(ctx, account, deps.Accounts, deps.IssueCredential, deps.Errors)
	if err != nil {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, tenantID, err, func() map[string]string {
			return map[string]string{
				"reason": "credential_issue_failed",
			}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.CredentialIssued)
	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, account.ID, tenantID, nil, func() map[string]string {
		return map[string]string{
			"roles": strings.Join(credential.Roles, ","),
		}
	})

	return credential, nil
}

func recordLoginFailure(ctx context.Context, deps LoginDeps, account AccountRecord, tenantID, identifier string, err error) {
	if errors.Is(err, deps.Errors.Locked) {
		deps.MetricInc(deps.Metrics.LoginLocked)
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, account.ID, tenantID, err, func() map[string]string {
		return map[string]string{
			"identifier": identifier,
		}
	})
}
