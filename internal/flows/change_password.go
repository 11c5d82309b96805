package flows

import (
	"context"
	"strings"
)

type ChangePasswordMetrics struct {
	ChangeSuccess int
	ChangeFailure int
}

type ChangePasswordDeps struct {
	Hooks

	MinSecretLength int
	Accounts        AccountDeps

	Metrics   ChangePasswordMetrics
	EventName string
	Errors    Errors
}

// RunChangePassword verifies the current secret and stores the new one.
func RunChangePassword(ctx context.Context, identifier, currentSecret, newSecret string, deps ChangePasswordDeps) error {
	deps.normalize()
	if !deps.Accounts.ready() || deps.Accounts.SetSecret == nil {
		return deps.Errors.EngineNotReady
	}

	tenantID := deps.TenantIDFromContext(ctx)

	account, err := authenticate(ctx, identifier, currentSecret, deps.Accounts, deps.Errors)
	if err != nil {
		deps.MetricInc(deps.Metrics.ChangeFailure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, err, nil)
		return err
	}

	if len(newSecret) < deps.MinSecretLength || strings.TrimSpace(newSecret) == "" || newSecret == currentSecret {
		deps.MetricInc(deps.Metrics.ChangeFailure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, deps.Errors.PasswordPolicy, nil)
		return deps.Errors.PasswordPolicy
	}

	if err := deps.Accounts.SetSecret(ctx, account, newSecret); err != nil {
		mapped := unavailable(deps.Errors, err)
		deps.MetricInc(deps.Metrics.ChangeFailure)
		deps.EmitAudit(ctx, deps.EventName, false, account.ID, tenantID, mapped, nil)
		return mapped
	}

	deps.MetricInc(deps.Metrics.ChangeSuccess)
	deps.EmitAudit(ctx, deps.EventName, true, account.ID, tenantID, nil, nil)
	return nil
}
