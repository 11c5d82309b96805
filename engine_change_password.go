package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
)

// ChangePassword verifies currentSecret and stores newSecret. The new secret
// must satisfy the reset policy and differ from the current one.
func (e *Engine) ChangePassword(ctx context.Context, identifier, currentSecret, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	return internalflows.RunChangePassword(ctx, identifier, currentSecret, newSecret, internalflows.ChangePasswordDeps{
		Hooks:           e.flowHooks(),
		MinSecretLength: e.config.PasswordReset.MinSecretLength,
		Accounts:        e.accountDeps(),
		Metrics: internalflows.ChangePasswordMetrics{
			ChangeSuccess: int(MetricPasswordChangeSuccess),
			ChangeFailure: int(MetricPasswordChangeFailure),
		},
		EventName: auditEventPasswordChange,
		Errors:    flowErrors(),
	})
}
