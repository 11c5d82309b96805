package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

type PasswordResetMetrics struct {
	ResetRequest        int
	ResetUnknownSubject int
	ResetVerify         int
	ResetSuccess        int
	ResetFailure        int
	CodeInvalid         int
	CodeExpired         int
}

type PasswordResetEvents struct {
	ResetRequest  string
	ResetVerify   string
	ResetComplete string
}

type PasswordResetDeps struct {
	Hooks

	Enabled          bool
	TTL              time.Duration
	Purpose          string
	MinSecretLength  int
	FallbackToEmail  bool
	NormalizeSubject func(string) string

	// ResponseFloor returns the earliest instant RequestReset may answer
	// with nil. Unknown emails, unreachable accounts and issued codes all
	// wait for it through WaitUntil.
	ResponseFloor func() time.Time
	WaitUntil     func(context.Context, time.Time) error

	Accounts AccountDeps

	CheckIssueLimiter  func(context.Context, string, string, string) error
	CheckRedeemLimiter func(context.Context, string, string, string) error
	ResetRedeemLimiter func(context.Context, string, string) error
	MapLimiterError    func(error) error

	IssueCode    func(context.Context, string, string, time.Duration) (CodeTicket, error)
	RedeemCode   func(context.Context, string, string, string, time.Time) error
	LookupCode   func(context.Context, string, string, string, time.Time) error
	MapCodeError func(error) error

	Dispatch func(context.Context, Delivery)
	// DispatchBefore delivers a reset code, waiting for the dispatcher no
	// later than the given floor. Nil falls back to Dispatch.
	DispatchBefore func(context.Context, Delivery, time.Time)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  Errors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	deps.normalize()
	if deps.NormalizeSubject == nil {
		deps.NormalizeSubject = func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	}
	if deps.ResponseFloor == nil {
		deps.ResponseFloor = func() time.Time { return time.Time{} }
	}
	if deps.WaitUntil == nil {
		deps.WaitUntil = func(context.Context, time.Time) error { return nil }
	}
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MapCodeError == nil {
		deps.MapCodeError = func(err error) error { return err }
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(context.Context, Delivery) {}
	}
	if deps.DispatchBefore == nil {
		dispatch := deps.Dispatch
		deps.DispatchBefore = func(ctx context.Context, d Delivery, _ time.Time) { dispatch(ctx, d) }
	}
}

// RunRequestReset issues a reset code for a known email and dispatches it.
// Unknown emails get the same nil result and no code is created. Every nil
// result is held until the response floor so the three outcomes take the
// same time.
func RunRequestReset(ctx context.Context, email, channel string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	tenantID := deps.TenantIDFromContext(ctx)
	if !deps.Enabled {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, "", tenantID, deps.Errors.FeatureDisabled, nil)
		return deps.Errors.FeatureDisabled
	}
	if deps.Accounts.FindByEmail == nil || deps.Accounts.IsNotFound == nil || deps.IssueCode == nil {
		return deps.Errors.EngineNotReady
	}

	subject := deps.NormalizeSubject(email)
	if subject == "" {
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, "", tenantID, deps.Errors.InvalidRequest, func() map[string]string {
			return map[string]string{
				"reason": "empty_email",
			}
		})
		return deps.Errors.InvalidRequest
	}
	if channel != ChannelEmail && channel != ChannelSMS {
		channel = ChannelEmail
	}

	deps.MetricInc(deps.Metrics.ResetRequest)
	floor := deps.ResponseFloor()
	accepted := func() error {
		if err := deps.WaitUntil(ctx, floor); err != nil {
			return unavailable(deps.Errors, err)
		}
		return nil
	}

	// throttle before lookup so the limiter never depends on account existence
	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckIssueLimiter != nil {
		if err := deps.CheckIssueLimiter(ctx, tenantID, subject, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "password_reset_request", tenantID, func() map[string]string {
					return map[string]string{
						"subject": subject,
					}
				})
			}
			deps.EmitAudit(ctx, deps.Events.ResetRequest, false, "", tenantID, mapped, func() map[string]string {
				return map[string]string{
					"subject": subject,
				}
			})
			return mapped
		}
	}

	account, err := deps.Accounts.FindByEmail(ctx, subject)
	if err != nil {
		if deps.Accounts.IsNotFound(err) {
			deps.MetricInc(deps.Metrics.ResetUnknownSubject)
			deps.EmitAudit(ctx, deps.Events.ResetRequest, true, "", tenantID, nil, func() map[string]string {
				return map[string]string{
					"result": "unknown_subject",
				}
			})
			return accepted()
		}
		mapped := unavailable(deps.Errors, err)
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, "", tenantID, mapped, nil)
		return mapped
	}

	resolvedChannel, destination, ok := resolveDestination(account, channel, deps.FallbackToEmail)
	if !ok {
		// cannot reach the account; answer like an unknown subject
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, account.ID, tenantID, deps.Errors.NotFound, func() map[string]string {
			return map[string]string{
				"reason": "no_destination",
			}
		})
		return accepted()
	}

	if err := ctx.Err(); err != nil {
		return unavailable(deps.Errors, err)
	}

	ticket, err := deps.IssueCode(ctx, tenantID, subject, deps.TTL)
	if err != nil {
		mapped := deps.MapCodeError(err)
		deps.EmitAudit(ctx, deps.Events.ResetRequest, false, account.ID, tenantID, mapped, func() map[string]string {
			return map[string]string{
				"reason": "issue_failed",
			}
		})
		return mapped
	}

	deps.DispatchBefore(ctx, Delivery{
		AccountID:   account.ID,
		TenantID:    tenantID,
		Purpose:     deps.Purpose,
		Channel:     resolvedChannel,
		Destination: destination,
		Code:        ticket.Code,
		ExpiresAt:   ticket.ExpiresAt,
	}, floor)

	deps.EmitAudit(ctx, deps.Events.ResetRequest, true, account.ID, tenantID, nil, func() map[string]string {
		return map[string]string{
			"result":  "issued",
			"channel": resolvedChannel,
		}
	})
	return accepted()
}

// RunVerifyResetCode reports whether code is currently redeemable for email
// without consuming it.
func RunVerifyResetCode(ctx context.Context, email, code string, deps PasswordResetDeps) (bool, error) {
	normalizePasswordResetDeps(&deps)

	tenantID := deps.TenantIDFromContext(ctx)
	if !deps.Enabled {
		return false, deps.Errors.FeatureDisabled
	}
	if deps.LookupCode == nil {
		return false, deps.Errors.EngineNotReady
	}

	subject := deps.NormalizeSubject(email)
	if subject == "" || code == "" {
		return false, nil
	}

	if deps.CheckRedeemLimiter != nil {
		if err := deps.CheckRedeemLimiter(ctx, tenantID, subject, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "password_reset_verify", tenantID, func() map[string]string {
					return map[string]string{
						"subject": subject,
					}
				})
			}
			return false, mapped
		}
	}

	deps.MetricInc(deps.Metrics.ResetVerify)
	err := deps.LookupCode(ctx, tenantID, subject, code, deps.Now())
	if err == nil {
		deps.EmitAudit(ctx, deps.Events.ResetVerify, true, "", tenantID, nil, nil)
		return true, nil
	}

	mapped := deps.MapCodeError(err)
	deps.EmitAudit(ctx, deps.Events.ResetVerify, false, "", tenantID, mapped, nil)
	if errors.Is(mapped, deps.Errors.CodeInvalid) || errors.Is(mapped, deps.Errors.CodeExpired) {
		return false, nil
	}
	return false, mapped
}

// RunCompleteReset redeems the reset code and overwrites the secret. The two
// steps are not atomic: if SetSecret fails the code is already spent and the
// caller must request a new one.
func RunCompleteReset(ctx context.Context, email, code, newSecret string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	tenantID := deps.TenantIDFromContext(ctx)
	if !deps.Enabled {
		return deps.Errors.FeatureDisabled
	}
	if deps.RedeemCode == nil || deps.Accounts.FindByEmail == nil || deps.Accounts.SetSecret == nil || deps.Accounts.IsNotFound == nil {
		return deps.Errors.EngineNotReady
	}

	subject := deps.NormalizeSubject(email)
	if subject == "" {
		return deps.Errors.CodeInvalid
	}
	if len(newSecret) < deps.MinSecretLength || strings.TrimSpace(newSecret) == "" {
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetComplete, false, "", tenantID, deps.Errors.PasswordPolicy, nil)
		return deps.Errors.PasswordPolicy
	}

	if deps.CheckRedeemLimiter != nil {
		if err := deps.CheckRedeemLimiter(ctx, tenantID, subject, deps.ClientIPFromContext(ctx)); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "password_reset_complete", tenantID, func() map[string]string {
					return map[string]string{
						"subject": subject,
					}
				})
			}
			deps.EmitAudit(ctx, deps.Events.ResetComplete, false, "", tenantID, mapped, nil)
			return mapped
		}
	}

	if err := deps.RedeemCode(ctx, tenantID, subject, code, deps.Now()); err != nil {
		mapped := deps.MapCodeError(err)
		switch {
		case errors.Is(mapped, deps.Errors.CodeExpired):
			deps.MetricInc(deps.Metrics.CodeExpired)
		case errors.Is(mapped, deps.Errors.CodeInvalid):
			deps.MetricInc(deps.Metrics.CodeInvalid)
		}
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetComplete, false, "", tenantID, mapped, nil)
		return mapped
	}

	if deps.ResetRedeemLimiter != nil {
		_ = deps.ResetRedeemLimiter(ctx, tenantID, subject)
	}

	account, err := deps.Accounts.FindByEmail(ctx, subject)
	if err != nil {
		mapped := deps.Errors.NotFound
		if !deps.Accounts.IsNotFound(err) {
			mapped = unavailable(deps.Errors, err)
		}
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetComplete, false, "", tenantID, mapped, func() map[string]string {
			return map[string]string{
				"reason": "code_consumed_account_missing",
			}
		})
		return mapped
	}

	if err := deps.Accounts.SetSecret(ctx, account, newSecret); err != nil {
		mapped := unavailable(deps.Errors, err)
		deps.MetricInc(deps.Metrics.ResetFailure)
		deps.EmitAudit(ctx, deps.Events.ResetComplete, false, account.ID, tenantID, mapped, func() map[string]string {
			return map[string]string{
				"reason": "code_consumed_secret_not_set",
			}
		})
		return mapped
	}

	deps.MetricInc(deps.Metrics.ResetSuccess)
	deps.EmitAudit(ctx, deps.Events.ResetComplete, true, account.ID, tenantID, nil, nil)
	return nil
}
