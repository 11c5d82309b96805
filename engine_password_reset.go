package goIdentity

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/stores"
)

// RequestReset sends a reset code to the account registered under email.
// It returns nil whether or not the email is known and unknown emails create
// no code. Every nil answer is held until a random floor drawn from
// PasswordReset.EnumerationDelayMin..Max, and delivery to a known account is
// awaited only up to that floor, so both cases take the same time.
func (e *Engine) RequestReset(ctx context.Context, email string, channel Channel) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunRequestReset(ctx, email, string(channel), e.passwordResetFlowDeps())
}

// VerifyResetCode reports whether code is currently valid for email without
// consuming it.
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}
	return internalflows.RunVerifyResetCode(ctx, email, code, e.passwordResetFlowDeps())
}

// CompleteReset redeems code and replaces the account secret with newSecret.
// The password policy is checked first, so a rejected secret leaves the code
// usable.
func (e *Engine) CompleteReset(ctx context.Context, email, code, newSecret string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return internalflows.RunCompleteReset(ctx, email, code, newSecret, e.passwordResetFlowDeps())
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	cfg := e.config.PasswordReset
	codes := e.codeDeps(stores.PurposePasswordReset)

	return internalflows.PasswordResetDeps{
		Hooks:              e.flowHooks(),
		Enabled:            cfg.Enabled,
		TTL:                cfg.CodeTTL,
		Purpose:            stores.PurposePasswordReset.String(),
		MinSecretLength:    cfg.MinSecretLength,
		FallbackToEmail:    cfg.FallbackToEmail,
		ResponseFloor:      e.resetResponseFloor,
		WaitUntil:          waitUntil,
		Accounts:           e.accountDeps(),
		CheckIssueLimiter:  codes.checkIssue,
		CheckRedeemLimiter: codes.checkRedeem,
		ResetRedeemLimiter: codes.resetRedeem,
		MapLimiterError:    mapLimiterError,
		IssueCode:          codes.issue,
		RedeemCode:         codes.redeem,
		LookupCode:         codes.lookup,
		MapCodeError:       mapCodeError,
		Dispatch:           e.dispatch,
		DispatchBefore:     e.dispatchBefore,
		Metrics: internalflows.PasswordResetMetrics{
			ResetRequest:        int(MetricResetRequest),
			ResetUnknownSubject: int(MetricResetUnknownSubject),
			ResetVerify:         int(MetricResetVerify),
			ResetSuccess:        int(MetricResetSuccess),
			ResetFailure:        int(MetricResetFailure),
			CodeInvalid:         int(MetricCodeInvalid),
			CodeExpired:         int(MetricCodeExpired),
		},
		Events: internalflows.PasswordResetEvents{
			ResetRequest:  auditEventPasswordResetRequest,
			ResetVerify:   auditEventPasswordResetVerify,
			ResetComplete: auditEventPasswordResetComplete,
		},
		Errors: flowErrors(),
	}
}

// resetResponseFloor draws the earliest instant a reset request may answer.
// A zero window disables the floor.
func (e *Engine) resetResponseFloor() time.Time {
	delay := enumerationDelay(e.config.PasswordReset.EnumerationDelayMin, e.config.PasswordReset.EnumerationDelayMax)
	if delay <= 0 {
		return time.Time{}
	}
	return time.Now().Add(delay)
}

func waitUntil(ctx context.Context, deadline time.Time) error {
	wait := time.Until(deadline)
	if deadline.IsZero() || wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func enumerationDelay(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo)+1))
	if err != nil {
		return lo
	}
	return lo + time.Duration(n.Int64())
}
