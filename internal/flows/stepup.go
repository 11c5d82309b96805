package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

type StepUpMetrics struct {
	StepUpIssued     int
	StepUpSuccess    int
	StepUpFailure    int
	LoginLocked      int
	CodeInvalid      int
	CodeExpired      int
	CredentialIssued int
}

type StepUpEvents struct {
	StepUpBegin    string
	StepUpComplete string
}

// StepUpChallenge is the Issued result of BeginStepUp. It never holds the code.
type StepUpChallenge struct {
	Channel     string
	Destination string
	ExpiresAt   time.Time
}

// StepUpDeps captures the two-call step-up login dependencies.
type StepUpDeps struct {
	Hooks

	Enabled bool
	TTL     time.Duration
	Purpose string

	Accounts AccountDeps

	CheckIssueLimiter  func(context.Context, string, string, string) error
	CheckRedeemLimiter func(context.Context, string, string, string) error
	ResetRedeemLimiter func(context.Context, string, string) error
	MapLimiterError    func(error) error

	IssueCode    func(context.Context, string, string, time.Duration) (CodeTicket, error)
	RedeemCode   func(context.Context, string, string, string, time.Time) error
	MapCodeError func(error) error

	Dispatch        func(context.Context, Delivery)
	IssueCredential func(context.Context, AccountRecord, []string) (CredentialRecord, error)

	Metrics StepUpMetrics
	Events  StepUpEvents
	Errors  Errors
}

func normalizeStepUpDeps(deps *StepUpDeps) {
	deps.normalize()
	if deps.MapLimiterError == nil {
		deps.MapLimiterError = func(err error) error { return err }
	}
	if deps.MapCodeError == nil {
		deps.MapCodeError = func(err error) error { return err }
	}
	if deps.Dispatch == nil {
		deps.Dispatch = func(context.Context, Delivery) {}
	}
}

// RunBeginStepUp verifies the secret, issues a fresh step-up code keyed by the
// account ID and hands it to the dispatcher. Any earlier code for the account
// stops being valid.
func RunBeginStepUp(ctx context.Context, identifier, secret, channel string, deps StepUpDeps) (*StepUpChallenge, error) {
	normalizeStepUpDeps(&deps)

	tenantID := deps.TenantIDFromContext(ctx)
	if !deps.Enabled {
		deps.EmitAudit(ctx, deps.Events.StepUpBegin, false, "", tenantID, deps.Errors.FeatureDisabled, nil)
		return nil, deps.Errors.FeatureDisabled
	}
	if !deps.Accounts.ready() || deps.IssueCode == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if channel != ChannelEmail && channel != ChannelSMS {
		return nil, deps.Errors.InvalidRequest
	}

	account, err := authenticate(ctx, identifier, secret, deps.Accounts, deps.Errors)
	if err != nil {
		if errors.Is(err, deps.Errors.Locked) {
			deps.MetricInc(deps.Metrics.LoginLocked)
		}
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpBegin, false, account.ID, tenantID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
				"channel":    channel,
			}
		})
		return nil, err
	}

	resolvedChannel, destination, ok := resolveDestination(account, channel, false)
	if !ok {
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpBegin, false, account.ID, tenantID, deps.Errors.NotFound, func() map[string]string {
			return map[string]string{
				"reason":  "no_destination",
				"channel": channel,
			}
		})
		return nil, deps.Errors.NotFound
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckIssueLimiter != nil {
		if err := deps.CheckIssueLimiter(ctx, tenantID, account.ID, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "step_up_issue", tenantID, func() map[string]string {
					return map[string]string{
						"account_id": account.ID,
					}
				})
			}
			deps.EmitAudit(ctx, deps.Events.StepUpBegin, false, account.ID, tenantID, mapped, nil)
			return nil, mapped
		}
	}

	// commit or don't start: a canceled request never reaches the ledger write
	if err := ctx.Err(); err != nil {
		return nil, unavailable(deps.Errors, err)
	}

	ticket, err := deps.IssueCode(ctx, tenantID, account.ID, deps.TTL)
	if err != nil {
		mapped := deps.MapCodeError(err)
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpBegin, false, account.ID, tenantID, mapped, func() map[string]string {
			return map[string]string{
				"reason": "issue_failed",
			}
		})
		return nil, mapped
	}

	deps.Dispatch(ctx, Delivery{
		AccountID:   account.ID,
		TenantID:    tenantID,
		Purpose:     deps.Purpose,
		Channel:     resolvedChannel,
		Destination: destination,
		Code:        ticket.Code,
		ExpiresAt:   ticket.ExpiresAt,
	})

	deps.MetricInc(deps.Metrics.StepUpIssued)
	deps.EmitAudit(ctx, deps.Events.StepUpBegin, true, account.ID, tenantID, nil, func() map[string]string {
		return map[string]string{
			"channel": resolvedChannel,
		}
	})

	return &StepUpChallenge{
		Channel:     resolvedChannel,
		Destination: MaskDestination(resolvedChannel, destination),
		ExpiresAt:   ticket.ExpiresAt,
	}, nil
}

// RunCompleteStepUp re-verifies the secret, redeems the code exactly once and
// issues a credential.
func RunCompleteStepUp(ctx context.Context, identifier, secret, code string, deps StepUpDeps) (*CredentialRecord, error) {
	normalizeStepUpDeps(&deps)

	tenantID := deps.TenantIDFromContext(ctx)
	if !deps.Enabled {
		deps.EmitAudit(ctx, deps.Events.StepUpComplete, false, "", tenantID, deps.Errors.FeatureDisabled, nil)
		return nil, deps.Errors.FeatureDisabled
	}
	if !deps.Accounts.ready() || deps.RedeemCode == nil || deps.IssueCredential == nil {
		return nil, deps.Errors.EngineNotReady
	}

	account, err := authenticate(ctx, identifier, secret, deps.Accounts, deps.Errors)
	if err != nil {
		if errors.Is(err, deps.Errors.Locked) {
			deps.MetricInc(deps.Metrics.LoginLocked)
		}
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpComplete, false, account.ID, tenantID, err, func() map[string]string {
			return map[string]string{
				"identifier": identifier,
			}
		})
		return nil, err
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckRedeemLimiter != nil {
		if err := deps.CheckRedeemLimiter(ctx, tenantID, account.ID, ip); err != nil {
			mapped := deps.MapLimiterError(err)
			if errors.Is(mapped, deps.Errors.RateLimited) {
				deps.EmitRateLimit(ctx, "step_up_redeem", tenantID, func() map[string]string {
					return map[string]string{
						"account_id": account.ID,
					}
				})
			}
			deps.EmitAudit(ctx, deps.Events.StepUpComplete, false, account.ID, tenantID, mapped, nil)
			return nil, mapped
		}
	}

	if err := deps.RedeemCode(ctx, tenantID, account.ID, code, deps.Now()); err != nil {
		mapped := deps.MapCodeError(err)
		switch {
		case errors.Is(mapped, deps.Errors.CodeExpired):
			deps.MetricInc(deps.Metrics.CodeExpired)
		case errors.Is(mapped, deps.Errors.CodeInvalid):
			deps.MetricInc(deps.Metrics.CodeInvalid)
		}
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpComplete, false, account.ID, tenantID, mapped, nil)
		return nil, mapped
	}

	if deps.ResetRedeemLimiter != nil {
		_ = deps.ResetRedeemLimiter(ctx, tenantID, account.ID)
	}

	credential, err := issueCredential(ctx, account, deps.Accounts, deps.IssueCredential, deps.Errors)
	if err != nil {
		deps.MetricInc(deps.Metrics.StepUpFailure)
		deps.EmitAudit(ctx, deps.Events.StepUpComplete, false, account.ID, tenantID, err, func() map[string]string {
			return map[string]string{
				"reason": "credential_issue_failed",
			}
		})
		return nil, err
	}

	deps.MetricInc(deps.Metrics.CredentialIssued)
	deps.MetricInc(deps.Metrics.StepUpSuccess)
	deps.EmitAudit(ctx, deps.Events.StepUpComplete, true, account.ID, tenantID, nil, func() map[string]string {
		return map[string]string{
			"roles": strings.Join(credential.Roles, ","),
		}
	})

	return credential, nil
}
