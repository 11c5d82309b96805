package goIdentity

import (
	"context"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/stores"
)

// BeginStepUp verifies identifier and secret, issues a step-up code for the
// account and sends it over channel. The returned challenge never contains
// the code. A code issued earlier for the same account stops being valid.
func (e *Engine) BeginStepUp(ctx context.Context, identifier, secret string, channel Channel) (*StepUpChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	challenge, err := internalflows.RunBeginStepUp(ctx, identifier, secret, string(channel), e.stepUpFlowDeps())
	if err != nil {
		return nil, err
	}

	return &StepUpChallenge{
		Channel:     Channel(challenge.Channel),
		Destination: challenge.Destination,
		ExpiresAt:   challenge.ExpiresAt,
	}, nil
}

// CompleteStepUp re-verifies the secret, redeems code and returns a
// credential. A code redeems at most once.
func (e *Engine) CompleteStepUp(ctx context.Context, identifier, secret, code string) (*Credential, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	record, err := internalflows.RunCompleteStepUp(ctx, identifier, secret, code, e.stepUpFlowDeps())
	if err != nil {
		return nil, err
	}
	return credentialFromRecord(record), nil
}

func (e *Engine) stepUpFlowDeps() internalflows.StepUpDeps {
	codes := e.codeDeps(stores.PurposeLoginStepUp)

	return internalflows.StepUpDeps{
		Hooks:              e.flowHooks(),
		Enabled:            e.config.StepUp.Enabled,
		TTL:                e.config.StepUp.CodeTTL,
		Purpose:            stores.PurposeLoginStepUp.String(),
		Accounts:           e.accountDeps(),
		CheckIssueLimiter:  codes.checkIssue,
		CheckRedeemLimiter: codes.checkRedeem,
		ResetRedeemLimiter: codes.resetRedeem,
		MapLimiterError:    mapLimiterError,
		IssueCode:          codes.issue,
		RedeemCode:         codes.redeem,
		MapCodeError:       mapCodeError,
		Dispatch:           e.dispatch,
		IssueCredential:    e.issueCredential,
		Metrics: internalflows.StepUpMetrics{
			StepUpIssued:     int(MetricStepUpIssued),
			StepUpSuccess:    int(MetricStepUpSuccess),
			StepUpFailure:    int(MetricStepUpFailure),
			LoginLocked:      int(MetricLoginLocked),
			CodeInvalid:      int(MetricCodeInvalid),
			CodeExpired:      int(MetricCodeExpired),
			CredentialIssued: int(MetricCredentialIssued),
		},
		Events: internalflows.StepUpEvents{
			StepUpBegin:    auditEventStepUpBegin,
			StepUpComplete: auditEventStepUpComplete,
		},
		Errors: flowErrors(),
	}
}
