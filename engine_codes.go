package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
)

// codeDeps bundles the ledger and throttle closures for one purpose.
type codeDeps struct {
	issue       func(context.Context, string, string, time.Duration) (internalflows.CodeTicket, error)
	redeem      func(context.Context, string, string, string, time.Time) error
	lookup      func(context.Context, string, string, string, time.Time) error
	checkIssue  func(context.Context, string, string, string) error
	checkRedeem func(context.Context, string, string, string) error
	resetRedeem func(context.Context, string, string) error
}

func (e *Engine) codeDeps(purpose stores.Purpose) codeDeps {
	var out codeDeps
	if e == nil {
		return out
	}

	if e.ledger != nil {
		ledger := e.ledger
		digits := e.codeDigits
		out.issue = func(ctx context.Context, tenantID, subject string, ttl time.Duration) (internalflows.CodeTicket, error) {
			issued, err := ledger.Issue(ctx, tenantID, subject, purpose, ttl)
			if err != nil {
				return internalflows.CodeTicket{}, err
			}
			return internalflows.CodeTicket{
				Code:      issued.Code,
				ExpiresAt: issued.ExpiresAt,
			}, nil
		}
		out.redeem = func(ctx context.Context, tenantID, subject, code string, now time.Time) error {
			if !wellFormedCode(code, digits) {
				return stores.ErrCodeMismatch
			}
			return ledger.Redeem(ctx, tenantID, subject, purpose, code, now)
		}
		out.lookup = func(ctx context.Context, tenantID, subject, code string, now time.Time) error {
			if !wellFormedCode(code, digits) {
				return stores.ErrCodeMismatch
			}
			return ledger.Lookup(ctx, tenantID, subject, purpose, code, now)
		}
	}

	if e.limiter != nil {
		limiter := e.limiter
		name := purpose.String()
		out.checkIssue = func(ctx context.Context, tenantID, subject, ip string) error {
			return limiter.CheckIssue(ctx, tenantID, name, subject, ip)
		}
		out.checkRedeem = func(ctx context.Context, tenantID, subject, ip string) error {
			return limiter.CheckRedeem(ctx, tenantID, name, subject, ip)
		}
		out.resetRedeem = func(ctx context.Context, tenantID, subject string) error {
			return limiter.ResetRedeem(ctx, tenantID, name, subject)
		}
	}

	return out
}

// wellFormedCode rejects presented codes the default generator could never
// have produced. Zero digits means a custom generator and skips the check.
func wellFormedCode(code string, digits int) bool {
	if digits == 0 {
		return code != ""
	}
	return internal.IsNumericCode(code, digits)
}

// mapCodeError translates ledger errors into the public taxonomy.
func mapCodeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrCodeNotFound), errors.Is(err, stores.ErrCodeMismatch):
		return ErrCodeInvalid
	case errors.Is(err, stores.ErrCodeExpired):
		return ErrCodeExpired
	case errors.Is(err, stores.ErrInvalidCodeIssue):
		return ErrInvalidRequest
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}

// mapLimiterError translates throttle errors into the public taxonomy.
func mapLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrCodeRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
