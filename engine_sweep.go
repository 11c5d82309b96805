package goIdentity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// SweepExpiredCodes deletes every code whose expiry has passed and returns
// how many were removed.
func (e *Engine) SweepExpiredCodes(ctx context.Context) (int, error) {
	if e == nil || e.ledger == nil {
		return 0, ErrEngineNotReady
	}

	n, err := e.ledger.Expire(ctx, time.Now())
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if n > 0 {
		if e.metrics != nil {
			e.metrics.Add(MetricCodesSwept, uint64(n))
		}
		e.emitAudit(ctx, auditEventCodesSwept, true, "", "", nil, func() map[string]string {
			return map[string]string{
				"count": strconv.Itoa(n),
			}
		})
	}
	return n, nil
}

// RunSweeper calls SweepExpiredCodes every interval until ctx is done. A
// non-positive interval uses Config.Codes.SweepInterval. Sweep errors are
// logged and do not stop the loop.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) error {
	if e == nil || e.ledger == nil {
		return ErrEngineNotReady
	}
	if interval <= 0 {
		interval = e.config.Codes.SweepInterval
	}
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := e.SweepExpiredCodes(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("code sweep failed", zap.Error(err))
			}
		}
	}
}
