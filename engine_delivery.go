package goIdentity

import (
	"context"
	"fmt"
	"time"

	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"go.uber.org/zap"
)

const (
	stepUpMessageSubject = "Your sign-in verification code"
	resetMessageSubject  = "Password Reset Code"
)

// renderMessage builds the subject and plain-text body for a code delivery.
func renderMessage(d internalflows.Delivery) (string, string) {
	expires := d.ExpiresAt.UTC().Format(time.RFC1123)

	switch d.Purpose {
	case stores.PurposePasswordReset.String():
		return resetMessageSubject, fmt.Sprintf(
			"Your password reset code is %s.\nIt expires at %s.\nIf you did not ask to reset your password, ignore this message.",
			d.Code, expires,
		)
	default:
		return stepUpMessageSubject, fmt.Sprintf(
			"Your verification code is %s.\nIt expires at %s.",
			d.Code, expires,
		)
	}
}

// dispatch hands a rendered code message to the Dispatcher. Failures are
// logged, counted and audited but never returned: the code stays issued and
// the caller may request another.
func (e *Engine) dispatch(ctx context.Context, d internalflows.Delivery) {
	if e.dispatcher == nil {
		return
	}
	if !e.config.Delivery.Async {
		e.sendBounded(ctx, d)
		return
	}
	e.dispatchDetached(ctx, d)
}

// dispatchBefore delivers a reset code in the background and waits for it
// until floor at most. A send still running at floor finishes on its own and
// Close waits for it. A zero floor waits for the send to complete.
func (e *Engine) dispatchBefore(ctx context.Context, d internalflows.Delivery, floor time.Time) {
	if e.dispatcher == nil {
		return
	}
	done := e.dispatchDetached(ctx, d)
	if floor.IsZero() {
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	wait := time.Until(floor)
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// dispatchDetached sends d on its own goroutine, detached from the request
// but still bounded by Delivery.Timeout. The returned channel closes when
// the send returns. After Close the send runs inline instead.
func (e *Engine) dispatchDetached(ctx context.Context, d internalflows.Delivery) <-chan struct{} {
	done := make(chan struct{})

	e.deliveryMu.Lock()
	if e.closing {
		e.deliveryMu.Unlock()
		e.sendBounded(ctx, d)
		close(done)
		return done
	}
	e.deliveries.Add(1)
	e.deliveryMu.Unlock()

	base := context.WithoutCancel(ctx)
	go func() {
		defer e.deliveries.Done()
		defer close(done)
		e.sendBounded(base, d)
	}()
	return done
}

func (e *Engine) sendBounded(ctx context.Context, d internalflows.Delivery) {
	subject, body := renderMessage(d)
	sendCtx, cancel := withOptionalTimeout(ctx, e.config.Delivery.Timeout)
	defer cancel()
	e.send(sendCtx, d, subject, body)
}

func (e *Engine) send(ctx context.Context, d internalflows.Delivery, subject, body string) {
	start := time.Now()
	err := e.dispatcher.Send(ctx, Channel(d.Channel), d.Destination, subject, body)
	if e.metrics != nil {
		e.metrics.Observe(MetricDeliveryLatency, time.Since(start))
	}

	if err == nil {
		e.metricInc(MetricDeliverySuccess)
		return
	}

	e.metricInc(MetricDeliveryFailure)
	e.logger.Warn("code delivery failed",
		zap.String("purpose", d.Purpose),
		zap.String("channel", d.Channel),
		zap.String("tenant_id", d.TenantID),
		zap.String("account_id", d.AccountID),
		zap.Error(err),
	)
	e.emitDeliveryFailure(ctx, d.Purpose, d.Channel, d.AccountID, d.TenantID, fmt.Errorf("%w: %v", ErrDeliveryFailure, err))
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
