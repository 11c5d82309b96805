package goIdentity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPasswordResetEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "  Alice@Example.com ", ChannelEmail); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	msgs := env.outbox.sent()
	if len(msgs) != 1 || msgs[0].Subject != "Password Reset Code" || msgs[0].Destination != "alice@example.com" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	code := env.outbox.lastCode(t)

	for i := 0; i < 2; i++ {
		ok, err := env.engine.VerifyResetCode(ctx, "alice@example.com", code)
		if err != nil || !ok {
			t.Fatalf("VerifyResetCode %d: ok=%v err=%v", i, ok, err)
		}
	}

	if err := env.engine.CompleteReset(ctx, "ALICE@example.com", code, "brand-new-secret"); err != nil {
		t.Fatalf("CompleteReset failed: %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice", "brand-new-secret"); err != nil {
		t.Fatalf("expected login with new secret, got %v", err)
	}
	if _, err := env.engine.Login(ctx, "alice", "correct-horse"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected old secret rejected, got %v", err)
	}

	if err := env.engine.CompleteReset(ctx, "alice@example.com", code, "another-secret-1"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected replay to fail with ErrCodeInvalid, got %v", err)
	}
	ok, err := env.engine.VerifyResetCode(ctx, "alice@example.com", code)
	if err != nil || ok {
		t.Fatalf("expected consumed code to verify false, got ok=%v err=%v", ok, err)
	}

	snap := env.engine.MetricsSnapshot()
	if snap.Counters[MetricResetSuccess] != 1 {
		t.Fatalf("expected 1 reset success, got %d", snap.Counters[MetricResetSuccess])
	}
}

func TestRequestResetUnknownEmailLooksAccepted(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics.Enabled = true
	env := newTestEnv(t, cfg)

	start := time.Now()
	if err := env.engine.RequestReset(context.Background(), "nobody@example.com", ChannelEmail); err != nil {
		t.Fatalf("expected nil for unknown email, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected enumeration delay, took %v", elapsed)
	}

	if len(env.outbox.sent()) != 0 {
		t.Fatal("expected no delivery for unknown email")
	}
	if keys := ledgerKeys(env); len(keys) != 0 {
		t.Fatalf("expected no ledger records, got %v", keys)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricResetUnknownSubject]; got != 1 {
		t.Fatalf("expected 1 unknown subject, got %d", got)
	}
}

func TestRequestResetKnownAndUnknownTakeTheSameTime(t *testing.T) {
	cfg := testConfig()
	cfg.Throttle.EnableSubjectThrottle = false
	cfg.Throttle.EnableIPThrottle = false
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	average := func(email string) time.Duration {
		const runs = 6
		start := time.Now()
		for i := 0; i < runs; i++ {
			if err := env.engine.RequestReset(ctx, email, ChannelEmail); err != nil {
				t.Fatalf("RequestReset(%q): %v", email, err)
			}
		}
		return time.Since(start) / runs
	}

	known := average("alice@example.com")
	unknown := average("nobody@example.com")
	if known < 20*time.Millisecond || unknown < 20*time.Millisecond {
		t.Fatalf("expected both to wait for the floor, known=%v unknown=%v", known, unknown)
	}
	if known > 2*unknown || unknown > 2*known {
		t.Fatalf("known and unknown diverge: known=%v unknown=%v", known, unknown)
	}
	if got := len(env.outbox.sent()); got != 6 {
		t.Fatalf("expected 6 deliveries to the known account, got %d", got)
	}
}

type slowDispatcher struct {
	delay time.Duration
	inner *outboxDispatcher
}

func (s *slowDispatcher) Send(ctx context.Context, channel Channel, destination, subject, body string) error {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.inner.Send(ctx, channel, destination, subject, body)
}

func TestRequestResetSlowDeliveryDoesNotStretchResponse(t *testing.T) {
	cfg := testConfig()
	cfg.Delivery.Timeout = 5 * time.Second
	slow := &slowDispatcher{delay: 300 * time.Millisecond, inner: &outboxDispatcher{}}
	env := newTestEnv(t, cfg, func(b *Builder) { b.WithDispatcher(slow) })

	start := time.Now()
	if err := env.engine.RequestReset(context.Background(), "alice@example.com", ChannelEmail); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= 200*time.Millisecond {
		t.Fatalf("RequestReset waited for the dispatcher: %v", elapsed)
	}

	env.engine.Close()
	if len(slow.inner.sent()) != 1 {
		t.Fatal("expected the delivery to finish before Close returned")
	}
}

func TestRequestResetSMSFallsBackToEmail(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "bob@example.com", ChannelSMS); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	msgs := env.outbox.sent()
	if len(msgs) != 1 || msgs[0].Channel != ChannelEmail || msgs[0].Destination != "bob@example.com" {
		t.Fatalf("expected email fallback, got %+v", msgs)
	}

	if err := env.engine.RequestReset(ctx, "alice@example.com", ChannelSMS); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	msgs = env.outbox.sent()
	if msgs[len(msgs)-1].Channel != ChannelSMS || msgs[len(msgs)-1].Destination != "+15550001234" {
		t.Fatalf("expected sms delivery, got %+v", msgs[len(msgs)-1])
	}
}

func TestCompleteResetPolicyKeepsCode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "alice@example.com", ChannelEmail); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	code := env.outbox.lastCode(t)

	if err := env.engine.CompleteReset(ctx, "alice@example.com", code, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if env.store.setSecretCalls != 0 {
		t.Fatal("expected no secret write on policy failure")
	}
	if err := env.engine.CompleteReset(ctx, "alice@example.com", code, "long-enough-secret"); err != nil {
		t.Fatalf("expected code to survive policy failure, got %v", err)
	}
}

func TestCompleteResetWrongAndExpiredCode(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordReset.CodeTTL = 40 * time.Millisecond
	env := newTestEnv(t, cfg, func(b *Builder) {
		b.WithCodeGenerator(&sequenceGenerator{codes: []string{"424242"}})
	})
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "alice@example.com", ChannelEmail); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}

	if err := env.engine.CompleteReset(ctx, "alice@example.com", "999999", "long-enough-secret"); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("expected ErrCodeInvalid, got %v", err)
	}

	time.Sleep(80 * time.Millisecond)
	if err := env.engine.CompleteReset(ctx, "alice@example.com", "424242", "long-enough-secret"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
	ok, err := env.engine.VerifyResetCode(ctx, "alice@example.com", "424242")
	if err != nil || ok {
		t.Fatalf("expected expired code to verify false, got ok=%v err=%v", ok, err)
	}
}

func TestCompleteResetAccountRemoved(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "bob@example.com", ChannelEmail); err != nil {
		t.Fatalf("RequestReset failed: %v", err)
	}
	code := env.outbox.lastCode(t)
	env.store.remove("u2")

	if err := env.engine.CompleteReset(ctx, "bob@example.com", code, "long-enough-secret"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRequestResetThrottleAppliesToUnknownEmails(t *testing.T) {
	cfg := testConfig()
	cfg.Throttle.MaxIssues = 1
	cfg.PasswordReset.EnumerationDelayMin = 0
	cfg.PasswordReset.EnumerationDelayMax = 0
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "nobody@example.com", ChannelEmail); err != nil {
		t.Fatalf("first RequestReset failed: %v", err)
	}
	if err := env.engine.RequestReset(ctx, "nobody@example.com", ChannelEmail); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited for unknown email, got %v", err)
	}
}

func TestPasswordResetDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordReset.Enabled = false
	env := newTestEnv(t, cfg)
	ctx := context.Background()

	if err := env.engine.RequestReset(ctx, "alice@example.com", ChannelEmail); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
	if _, err := env.engine.VerifyResetCode(ctx, "alice@example.com", "123456"); !errors.Is(err, ErrFeatureDisabled) {
		t.Fatalf("expected ErrFeatureDisabled, got %v", err)
	}
}

func TestEnumerationDelayWithinBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := enumerationDelay(20*time.Millisecond, 40*time.Millisecond)
		if d < 20*time.Millisecond || d > 40*time.Millisecond {
			t.Fatalf("delay %v out of bounds", d)
		}
	}
	if d := enumerationDelay(5*time.Millisecond, 5*time.Millisecond); d != 5*time.Millisecond {
		t.Fatalf("expected fixed delay, got %v", d)
	}
}
