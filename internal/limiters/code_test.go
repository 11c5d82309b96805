package limiters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg CodeConfig) (*miniredis.Miniredis, *CodeLimiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, NewCodeLimiter(rdb, cfg)
}

func TestCodeLimiterIssueWindow(t *testing.T) {
	mr, l := newTestLimiter(t, CodeConfig{
		EnableSubjectThrottle: true,
		Window:                time.Minute,
		MaxIssues:             2,
		MaxRedeemAttempts:     5,
	})
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.CheckIssue(ctx, "0", "password_reset", "bob@x.com", ""); err != nil {
			t.Fatalf("issue %d unexpectedly limited: %v", i, err)
		}
	}
	if err := l.CheckIssue(ctx, "0", "password_reset", "bob@x.com", ""); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected ErrCodeRateLimited, got %v", err)
	}
	if ttl := mr.TTL("otc:rl:issue:0:password_reset:bob@x.com"); ttl != time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}

	// other subjects and purposes keep their own windows
	if err := l.CheckIssue(ctx, "0", "password_reset", "carol@x.com", ""); err != nil {
		t.Fatalf("expected other subject allowed, got %v", err)
	}
	if err := l.CheckIssue(ctx, "0", "login_step_up", "bob@x.com", ""); err != nil {
		t.Fatalf("expected other purpose allowed, got %v", err)
	}

	mr.FastForward(time.Minute)
	if err := l.CheckIssue(ctx, "0", "password_reset", "bob@x.com", ""); err != nil {
		t.Fatalf("expected window reset after expiry, got %v", err)
	}
}

func TestCodeLimiterIPThrottle(t *testing.T) {
	mr, l := newTestLimiter(t, CodeConfig{
		EnableIPThrottle:  true,
		Window:            time.Minute,
		MaxIssues:         1,
		MaxRedeemAttempts: 1,
	})
	defer mr.Close()

	ctx := context.Background()
	if err := l.CheckIssue(ctx, "0", "password_reset", "a@x.com", "10.0.0.1"); err != nil {
		t.Fatalf("first issue limited: %v", err)
	}
	if err := l.CheckIssue(ctx, "0", "password_reset", "b@x.com", "10.0.0.1"); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected ip throttle across subjects, got %v", err)
	}
	if err := l.CheckIssue(ctx, "0", "password_reset", "b@x.com", ""); err != nil {
		t.Fatalf("expected missing ip to skip ip throttle, got %v", err)
	}
}

func TestCodeLimiterRedeemReset(t *testing.T) {
	mr, l := newTestLimiter(t, CodeConfig{
		EnableSubjectThrottle: true,
		Window:                time.Minute,
		MaxIssues:             5,
		MaxRedeemAttempts:     2,
	})
	defer mr.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.CheckRedeem(ctx, "0", "login_step_up", "acct-1", ""); err != nil {
			t.Fatalf("attempt %d limited: %v", i, err)
		}
	}
	if err := l.CheckRedeem(ctx, "0", "login_step_up", "acct-1", ""); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected ErrCodeRateLimited, got %v", err)
	}
	if err := l.ResetRedeem(ctx, "0", "login_step_up", "acct-1"); err != nil {
		t.Fatalf("ResetRedeem failed: %v", err)
	}
	if err := l.CheckRedeem(ctx, "0", "login_step_up", "acct-1", ""); err != nil {
		t.Fatalf("expected reset window to allow attempt, got %v", err)
	}
}

func TestCodeLimiterNilAndUnavailable(t *testing.T) {
	var nilLimiter *CodeLimiter
	if err := nilLimiter.CheckIssue(context.Background(), "0", "p", "s", "ip"); err != nil {
		t.Fatalf("nil limiter should allow, got %v", err)
	}

	mr, l := newTestLimiter(t, CodeConfig{EnableSubjectThrottle: true, Window: time.Minute, MaxIssues: 1})
	mr.Close()
	if err := l.CheckIssue(context.Background(), "0", "p", "s", ""); !errors.Is(err, ErrCodeRedisUnavailable) {
		t.Fatalf("expected ErrCodeRedisUnavailable, got %v", err)
	}
}

func TestCodeLimiterPrefixesKeepWindowsApart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := CodeConfig{
		EnableSubjectThrottle: true,
		Window:                time.Minute,
		MaxIssues:             1,
		MaxRedeemAttempts:     1,
	}
	cfg.Prefix = "app-a"
	a := NewCodeLimiter(rdb, cfg)
	cfg.Prefix = "app-b"
	b := NewCodeLimiter(rdb, cfg)

	ctx := context.Background()
	if err := a.CheckIssue(ctx, "0", "login_step_up", "alice", ""); err != nil {
		t.Fatalf("first issue under app-a limited: %v", err)
	}
	if err := a.CheckIssue(ctx, "0", "login_step_up", "alice", ""); !errors.Is(err, ErrCodeRateLimited) {
		t.Fatalf("expected app-a window exhausted, got %v", err)
	}
	if err := b.CheckIssue(ctx, "0", "login_step_up", "alice", ""); err != nil {
		t.Fatalf("expected app-b to keep its own window, got %v", err)
	}
	if err := b.CheckRedeem(ctx, "0", "login_step_up", "alice", ""); err != nil {
		t.Fatalf("expected app-b redeem allowed, got %v", err)
	}

	if !mr.Exists("app-a:rl:issue:0:login_step_up:alice") || !mr.Exists("app-b:rl:redeem:0:login_step_up:alice") {
		t.Fatalf("expected prefixed throttle keys, got %v", mr.Keys())
	}
}

func TestCodeLimiterDefaultPrefix(t *testing.T) {
	mr, l := newTestLimiter(t, CodeConfig{EnableIPThrottle: true, Window: time.Minute, MaxIssues: 3, MaxRedeemAttempts: 3})
	defer mr.Close()

	if err := l.CheckRedeem(context.Background(), "", "password_reset", "", "10.0.0.1"); err != nil {
		t.Fatalf("CheckRedeem failed: %v", err)
	}
	if !mr.Exists("otc:rl:redeem-ip:0:password_reset:10.0.0.1") {
		t.Fatalf("expected default-prefixed key, got %v", mr.Keys())
	}
}
