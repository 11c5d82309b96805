package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCodeRateLimited      = errors.New("code rate limited")
	ErrCodeRedisUnavailable = errors.New("code limiter redis unavailable")
)

// defaultKeyPrefix matches the ledger's default Redis namespace.
const defaultKeyPrefix = "otc"

type CodeConfig struct {
	// Prefix namespaces throttle keys. Engines sharing one Redis keep apart
	// by giving each its own prefix.
	Prefix                string
	EnableSubjectThrottle bool
	EnableIPThrottle      bool
	Window                time.Duration
	MaxIssues             int
	MaxRedeemAttempts     int
}

type CodeLimiter struct {
	redis  redis.UniversalClient
	config CodeConfig
}

func NewCodeLimiter(redisClient redis.UniversalClient, cfg CodeConfig) *CodeLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultKeyPrefix
	}
	return &CodeLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue counts one issuance request for subject and ip.
func (l *CodeLimiter) CheckIssue(ctx context.Context, tenantID, purpose, subject, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableSubjectThrottle && subject != "" {
		if err := l.enforceFixedWindow(ctx, l.key(keyIssue, tenantID, purpose, subject), l.config.MaxIssues); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.key(keyIssueIP, tenantID, purpose, ip), l.config.MaxIssues); err != nil {
			return err
		}
	}
	return nil
}

// CheckRedeem counts one redemption attempt for subject and ip.
func (l *CodeLimiter) CheckRedeem(ctx context.Context, tenantID, purpose, subject, ip string) error {
	if l == nil {
		return nil
	}
	if l.config.EnableSubjectThrottle && subject != "" {
		if err := l.enforceFixedWindow(ctx, l.key(keyRedeem, tenantID, purpose, subject), l.config.MaxRedeemAttempts); err != nil {
			return err
		}
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.enforceFixedWindow(ctx, l.key(keyRedeemIP, tenantID, purpose, ip), l.config.MaxRedeemAttempts); err != nil {
			return err
		}
	}
	return nil
}

// ResetRedeem clears the per-subject attempt window after a successful redemption.
func (l *CodeLimiter) ResetRedeem(ctx context.Context, tenantID, purpose, subject string) error {
	if l == nil || !l.config.EnableSubjectThrottle || subject == "" {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(keyRedeem, tenantID, purpose, subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}
	return nil
}

func (l *CodeLimiter) Window() time.Duration {
	if l == nil {
		return 0
	}
	return l.config.Window
}

func (l *CodeLimiter) enforceFixedWindow(ctx context.Context, key string, max int) error {
	if max <= 0 {
		return nil
	}

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodeRedisUnavailable, err)
		}
	}

	if count > int64(max) {
		return ErrCodeRateLimited
	}

	return nil
}

const (
	keyIssue    = "issue"
	keyIssueIP  = "issue-ip"
	keyRedeem   = "redeem"
	keyRedeemIP = "redeem-ip"
)

// key builds prefix:rl:kind:tenant:purpose:who. The rl segment keeps throttle
// windows apart from ledger records, whose purpose segment is numeric.
func (l *CodeLimiter) key(kind, tenantID, purpose, who string) string {
	return l.config.Prefix + ":rl:" + kind + ":" + normalizeTenantID(tenantID) + ":" + purpose + ":" + who
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}
