package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisLedgerPrefix = "otc"
	defaultExpiredGrace      = time.Minute
	redeemMaxRetries         = 4
	sweepBatchSize           = 256
	sweepMaxBatches          = 64
)

// RedisLedger stores one record per (tenant, purpose, subject) key and keeps
// an expiry index in a sorted set so Expire can find stale keys without SCAN.
type RedisLedger struct {
	redis    redis.UniversalClient
	prefix   string
	grace    time.Duration
	generate CodeGenerator
	now      func() time.Time
}

func NewRedisLedger(redisClient redis.UniversalClient, prefix string, generate CodeGenerator) *RedisLedger {
	if prefix == "" {
		prefix = defaultRedisLedgerPrefix
	}
	return &RedisLedger{
		redis:    redisClient,
		prefix:   prefix,
		grace:    defaultExpiredGrace,
		generate: generate,
		now:      time.Now,
	}
}

// WithExpiredGrace sets how long a record outlives its expiry in Redis. A
// redemption inside the grace window reports expiry instead of not-found.
func (l *RedisLedger) WithExpiredGrace(grace time.Duration) *RedisLedger {
	if grace >= 0 {
		l.grace = grace
	}
	return l
}

func (l *RedisLedger) key(tenantID, subject string, purpose Purpose) string {
	return l.prefix + ":" + normalizeTenantID(tenantID) + ":" + strconv.Itoa(int(purpose)) + ":" + subject
}

func (l *RedisLedger) expiryKey() string {
	return l.prefix + ":expiry"
}

func (l *RedisLedger) Issue(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	ttl time.Duration,
) (*IssuedCode, error) {
	code, err := prepareIssue(subject, ttl, l.generate)
	if err != nil {
		return nil, err
	}

	now := l.now()
	record := newCodeRecord(purpose, code, now, ttl)
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := l.key(tenantID, subject, purpose)
	_, err = l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, encoded, ttl+l.grace)
		pipe.ZAdd(ctx, l.expiryKey(), redis.Z{Score: float64(record.ExpiresAt), Member: key})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return &IssuedCode{
		Code:      code,
		Purpose:   purpose,
		CreatedAt: time.UnixMilli(record.CreatedAt),
		ExpiresAt: time.UnixMilli(record.ExpiresAt),
	}, nil
}

func (l *RedisLedger) Redeem(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	code string,
	now time.Time,
) error {
	key := l.key(tenantID, subject, purpose)

	for i := 0; i < redeemMaxRetries; i++ {
		err := l.redis.Watch(ctx, func(tx *redis.Tx) error {
			record, err := l.read(ctx, tx, key)
			if err != nil {
				return err
			}
			if err := record.check(purpose, code, now); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, l.expiryKey(), key)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return classifyRedisErr(err)
		}
		return nil
	}

	// every retry lost to a concurrent writer, so the code is gone
	return ErrCodeNotFound
}

func (l *RedisLedger) Lookup(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	code string,
	now time.Time,
) error {
	record, err := l.read(ctx, l.redis, l.key(tenantID, subject, purpose))
	if err != nil {
		return classifyRedisErr(err)
	}
	return record.check(purpose, code, now)
}

// Expire removes records whose expiry is at or before now and returns how
// many it deleted. Keys reissued during the sweep are left alone.
func (l *RedisLedger) Expire(ctx context.Context, now time.Time) (int, error) {
	max := strconv.FormatInt(now.UnixMilli(), 10)
	removed := 0

	for batch := 0; batch < sweepMaxBatches; batch++ {
		keys, err := l.redis.ZRangeByScore(ctx, l.expiryKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   max,
			Count: sweepBatchSize,
		}).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		if len(keys) == 0 {
			return removed, nil
		}

		progressed := false
		for _, key := range keys {
			deleted, touched, err := l.expireKey(ctx, key, now)
			if err != nil {
				return removed, err
			}
			if deleted {
				removed++
			}
			if touched {
				progressed = true
			}
		}
		if !progressed || len(keys) < sweepBatchSize {
			return removed, nil
		}
	}

	return removed, nil
}

func (l *RedisLedger) expireKey(ctx context.Context, key string, now time.Time) (deleted bool, touched bool, err error) {
	err = l.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if err == nil {
			record, decodeErr := decodeCodeRecord(data)
			if decodeErr == nil && record.ExpiresAt > now.UnixMilli() {
				return nil
			}
			deleted = true
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if deleted {
				pipe.Del(ctx, key)
			}
			pipe.ZRem(ctx, l.expiryKey(), key)
			return nil
		})
		if err == nil {
			touched = true
		}
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return deleted && touched, touched, nil
}

func (l *RedisLedger) read(ctx context.Context, cmd stringGetter, key string) (*CodeRecord, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, err
	}
	return decodeCodeRecord(data)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func classifyRedisErr(err error) error {
	switch {
	case errors.Is(err, ErrCodeNotFound),
		errors.Is(err, ErrCodeMismatch),
		errors.Is(err, ErrCodeExpired):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
}
