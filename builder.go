package goIdentity

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PostgresQuerier is the subset of *pgxpool.Pool used for the Postgres code
// ledger.
type PostgresQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Builder assembles an Engine. A Builder can be built once.
type Builder struct {
	config   Config
	redis    redis.UniversalClient
	postgres PostgresQuerier

	credentials CredentialStore
	dispatcher  Dispatcher
	external    ExternalLoginResolver
	auditSink   AuditSink
	logger      *zap.Logger
	generator   CodeGenerator

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client used by the Redis code ledger and the throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithPostgres stores one-time codes in Postgres instead of Redis. Throttles
// still need WithRedis. A Postgres-only engine must run with both throttles
// disabled, which leaves issuance and redemption attempts unlimited: a
// six-digit code can then be guessed within its TTL by a caller that is not
// limited upstream. Build logs a warning in that configuration.
func (b *Builder) WithPostgres(db PostgresQuerier) *Builder {
	b.postgres = db
	return b
}

func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

func (b *Builder) WithDispatcher(d Dispatcher) *Builder {
	b.dispatcher = d
	return b
}

// WithExternalLoginResolver enables LoginExternal.
func (b *Builder) WithExternalLoginResolver(r ExternalLoginResolver) *Builder {
	b.external = r
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the logger for best-effort failures. The default is a
// no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithCodeGenerator replaces the default crypto/rand numeric generator.
func (b *Builder) WithCodeGenerator(g CodeGenerator) *Builder {
	b.generator = g
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.redis == nil && b.postgres == nil {
		return nil, errors.New("redis client or postgres pool required for the code ledger")
	}
	if b.redis == nil && (cfg.Throttle.EnableSubjectThrottle || cfg.Throttle.EnableIPThrottle) {
		return nil, errors.New("Throttle requires redis client")
	}
	if b.dispatcher == nil && (cfg.StepUp.Enabled || cfg.PasswordReset.Enabled) {
		return nil, errors.New("dispatcher required when step-up or password reset is enabled")
	}

	generator := b.generator
	if generator == nil {
		generator = NumericCodeGenerator{Digits: cfg.Codes.Digits}
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	jm, err := jwt.NewManager(jwt.Config{
		TTL:           cfg.JWT.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifyKeys:    cfg.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	var ledger stores.Ledger
	if b.postgres != nil {
		ledger = stores.NewPostgresLedger(b.postgres, generator.Generate)
	} else {
		ledger = stores.NewRedisLedger(b.redis, cfg.Codes.RedisPrefix, generator.Generate).
			WithExpiredGrace(cfg.Codes.ExpiredGrace)
	}

	engine := &Engine{
		config:      cfg,
		logger:      logger.Named("identity"),
		ledger:      ledger,
		credentials: b.credentials,
		dispatcher:  b.dispatcher,
		external:    b.external,
		jwtManager:  jm,
		metrics:     NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			Retained:   []string{auditEventCodeDeliveryFailed},
		}, b.auditSink),
	}
	if b.generator == nil {
		engine.codeDigits = cfg.Codes.Digits
	}
	if b.redis != nil {
		engine.limiter = limiters.NewCodeLimiter(b.redis, limiters.CodeConfig{
			Prefix:                cfg.Codes.RedisPrefix,
			EnableSubjectThrottle: cfg.Throttle.EnableSubjectThrottle,
			EnableIPThrottle:      cfg.Throttle.EnableIPThrottle,
			Window:                cfg.Throttle.Window,
			MaxIssues:             cfg.Throttle.MaxIssues,
			MaxRedeemAttempts:     cfg.Throttle.MaxRedeemAttempts,
		})
	}

	if (cfg.StepUp.Enabled || cfg.PasswordReset.Enabled) &&
		!cfg.Throttle.EnableSubjectThrottle && !cfg.Throttle.EnableIPThrottle {
		engine.logger.Warn("one-time codes have no issue or redemption throttle",
			zap.Bool("redis", b.redis != nil),
			zap.Bool("postgres", b.postgres != nil),
		)
	}

	b.built = true

	return engine, nil
}
