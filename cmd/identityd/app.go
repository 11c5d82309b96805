package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credstore"
	"github.com/MrEthical07/goIdentity/delivery"
	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/MrEthical07/goIdentity/internal/logging"
	promexport "github.com/MrEthical07/goIdentity/metrics/export/prometheus"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// app holds the wired engine and the clients it owns.
type app struct {
	cfg     *appconfig.Config
	logger  *zap.Logger
	engine  *goIdentity.Engine
	metrics http.Handler

	redis    *redis.Client
	pool     *pgxpool.Pool
	postgres *credstore.Postgres
	outbox   *delivery.Outbox
}

func loadConfig(envFile string) (*appconfig.Config, *zap.Logger, error) {
	cfg, err := appconfig.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Logging())
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	engineCfg, err := cfg.Engine()
	if err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		if err := a.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}
	if cfg.DatabaseURL != "" {
		a.pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := a.pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
	}

	store, external, err := a.credentialStore(ctx)
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.dispatcher()
	if err != nil {
		return nil, err
	}

	b := goIdentity.New().
		WithConfig(engineCfg).
		WithCredentialStore(store).
		WithExternalLoginResolver(external).
		WithDispatcher(dispatcher).
		WithAuditSink(goIdentity.NewZapSink(logger)).
		WithLogger(logger)
	if a.redis != nil {
		b = b.WithRedis(a.redis)
	}
	if cfg.LedgerBackend == "postgres" {
		b = b.WithPostgres(a.pool)
	}

	a.engine, err = b.Build()
	if err != nil {
		return nil, err
	}

	if engineCfg.Metrics.Enabled {
		a.metrics, err = promexport.Handler(a.engine)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}

	ok = true
	return a, nil
}

func (a *app) credentialStore(ctx context.Context) (goIdentity.CredentialStore, goIdentity.ExternalLoginResolver, error) {
	switch a.cfg.CredentialStore {
	case "postgres":
		store, err := credstore.NewPostgres(a.pool, nil, a.cfg.Lockout())
		if err != nil {
			return nil, nil, err
		}
		a.postgres = store
		return store, store, nil
	default:
		store, err := credstore.NewMemory(nil, a.cfg.Lockout())
		if err != nil {
			return nil, nil, err
		}
		if err := seedMemory(store, a.cfg); err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

func seedMemory(store *credstore.Memory, cfg *appconfig.Config) error {
	seeds, err := cfg.SeedAccounts()
	if err != nil {
		return err
	}
	for _, s := range seeds {
		account := goIdentity.Account{
			ID:          uuid.NewString(),
			Identifier:  s.Identifier,
			DisplayName: s.Identifier,
			Email:       s.Email,
			Phone:       s.Phone,
		}
		if err := store.Add(account, s.Secret, s.Roles...); err != nil {
			return fmt.Errorf("seed %s: %w", s.Identifier, err)
		}
	}
	return nil
}

// dispatcher routes email through SMTP and SMS through the gateway when
// configured. Outside prod an unconfigured channel falls back to the
// in-memory outbox.
func (a *app) dispatcher() (goIdentity.Dispatcher, error) {
	router := delivery.Router{}

	if smtpCfg, ok := a.cfg.SMTP(); ok {
		smtp, err := delivery.NewSMTP(smtpCfg, a.logger)
		if err != nil {
			return nil, err
		}
		router[goIdentity.ChannelEmail] = smtp
	}
	if gw := a.cfg.SMSGateway(); gw != nil {
		gw.Client = &http.Client{Timeout: a.cfg.DeliveryTimeout}
		router[goIdentity.ChannelSMS] = gw
	}

	if !a.cfg.Production() {
		for _, ch := range []goIdentity.Channel{goIdentity.ChannelEmail, goIdentity.ChannelSMS} {
			if _, ok := router[ch]; ok {
				continue
			}
			if a.outbox == nil {
				a.outbox = delivery.NewOutbox(15 * time.Minute)
				a.logger.Warn("delivery falls back to the in-memory outbox", zap.String("channel", string(ch)))
			}
			router[ch] = a.outbox
		}
	}
	if len(router) == 0 {
		return nil, errors.New("no delivery channel configured")
	}
	return router, nil
}

func (a *app) close() {
	if a.engine != nil {
		a.engine.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
