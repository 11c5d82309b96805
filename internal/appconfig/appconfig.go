// Package appconfig loads identityd configuration from an optional .env
// file and IDENTITY_* environment variables using Viper.
package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credstore"
	"github.com/MrEthical07/goIdentity/delivery"
	"github.com/MrEthical07/goIdentity/internal/logging"
	"github.com/spf13/viper"
)

// Config is the flat daemon configuration. Environment variables override
// values read from the .env file.
type Config struct {
	Env      string `mapstructure:"IDENTITY_ENV"`
	LogLevel string `mapstructure:"IDENTITY_LOG_LEVEL"`
	Version  string `mapstructure:"IDENTITY_VERSION"`

	HTTPAddr        string `mapstructure:"IDENTITY_HTTP_ADDR"`
	RedisURL        string `mapstructure:"IDENTITY_REDIS_URL"`
	DatabaseURL     string `mapstructure:"IDENTITY_DATABASE_URL"`
	CredentialStore string `mapstructure:"IDENTITY_CREDENTIAL_STORE"` // memory | postgres
	LedgerBackend   string `mapstructure:"IDENTITY_LEDGER"`           // redis | postgres
	DevSeed         string `mapstructure:"IDENTITY_DEV_SEED"`

	JWTSigningMethod string        `mapstructure:"IDENTITY_JWT_SIGNING_METHOD"`
	JWTPrivateKey    string        `mapstructure:"IDENTITY_JWT_PRIVATE_KEY"`
	JWTPublicKey     string        `mapstructure:"IDENTITY_JWT_PUBLIC_KEY"`
	JWTIssuer        string        `mapstructure:"IDENTITY_JWT_ISSUER"`
	JWTAudience      string        `mapstructure:"IDENTITY_JWT_AUDIENCE"`
	JWTKeyID         string        `mapstructure:"IDENTITY_JWT_KEY_ID"`
	JWTTTL           time.Duration `mapstructure:"IDENTITY_JWT_TTL"`

	StepUpEnabled        bool          `mapstructure:"IDENTITY_STEP_UP_ENABLED"`
	StepUpCodeTTL        time.Duration `mapstructure:"IDENTITY_STEP_UP_CODE_TTL"`
	ResetEnabled         bool          `mapstructure:"IDENTITY_RESET_ENABLED"`
	ResetCodeTTL         time.Duration `mapstructure:"IDENTITY_RESET_CODE_TTL"`
	ResetMinSecretLength int           `mapstructure:"IDENTITY_RESET_MIN_SECRET_LENGTH"`
	ResetFallbackToEmail bool          `mapstructure:"IDENTITY_RESET_FALLBACK_TO_EMAIL"`

	ThrottleSubject   bool          `mapstructure:"IDENTITY_THROTTLE_SUBJECT"`
	ThrottleIP        bool          `mapstructure:"IDENTITY_THROTTLE_IP"`
	ThrottleWindow    time.Duration `mapstructure:"IDENTITY_THROTTLE_WINDOW"`
	ThrottleMaxIssues int           `mapstructure:"IDENTITY_THROTTLE_MAX_ISSUES"`
	ThrottleMaxRedeem int           `mapstructure:"IDENTITY_THROTTLE_MAX_REDEEM"`

	LockoutMaxFailures int           `mapstructure:"IDENTITY_LOCKOUT_MAX_FAILURES"`
	LockoutDuration    time.Duration `mapstructure:"IDENTITY_LOCKOUT_DURATION"`

	DeliveryTimeout time.Duration `mapstructure:"IDENTITY_DELIVERY_TIMEOUT"`
	DeliveryAsync   bool          `mapstructure:"IDENTITY_DELIVERY_ASYNC"`

	SMTPHost     string `mapstructure:"IDENTITY_SMTP_HOST"`
	SMTPPort     int    `mapstructure:"IDENTITY_SMTP_PORT"`
	SMTPFrom     string `mapstructure:"IDENTITY_SMTP_FROM"`
	SMTPUsername string `mapstructure:"IDENTITY_SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"IDENTITY_SMTP_PASSWORD"`
	SMTPTLSMode  string `mapstructure:"IDENTITY_SMTP_TLS_MODE"`

	SMSEndpoint string `mapstructure:"IDENTITY_SMS_ENDPOINT"`
	SMSToken    string `mapstructure:"IDENTITY_SMS_TOKEN"`
	SMSFrom     string `mapstructure:"IDENTITY_SMS_FROM"`

	AuditEnabled      bool          `mapstructure:"IDENTITY_AUDIT_ENABLED"`
	AuditBufferSize   int           `mapstructure:"IDENTITY_AUDIT_BUFFER_SIZE"`
	MetricsEnabled    bool          `mapstructure:"IDENTITY_METRICS_ENABLED"`
	LatencyHistograms bool          `mapstructure:"IDENTITY_LATENCY_HISTOGRAMS"`
	SweepInterval     time.Duration `mapstructure:"IDENTITY_SWEEP_INTERVAL"`
}

func setDefaults(v *viper.Viper) {
	def := goIdentity.DefaultConfig()
	lockout := credstore.DefaultLockoutConfig()

	v.SetDefault("IDENTITY_ENV", "dev")
	v.SetDefault("IDENTITY_LOG_LEVEL", "info")
	v.SetDefault("IDENTITY_VERSION", "")
	v.SetDefault("IDENTITY_HTTP_ADDR", ":8080")
	v.SetDefault("IDENTITY_REDIS_URL", "")
	v.SetDefault("IDENTITY_DATABASE_URL", "")
	v.SetDefault("IDENTITY_CREDENTIAL_STORE", "memory")
	v.SetDefault("IDENTITY_LEDGER", "redis")
	v.SetDefault("IDENTITY_DEV_SEED", "")

	v.SetDefault("IDENTITY_JWT_SIGNING_METHOD", def.JWT.SigningMethod)
	v.SetDefault("IDENTITY_JWT_PRIVATE_KEY", "")
	v.SetDefault("IDENTITY_JWT_PUBLIC_KEY", "")
	v.SetDefault("IDENTITY_JWT_ISSUER", def.JWT.Issuer)
	v.SetDefault("IDENTITY_JWT_AUDIENCE", "")
	v.SetDefault("IDENTITY_JWT_KEY_ID", "")
	v.SetDefault("IDENTITY_JWT_TTL", def.JWT.TTL)

	v.SetDefault("IDENTITY_STEP_UP_ENABLED", def.StepUp.Enabled)
	v.SetDefault("IDENTITY_STEP_UP_CODE_TTL", def.StepUp.CodeTTL)
	v.SetDefault("IDENTITY_RESET_ENABLED", def.PasswordReset.Enabled)
	v.SetDefault("IDENTITY_RESET_CODE_TTL", def.PasswordReset.CodeTTL)
	v.SetDefault("IDENTITY_RESET_MIN_SECRET_LENGTH", def.PasswordReset.MinSecretLength)
	v.SetDefault("IDENTITY_RESET_FALLBACK_TO_EMAIL", def.PasswordReset.FallbackToEmail)

	v.SetDefault("IDENTITY_THROTTLE_SUBJECT", def.Throttle.EnableSubjectThrottle)
	v.SetDefault("IDENTITY_THROTTLE_IP", def.Throttle.EnableIPThrottle)
	v.SetDefault("IDENTITY_THROTTLE_WINDOW", def.Throttle.Window)
	v.SetDefault("IDENTITY_THROTTLE_MAX_ISSUES", def.Throttle.MaxIssues)
	v.SetDefault("IDENTITY_THROTTLE_MAX_REDEEM", def.Throttle.MaxRedeemAttempts)

	v.SetDefault("IDENTITY_LOCKOUT_MAX_FAILURES", lockout.MaxFailures)
	v.SetDefault("IDENTITY_LOCKOUT_DURATION", lockout.Duration)

	v.SetDefault("IDENTITY_DELIVERY_TIMEOUT", def.Delivery.Timeout)
	v.SetDefault("IDENTITY_DELIVERY_ASYNC", def.Delivery.Async)

	v.SetDefault("IDENTITY_SMTP_HOST", "")
	v.SetDefault("IDENTITY_SMTP_PORT", 587)
	v.SetDefault("IDENTITY_SMTP_FROM", "")
	v.SetDefault("IDENTITY_SMTP_USERNAME", "")
	v.SetDefault("IDENTITY_SMTP_PASSWORD", "")
	v.SetDefault("IDENTITY_SMTP_TLS_MODE", "auto")

	v.SetDefault("IDENTITY_SMS_ENDPOINT", "")
	v.SetDefault("IDENTITY_SMS_TOKEN", "")
	v.SetDefault("IDENTITY_SMS_FROM", "")

	v.SetDefault("IDENTITY_AUDIT_ENABLED", true)
	v.SetDefault("IDENTITY_AUDIT_BUFFER_SIZE", def.Audit.BufferSize)
	v.SetDefault("IDENTITY_METRICS_ENABLED", true)
	v.SetDefault("IDENTITY_LATENCY_HISTOGRAMS", true)
	v.SetDefault("IDENTITY_SWEEP_INTERVAL", def.Codes.SweepInterval)
}

// Load reads envFile if it exists, then the environment. An empty envFile
// means ".env".
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}

	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", envFile, err)
	}
	v.AutomaticEnv()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether IDENTITY_ENV is "prod".
func (c *Config) Production() bool {
	return strings.EqualFold(c.Env, "prod")
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: IDENTITY_HTTP_ADDR must be set")
	}

	switch c.CredentialStore {
	case "memory":
		if c.Production() {
			return errors.New("config: IDENTITY_CREDENTIAL_STORE=memory is not allowed when IDENTITY_ENV=prod")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: IDENTITY_DATABASE_URL is required for the postgres credential store")
		}
	default:
		return fmt.Errorf("config: unknown IDENTITY_CREDENTIAL_STORE %q", c.CredentialStore)
	}

	switch c.LedgerBackend {
	case "redis":
		if c.RedisURL == "" {
			return errors.New("config: IDENTITY_REDIS_URL is required for the redis ledger")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("config: IDENTITY_DATABASE_URL is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("config: unknown IDENTITY_LEDGER %q", c.LedgerBackend)
	}

	if (c.ThrottleSubject || c.ThrottleIP) && c.RedisURL == "" {
		return errors.New("config: throttles need IDENTITY_REDIS_URL; disable IDENTITY_THROTTLE_SUBJECT and IDENTITY_THROTTLE_IP")
	}
	if c.Production() && c.SMTPHost == "" && c.SMSEndpoint == "" {
		return errors.New("config: IDENTITY_ENV=prod needs IDENTITY_SMTP_HOST or IDENTITY_SMS_ENDPOINT")
	}
	if c.DevSeed != "" && c.Production() {
		return errors.New("config: IDENTITY_DEV_SEED must be empty when IDENTITY_ENV=prod")
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	return logging.Config{
		Env:         c.Env,
		Level:       c.LogLevel,
		ServiceName: "identityd",
		Version:     c.Version,
	}
}

// Lockout returns the credential store lockout policy.
func (c *Config) Lockout() credstore.LockoutConfig {
	return credstore.LockoutConfig{MaxFailures: c.LockoutMaxFailures, Duration: c.LockoutDuration}
}

// SMTP returns the mail settings and whether SMTP is configured.
func (c *Config) SMTP() (delivery.SMTPConfig, bool) {
	if c.SMTPHost == "" {
		return delivery.SMTPConfig{}, false
	}
	return delivery.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		From:     c.SMTPFrom,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		TLSMode:  c.SMTPTLSMode,
		Timeout:  c.DeliveryTimeout,
	}, true
}

// SMSGateway returns the SMS gateway, or nil when none is configured.
func (c *Config) SMSGateway() *delivery.SMSGateway {
	if c.SMSEndpoint == "" {
		return nil
	}
	return &delivery.SMSGateway{Endpoint: c.SMSEndpoint, Token: c.SMSToken, From: c.SMSFrom}
}

// Engine maps the daemon settings onto goIdentity.Config. JWT keys may be
// given inline (PEM, or the raw HS256 secret) or as a path to a file.
func (c *Config) Engine() (goIdentity.Config, error) {
	cfg := goIdentity.DefaultConfig()

	priv, err := readKey(c.JWTPrivateKey)
	if err != nil {
		return cfg, fmt.Errorf("config: IDENTITY_JWT_PRIVATE_KEY: %w", err)
	}
	pub, err := readKey(c.JWTPublicKey)
	if err != nil {
		return cfg, fmt.Errorf("config: IDENTITY_JWT_PUBLIC_KEY: %w", err)
	}

	cfg.JWT.SigningMethod = strings.ToLower(c.JWTSigningMethod)
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.KeyID = c.JWTKeyID
	cfg.JWT.TTL = c.JWTTTL

	cfg.StepUp.Enabled = c.StepUpEnabled
	cfg.StepUp.CodeTTL = c.StepUpCodeTTL
	cfg.PasswordReset.Enabled = c.ResetEnabled
	cfg.PasswordReset.CodeTTL = c.ResetCodeTTL
	cfg.PasswordReset.MinSecretLength = c.ResetMinSecretLength
	cfg.PasswordReset.FallbackToEmail = c.ResetFallbackToEmail

	cfg.Throttle.EnableSubjectThrottle = c.ThrottleSubject
	cfg.Throttle.EnableIPThrottle = c.ThrottleIP
	cfg.Throttle.Window = c.ThrottleWindow
	cfg.Throttle.MaxIssues = c.ThrottleMaxIssues
	cfg.Throttle.MaxRedeemAttempts = c.ThrottleMaxRedeem

	cfg.Delivery.Timeout = c.DeliveryTimeout
	cfg.Delivery.Async = c.DeliveryAsync

	cfg.Audit.Enabled = c.AuditEnabled
	cfg.Audit.BufferSize = c.AuditBufferSize
	cfg.Metrics.Enabled = c.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = c.LatencyHistograms
	cfg.Codes.SweepInterval = c.SweepInterval

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func readKey(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		return []byte(value), nil
	}
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		return os.ReadFile(value)
	}
	return []byte(value), nil
}
