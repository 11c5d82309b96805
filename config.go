package goIdentity

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override what you need; Builder.Build validates it.
type Config struct {
	JWT           JWTConfig
	Codes         CodesConfig
	StepUp        StepUpConfig
	PasswordReset PasswordResetConfig
	Throttle      ThrottleConfig
	Delivery      DeliveryConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the Token Issuer.
type JWTConfig struct {
	TTL           time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
}

/*
====================================
ONE-TIME CODES
====================================
*/

// CodesConfig configures the One-Time-Code Ledger.
type CodesConfig struct {
	Digits        int
	RedisPrefix   string
	ExpiredGrace  time.Duration
	SweepInterval time.Duration
}

// StepUpConfig configures the two-call step-up login.
type StepUpConfig struct {
	Enabled bool
	CodeTTL time.Duration
}

// PasswordResetConfig configures the reset flow. MinSecretLength is the
// policy applied to new secrets by CompleteReset and ChangePassword.
type PasswordResetConfig struct {
	Enabled             bool
	CodeTTL             time.Duration
	MinSecretLength     int
	FallbackToEmail     bool
	EnumerationDelayMin time.Duration
	EnumerationDelayMax time.Duration
}

// ThrottleConfig configures fixed-window limits on code issuance and
// redemption. Throttles need a Redis client.
type ThrottleConfig struct {
	EnableSubjectThrottle bool
	EnableIPThrottle      bool
	Window                time.Duration
	MaxIssues             int
	MaxRedeemAttempts     int
}

// DeliveryConfig bounds dispatch. With Async set the issuing call returns
// before the dispatcher does. Reset codes are always sent detached and
// awaited only up to the reset response floor.
type DeliveryConfig struct {
	Timeout time.Duration
	Async   bool
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters and the delivery histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns a configuration that passes Validate once JWT keys
// are supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:           15 * time.Minute,
			SigningMethod: "ed25519",
			Issuer:        "goidentity",
		},
		Codes: CodesConfig{
			Digits:        6,
			RedisPrefix:   "otc",
			ExpiredGrace:  time.Minute,
			SweepInterval: time.Minute,
		},
		StepUp: StepUpConfig{
			Enabled: true,
			CodeTTL: 3 * time.Minute,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:             true,
			CodeTTL:             3 * time.Minute,
			MinSecretLength:     8,
			FallbackToEmail:     true,
			EnumerationDelayMin: 20 * time.Millisecond,
			EnumerationDelayMax: 40 * time.Millisecond,
		},
		Throttle: ThrottleConfig{
			EnableSubjectThrottle: true,
			EnableIPThrottle:      true,
			Window:                15 * time.Minute,
			MaxIssues:             5,
			MaxRedeemAttempts:     5,
		},
		Delivery: DeliveryConfig{
			Timeout: 10 * time.Second,
			Async:   false,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.TTL <= 0 {
		return invalidConfig("JWT TTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return invalidConfig("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return invalidConfig("ed25519 requires PublicKey or VerifyKeys")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return invalidConfig("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return invalidConfig("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return invalidConfig("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return invalidConfig("JWT Audience must not be blank")
	}

	// Codes
	if c.Codes.Digits < 6 || c.Codes.Digits > 10 {
		return invalidConfig("Codes Digits must be between 6 and 10")
	}
	if strings.TrimSpace(c.Codes.RedisPrefix) == "" {
		return invalidConfig("Codes RedisPrefix is required")
	}
	if c.Codes.ExpiredGrace < 0 {
		return invalidConfig("Codes ExpiredGrace must be >= 0")
	}
	if c.Codes.SweepInterval <= 0 {
		return invalidConfig("Codes SweepInterval must be > 0")
	}

	if c.StepUp.Enabled && c.StepUp.CodeTTL <= 0 {
		return invalidConfig("StepUp CodeTTL must be > 0")
	}

	if c.PasswordReset.Enabled && c.PasswordReset.CodeTTL <= 0 {
		return invalidConfig("PasswordReset CodeTTL must be > 0")
	}
	if c.PasswordReset.MinSecretLength < 1 {
		return invalidConfig("PasswordReset MinSecretLength must be >= 1")
	}
	if c.PasswordReset.EnumerationDelayMin < 0 || c.PasswordReset.EnumerationDelayMax < c.PasswordReset.EnumerationDelayMin {
		return invalidConfig("PasswordReset enumeration delay range is invalid")
	}

	if c.Throttle.EnableSubjectThrottle || c.Throttle.EnableIPThrottle {
		if c.Throttle.Window <= 0 {
			return invalidConfig("Throttle Window must be > 0")
		}
		if c.Throttle.MaxIssues <= 0 {
			return invalidConfig("Throttle MaxIssues must be > 0")
		}
		if c.Throttle.MaxRedeemAttempts <= 0 {
			return invalidConfig("Throttle MaxRedeemAttempts must be > 0")
		}
	}

	if c.Delivery.Timeout <= 0 {
		return invalidConfig("Delivery Timeout must be > 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return invalidConfig("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
