package appconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func missingEnvFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("IDENTITY_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.CredentialStore != "memory" || cfg.LedgerBackend != "redis" {
		t.Fatalf("unexpected backends %q %q", cfg.CredentialStore, cfg.LedgerBackend)
	}
	if cfg.StepUpCodeTTL != 3*time.Minute || cfg.ResetCodeTTL != 3*time.Minute {
		t.Fatalf("unexpected code ttls %v %v", cfg.StepUpCodeTTL, cfg.ResetCodeTTL)
	}
	if cfg.LockoutMaxFailures != 5 {
		t.Fatalf("LockoutMaxFailures = %d", cfg.LockoutMaxFailures)
	}
}

func TestLoadEnvFileAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		"IDENTITY_REDIS_URL=redis://cache:6379/1",
		"IDENTITY_HTTP_ADDR=:9000",
		"IDENTITY_STEP_UP_CODE_TTL=90s",
		"IDENTITY_JWT_ISSUER=file-issuer",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("IDENTITY_JWT_ISSUER", "env-issuer")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.StepUpCodeTTL != 90*time.Second {
		t.Fatalf("StepUpCodeTTL = %v", cfg.StepUpCodeTTL)
	}
	if cfg.JWTIssuer != "env-issuer" {
		t.Fatalf("expected env to override file, got %q", cfg.JWTIssuer)
	}
}

func TestLoadRejectsInvalidCombinations(t *testing.T) {
	cases := map[string]map[string]string{
		"redis ledger without url": {},
		"unknown store": {
			"IDENTITY_REDIS_URL":        "redis://localhost:6379",
			"IDENTITY_CREDENTIAL_STORE": "ldap",
		},
		"postgres store without dsn": {
			"IDENTITY_REDIS_URL":        "redis://localhost:6379",
			"IDENTITY_CREDENTIAL_STORE": "postgres",
		},
		"throttles without redis": {
			"IDENTITY_LEDGER":       "postgres",
			"IDENTITY_DATABASE_URL": "postgres://localhost/identity",
		},
		"memory store in prod": {
			"IDENTITY_ENV":       "prod",
			"IDENTITY_REDIS_URL": "redis://localhost:6379",
			"IDENTITY_SMTP_HOST": "smtp.example.com",
		},
		"prod without delivery": {
			"IDENTITY_ENV":              "prod",
			"IDENTITY_REDIS_URL":        "redis://localhost:6379",
			"IDENTITY_CREDENTIAL_STORE": "postgres",
			"IDENTITY_DATABASE_URL":     "postgres://localhost/identity",
		},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(missingEnvFile(t)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestEngineConfigMapping(t *testing.T) {
	t.Setenv("IDENTITY_REDIS_URL", "redis://localhost:6379")
	t.Setenv("IDENTITY_JWT_SIGNING_METHOD", "HS256")
	t.Setenv("IDENTITY_JWT_PRIVATE_KEY", strings.Repeat("k", 32))
	t.Setenv("IDENTITY_THROTTLE_MAX_ISSUES", "9")
	t.Setenv("IDENTITY_DELIVERY_ASYNC", "true")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	engineCfg, err := cfg.Engine()
	if err != nil {
		t.Fatalf("Engine: %v", err)
	}
	if engineCfg.JWT.SigningMethod != "hs256" || len(engineCfg.JWT.PrivateKey) != 32 {
		t.Fatalf("unexpected jwt config %+v", engineCfg.JWT)
	}
	if engineCfg.Throttle.MaxIssues != 9 || !engineCfg.Delivery.Async {
		t.Fatalf("unexpected mapping throttle=%+v delivery=%+v", engineCfg.Throttle, engineCfg.Delivery)
	}
	if !engineCfg.Audit.Enabled || !engineCfg.Metrics.Enabled {
		t.Fatal("expected audit and metrics enabled by default for the daemon")
	}
}

func TestEngineConfigRequiresKeys(t *testing.T) {
	t.Setenv("IDENTITY_REDIS_URL", "redis://localhost:6379")

	cfg, err := Load(missingEnvFile(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := cfg.Engine(); err == nil {
		t.Fatal("expected missing ed25519 key to fail validation")
	}
}

func TestReadKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hs.key")
	if err := os.WriteFile(path, []byte("file-secret"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	got, err := readKey(path)
	if err != nil || string(got) != "file-secret" {
		t.Fatalf("readKey(file) = %q, %v", got, err)
	}
	got, err = readKey("-----BEGIN PUBLIC KEY-----\nabc\n-----END PUBLIC KEY-----")
	if err != nil || !strings.HasPrefix(string(got), "-----BEGIN") {
		t.Fatalf("readKey(pem) = %q, %v", got, err)
	}
	if got, _ := readKey("  "); got != nil {
		t.Fatalf("expected nil for blank key, got %q", got)
	}
}

func TestSeedAccounts(t *testing.T) {
	cfg := &Config{DevSeed: "alice:alice@example.com:+15550001234:correct-horse:user|admin; bob:bob@example.com::bob-secret-1"}

	seeds, err := cfg.SeedAccounts()
	if err != nil {
		t.Fatalf("SeedAccounts: %v", err)
	}
	if len(seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(seeds))
	}
	if seeds[0].Phone != "+15550001234" || len(seeds[0].Roles) != 2 {
		t.Fatalf("unexpected first seed %+v", seeds[0])
	}
	if seeds[1].Phone != "" || seeds[1].Roles != nil {
		t.Fatalf("unexpected second seed %+v", seeds[1])
	}

	bad := &Config{DevSeed: "alice:alice@example.com"}
	if _, err := bad.SeedAccounts(); err == nil {
		t.Fatal("expected malformed seed to fail")
	}
}
