package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
)

func testConfig(t *testing.T) *appconfig.Config {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	t.Setenv("IDENTITY_REDIS_URL", "redis://"+mr.Addr())
	t.Setenv("IDENTITY_JWT_SIGNING_METHOD", "hs256")
	t.Setenv("IDENTITY_JWT_PRIVATE_KEY", strings.Repeat("x", 32))
	t.Setenv("IDENTITY_DEV_SEED", "alice:alice@example.com::correct-horse:admin")

	cfg, err := appconfig.Load(filepath.Join(t.TempDir(), "none.env"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestNewAppWiresDevStack(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := newApp(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.close()

	cred, err := a.engine.Login(ctx, "alice", "correct-horse")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(cred.Roles) != 1 || cred.Roles[0] != "admin" {
		t.Fatalf("unexpected roles %v", cred.Roles)
	}

	if _, err := a.engine.BeginStepUp(ctx, "alice", "correct-horse", goIdentity.ChannelEmail); err != nil {
		t.Fatalf("BeginStepUp: %v", err)
	}
	if a.outbox == nil {
		t.Fatal("expected outbox fallback outside prod")
	}
	if _, ok := a.outbox.Last(goIdentity.ChannelEmail, "alice@example.com"); !ok {
		t.Fatal("expected step-up message in outbox")
	}

	if a.metrics == nil {
		t.Fatal("expected metrics handler")
	}
	rec := httptest.NewRecorder()
	a.metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "goidentity_") {
		t.Fatalf("metrics: status %d", rec.Code)
	}
}

func TestSweepCommandRunsAgainstApp(t *testing.T) {
	cfg := testConfig(t)

	var swept int
	err := runWithConfig(context.Background(), cfg, zap.NewNop(), func(ctx context.Context, a *app) error {
		n, err := a.engine.SweepExpiredCodes(ctx)
		swept = n
		return err
	})
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected nothing to sweep, got %d", swept)
	}
}

func TestDispatcherRequiresChannelInProd(t *testing.T) {
	a := &app{cfg: &appconfig.Config{Env: "prod"}, logger: zap.NewNop()}
	if _, err := a.dispatcher(); err == nil {
		t.Fatal("expected error without any delivery channel in prod")
	}

	a = &app{cfg: &appconfig.Config{Env: "prod", SMSEndpoint: "https://sms.example.com/send"}, logger: zap.NewNop()}
	d, err := a.dispatcher()
	if err != nil {
		t.Fatalf("dispatcher: %v", err)
	}
	if err := d.Send(context.Background(), goIdentity.ChannelEmail, "a@example.com", "s", "b"); err == nil {
		t.Fatal("expected email to be undeliverable without smtp in prod")
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()
	want := map[string]bool{"serve": false, "migrate": false, "sweep": false, "account": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("missing subcommand %q", name)
		}
	}
}
