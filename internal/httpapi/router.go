package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// TenantHeader selects the tenant for a request. Absent means tenant "0".
const TenantHeader = "X-Tenant-ID"

// Service is the engine surface the API serves.
type Service interface {
	Login(ctx context.Context, identifier, secret string) (*goIdentity.Credential, error)
	BeginStepUp(ctx context.Context, identifier, secret string, channel goIdentity.Channel) (*goIdentity.StepUpChallenge, error)
	CompleteStepUp(ctx context.Context, identifier, secret, code string) (*goIdentity.Credential, error)
	RequestReset(ctx context.Context, email string, channel goIdentity.Channel) error
	VerifyResetCode(ctx context.Context, email, code string) (bool, error)
	CompleteReset(ctx context.Context, email, code, newSecret string) error
	ChangePassword(ctx context.Context, identifier, currentSecret, newSecret string) error
	LoginExternal(ctx context.Context, provider, providerKey, email string) (*goIdentity.ExternalLoginResult, error)
	VerifyCredential(ctx context.Context, token string) (*goIdentity.CredentialClaims, error)
	SweepExpiredCodes(ctx context.Context) (int, error)
}

// Options configures the router. Metrics, when set, is mounted at /metrics.
type Options struct {
	Logger         *zap.Logger
	Metrics        http.Handler
	RequestTimeout time.Duration
	AdminRole      string
}

type handler struct {
	svc    Service
	logger *zap.Logger
}

// NewRouter returns the API handler for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.AdminRole == "" {
		opts.AdminRole = "admin"
	}

	h := &handler{svc: svc, logger: logger.Named("http")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))
	r.Use(requestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/login", h.login)
		r.Post("/login/external", h.loginExternal)

		r.Post("/step-up/begin", h.beginStepUp)
		r.Post("/step-up/complete", h.completeStepUp)

		r.Post("/password-reset/request", h.requestReset)
		r.Post("/password-reset/verify", h.verifyReset)
		r.Post("/password-reset/complete", h.completeReset)

		r.Post("/password/change", h.changePassword)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireCredentialFrom(svc))
			r.Get("/me", h.me)

			r.With(middleware.RequireRole(opts.AdminRole)).Post("/admin/codes/sweep", h.sweep)
		})
	})

	return r
}

// requestContext copies the tenant header and client address into the
// request context for throttling and audit.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if tenant := strings.TrimSpace(r.Header.Get(TenantHeader)); tenant != "" {
			ctx = goIdentity.WithTenantID(ctx, tenant)
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if host != "" {
			ctx = goIdentity.WithClientIP(ctx, host)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
