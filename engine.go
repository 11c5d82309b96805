package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	internalaudit "github.com/MrEthical07/goIdentity/internal/audit"
	internalflows "github.com/MrEthical07/goIdentity/internal/flows"
	"github.com/MrEthical07/goIdentity/internal/limiters"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/MrEthical07/goIdentity/jwt"
	"go.uber.org/zap"
)

// Engine runs the login, step-up, password reset and federated login flows.
// It is safe for concurrent use once built.
type Engine struct {
	config      Config
	logger      *zap.Logger
	ledger      stores.Ledger
	limiter     *limiters.CodeLimiter
	credentials CredentialStore
	dispatcher  Dispatcher
	external    ExternalLoginResolver
	jwtManager  *jwt.Manager
	audit       *internalaudit.Dispatcher
	metrics     *Metrics
	codeDigits  int

	deliveryMu sync.Mutex
	closing    bool
	deliveries sync.WaitGroup
	closeOnce  sync.Once
}

// Close waits for in-flight async deliveries and drains the audit queue.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		// no new detached sends once closing is set
		e.deliveryMu.Lock()
		e.closing = true
		e.deliveryMu.Unlock()

		e.deliveries.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// AuditDroppedByType splits AuditDropped by audit event type.
func (e *Engine) AuditDroppedByType() map[string]uint64 {
	if e == nil || e.audit == nil {
		return map[string]uint64{}
	}
	return e.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Login verifies identifier and secret and returns a credential carrying the
// account's current roles. Unknown identifiers and wrong secrets both return
// ErrUnauthorized.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*Credential, error) {
	record, err := internalflows.RunLogin(ctx, identifier, secret, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}
	return credentialFromRecord(record), nil
}

// VerifyCredential validates token signature, algorithm and expiry and
// returns its claims. Every failure is reported as ErrUnauthorized.
func (e *Engine) VerifyCredential(ctx context.Context, token string) (*CredentialClaims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := e.jwtManager.Parse(strings.TrimSpace(token))
	if err != nil {
		e.metricInc(MetricCredentialRejected)
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	out := &CredentialClaims{
		AccountID: claims.Subject,
		Name:      claims.Name,
		Roles:     claims.Roles,
		ID:        claims.ID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	return internalflows.LoginDeps{
		Hooks:           e.flowHooks(),
		Accounts:        e.accountDeps(),
		IssueCredential: e.issueCredential,
		Metrics: internalflows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			CredentialIssued: int(MetricCredentialIssued),
		},
		Events: internalflows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
		},
		Errors: flowErrors(),
	}
}

func (e *Engine) flowHooks() internalflows.Hooks {
	return internalflows.Hooks{
		TenantIDFromContext: tenantIDFromContext,
		ClientIPFromContext: clientIPFromContext,
		Now:                 time.Now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:     e.emitAudit,
		EmitRateLimit: e.emitRateLimit,
	}
}

func flowErrors() internalflows.Errors {
	return internalflows.Errors{
		EngineNotReady:  ErrEngineNotReady,
		Unauthorized:    ErrUnauthorized,
		Locked:          ErrAccountLocked,
		CodeInvalid:     ErrCodeInvalid,
		CodeExpired:     ErrCodeExpired,
		NotFound:        ErrNotFound,
		RateLimited:     ErrRateLimited,
		Unavailable:     ErrUnavailable,
		InvalidRequest:  ErrInvalidRequest,
		PasswordPolicy:  ErrPasswordPolicy,
		FeatureDisabled: ErrFeatureDisabled,
	}
}

// accountDeps adapts the host CredentialStore to the flow contract.
func (e *Engine) accountDeps() internalflows.AccountDeps {
	if e == nil || e.credentials == nil {
		return internalflows.AccountDeps{}
	}
	store := e.credentials

	var verifyUnknown func(context.Context, string)
	if eq, ok := store.(SecretEqualizer); ok {
		verifyUnknown = eq.VerifyUnknown
	}

	return internalflows.AccountDeps{
		FindByIdentifier: func(ctx context.Context, identifier string) (internalflows.AccountRecord, error) {
			return accountRecord(store.FindByIdentifier(ctx, identifier))
		},
		FindByEmail: func(ctx context.Context, email string) (internalflows.AccountRecord, error) {
			return accountRecord(store.FindByEmail(ctx, email))
		},
		VerifySecret: func(ctx context.Context, rec internalflows.AccountRecord, secret string) (bool, error) {
			return store.VerifySecret(ctx, accountFromRecord(rec), secret)
		},
		IsLocked: func(ctx context.Context, rec internalflows.AccountRecord) (bool, error) {
			return store.IsLocked(ctx, accountFromRecord(rec))
		},
		SetSecret: func(ctx context.Context, rec internalflows.AccountRecord, secret string) error {
			return store.SetSecret(ctx, accountFromRecord(rec), secret)
		},
		GetRoles: func(ctx context.Context, rec internalflows.AccountRecord) ([]string, error) {
			return store.GetRoles(ctx, accountFromRecord(rec))
		},
		IsNotFound: func(err error) bool {
			return errors.Is(err, ErrNotFound)
		},
		VerifyUnknown: verifyUnknown,
	}
}

func (e *Engine) issueCredential(_ context.Context, rec internalflows.AccountRecord, roles []string) (internalflows.CredentialRecord, error) {
	token, claims, err := e.jwtManager.Issue(rec.ID, rec.DisplayName, roles, 0)
	if err != nil {
		return internalflows.CredentialRecord{}, err
	}
	return internalflows.CredentialRecord{
		Token:     token,
		Subject:   claims.Subject,
		Name:      claims.Name,
		ID:        claims.ID,
		Roles:     claims.Roles,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func accountRecord(account *Account, err error) (internalflows.AccountRecord, error) {
	if err != nil {
		return internalflows.AccountRecord{}, err
	}
	if account == nil {
		return internalflows.AccountRecord{}, ErrNotFound
	}
	return internalflows.AccountRecord{
		ID:          account.ID,
		Identifier:  account.Identifier,
		DisplayName: account.DisplayName,
		Email:       account.Email,
		Phone:       account.Phone,
	}, nil
}

func accountFromRecord(rec internalflows.AccountRecord) *Account {
	return &Account{
		ID:          rec.ID,
		Identifier:  rec.Identifier,
		DisplayName: rec.DisplayName,
		Email:       rec.Email,
		Phone:       rec.Phone,
	}
}

func credentialFromRecord(rec *internalflows.CredentialRecord) *Credential {
	if rec == nil {
		return nil
	}
	return &Credential{
		Token:     rec.Token,
		AccountID: rec.Subject,
		Name:      rec.Name,
		Roles:     rec.Roles,
		ID:        rec.ID,
		IssuedAt:  rec.IssuedAt,
		ExpiresAt: rec.ExpiresAt,
	}
}
