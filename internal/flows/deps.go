package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AccountRecord is the flow-local view of a credential store account.
type AccountRecord struct {
	ID          string
	Identifier  string
	DisplayName string
	Email       string
	Phone       string
}

// CredentialRecord is the flow-local issued credential.
type CredentialRecord struct {
	Token     string
	Subject   string
	Name      string
	ID        string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CodeTicket is what the ledger hands back after issuing a code.
type CodeTicket struct {
	Code      string
	ExpiresAt time.Time
}

// Delivery describes one code message for the host dispatcher.
type Delivery struct {
	AccountID   string
	TenantID    string
	Purpose     string
	Channel     string
	Destination string
	Code        string
	ExpiresAt   time.Time
}

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Errors carries host-level sentinel errors shared by all flows.
type Errors struct {
	EngineNotReady  error
	Unauthorized    error
	Locked          error
	CodeInvalid     error
	CodeExpired     error
	NotFound        error
	RateLimited     error
	Unavailable     error
	InvalidRequest  error
	PasswordPolicy  error
	FeatureDisabled error
}

// Hooks are the ambient callbacks every flow uses.
type Hooks struct {
	TenantIDFromContext func(context.Context) string
	ClientIPFromContext func(context.Context) string
	Now                 func() time.Time
	MetricInc           func(int)
	EmitAudit           func(context.Context, string, bool, string, string, error, func() map[string]string)
	EmitRateLimit       func(context.Context, string, string, func() map[string]string)
}

func (h *Hooks) normalize() {
	if h.TenantIDFromContext == nil {
		h.TenantIDFromContext = func(context.Context) string { return "" }
	}
	if h.ClientIPFromContext == nil {
		h.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if h.Now == nil {
		h.Now = time.Now
	}
	if h.MetricInc == nil {
		h.MetricInc = func(int) {}
	}
	if h.EmitAudit == nil {
		h.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
	if h.EmitRateLimit == nil {
		h.EmitRateLimit = func(context.Context, string, string, func() map[string]string) {}
	}
}

// AccountDeps mirrors the credential store contract.
type AccountDeps struct {
	FindByIdentifier func(context.Context, string) (AccountRecord, error)
	FindByEmail      func(context.Context, string) (AccountRecord, error)
	VerifySecret     func(context.Context, AccountRecord, string) (bool, error)
	IsLocked         func(context.Context, AccountRecord) (bool, error)
	SetSecret        func(context.Context, AccountRecord, string) error
	GetRoles         func(context.Context, AccountRecord) ([]string, error)
	IsNotFound       func(error) bool
	// VerifyUnknown burns the hash cost for an identifier with no account.
	VerifyUnknown func(context.Context, string)
}

func (a AccountDeps) ready() bool {
	return a.FindByIdentifier != nil && a.VerifySecret != nil && a.IsLocked != nil && a.IsNotFound != nil
}

// authenticate resolves identifier and checks secret. Unknown identifiers and
// wrong secrets both come back as errs.Unauthorized.
func authenticate(ctx context.Context, identifier, secret string, accounts AccountDeps, errs Errors) (AccountRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return AccountRecord{}, errs.Unauthorized
	}
	if err := ctx.Err(); err != nil {
		return AccountRecord{}, unavailable(errs, err)
	}

	account, err := accounts.FindByIdentifier(ctx, identifier)
	if err != nil {
		if accounts.IsNotFound(err) {
			if accounts.VerifyUnknown != nil {
				accounts.VerifyUnknown(ctx, secret)
			}
			return AccountRecord{}, errs.Unauthorized
		}
		return AccountRecord{}, unavailable(errs, err)
	}

	locked, err := accounts.IsLocked(ctx, account)
	if err != nil {
		return AccountRecord{}, unavailable(errs, err)
	}
	if locked {
		return account, errs.Locked
	}

	ok, err := accounts.VerifySecret(ctx, account, secret)
	if err != nil {
		return AccountRecord{}, unavailable(errs, err)
	}
	if !ok {
		return account, errs.Unauthorized
	}

	return account, nil
}

func issueCredential(
	ctx context.Context,
	account AccountRecord,
	accounts AccountDeps,
	issue func(context.Context, AccountRecord, []string) (CredentialRecord, error),
	errs Errors,
) (*CredentialRecord, error) {
	var roles []string
	if accounts.GetRoles != nil {
		r, err := accounts.GetRoles(ctx, account)
		if err != nil {
			return nil, unavailable(errs, err)
		}
		roles = r
	}

	credential, err := issue(ctx, account, roles)
	if err != nil {
		return nil, unavailable(errs, err)
	}
	return &credential, nil
}

// unavailable wraps err under errs.Unavailable, keeping both in the chain.
func unavailable(errs Errors, err error) error {
	if err == nil {
		return nil
	}
	if errs.Unavailable == nil || errors.Is(err, errs.Unavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", errs.Unavailable, err)
}

// resolveDestination picks where a code goes. SMS falls back to email when
// the account has no phone number.
func resolveDestination(account AccountRecord, channel string, fallbackToEmail bool) (string, string, bool) {
	switch channel {
	case ChannelSMS:
		if account.Phone != "" {
			return ChannelSMS, account.Phone, true
		}
		if fallbackToEmail && account.Email != "" {
			return ChannelEmail, account.Email, true
		}
		return ChannelSMS, "", false
	default:
		if account.Email != "" {
			return ChannelEmail, account.Email, true
		}
		return ChannelEmail, "", false
	}
}

// MaskDestination hides most of an address or phone number for display.
func MaskDestination(channel, destination string) string {
	if destination == "" {
		return ""
	}
	if channel == ChannelEmail {
		at := strings.LastIndexByte(destination, '@')
		if at <= 0 {
			return "***"
		}
		return destination[:1] + "***" + destination[at:]
	}
	if len(destination) <= 4 {
		return "***"
	}
	return "***" + destination[len(destination)-4:]
}
