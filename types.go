package goIdentity

import (
	"context"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

// Channel selects how a one-time code reaches the account holder.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Account is the credential store's view of an account. ID is stable and is
// what step-up codes and credentials are keyed by.
type Account struct {
	ID          string
	Identifier  string
	DisplayName string
	Email       string
	Phone       string
}

// CredentialStore is implemented by the host application. Lockout and
// attempt counting belong to the store: VerifySecret may update counters and
// IsLocked reports the result. A missing account must be reported with an
// error matching ErrNotFound.
type CredentialStore interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	VerifySecret(ctx context.Context, account *Account, secret string) (bool, error)
	IsLocked(ctx context.Context, account *Account) (bool, error)
	SetSecret(ctx context.Context, account *Account, newSecret string) error
	GetRoles(ctx context.Context, account *Account) ([]string, error)
}

// SecretEqualizer is an optional CredentialStore extension. When
// FindByIdentifier reports ErrNotFound the engine calls VerifyUnknown, which
// should do the same hashing work as a failed VerifySecret so that unknown
// identifiers and wrong secrets take the same time.
type SecretEqualizer interface {
	VerifyUnknown(ctx context.Context, secret string)
}

// Dispatcher delivers rendered one-time code messages. Implementations
// should wrap failures with ErrDeliveryFailure.
type Dispatcher interface {
	Send(ctx context.Context, channel Channel, destination, subject, body string) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, channel Channel, destination, subject, body string) error

func (f DispatcherFunc) Send(ctx context.Context, channel Channel, destination, subject, body string) error {
	return f(ctx, channel, destination, subject, body)
}

// ExternalLoginResolver maps a federated identity to a linked account. An
// unlinked identity must be reported with an error matching ErrNotFound.
type ExternalLoginResolver interface {
	FindByExternalLogin(ctx context.Context, provider, providerKey string) (*Account, error)
}

// CodeGenerator produces the plaintext of a new one-time code.
type CodeGenerator interface {
	Generate() (string, error)
}

// NumericCodeGenerator draws Digits decimal digits from crypto/rand. Zero
// Digits means 6.
type NumericCodeGenerator struct {
	Digits int
}

func (g NumericCodeGenerator) Generate() (string, error) {
	digits := g.Digits
	if digits == 0 {
		digits = 6
	}
	return internal.NewNumericCode(digits)
}

// Credential is the signed artifact returned by a successful login. Roles
// are the account's roles at issuance and do not follow later changes.
type Credential struct {
	Token     string
	AccountID string
	Name      string
	Roles     []string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// CredentialClaims is what VerifyCredential extracts from a token.
type CredentialClaims struct {
	AccountID string
	Name      string
	Roles     []string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// HasRole reports whether role is among the embedded roles.
func (c *CredentialClaims) HasRole(role string) bool {
	if c == nil {
		return false
	}
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// StepUpChallenge is returned by BeginStepUp once a code has been issued.
// Destination is masked and the code itself is never included.
type StepUpChallenge struct {
	Channel     Channel
	Destination string
	ExpiresAt   time.Time
}

// ExternalLoginStatus is the outcome of LoginExternal.
type ExternalLoginStatus uint8

const (
	ExternalAuthenticated ExternalLoginStatus = iota + 1
	ExternalNeedsLinking
)

func (s ExternalLoginStatus) String() string {
	switch s {
	case ExternalAuthenticated:
		return "authenticated"
	case ExternalNeedsLinking:
		return "needs_linking"
	default:
		return "unknown"
	}
}

// ExternalLoginResult carries a Credential when Status is
// ExternalAuthenticated, or the provider and email hint the caller needs to
// link or create an account when Status is ExternalNeedsLinking.
type ExternalLoginResult struct {
	Status     ExternalLoginStatus
	Credential *Credential
	Provider   string
	Email      string
}
