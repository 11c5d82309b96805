package credstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/password"
)

type memoryAccount struct {
	account     goIdentity.Account
	hash        string
	roles       []string
	failures    int
	lockedUntil time.Time
}

// Memory is an in-process credential store. It also implements
// goIdentity.ExternalLoginResolver.
type Memory struct {
	mu       sync.RWMutex
	hasher   *password.Hasher
	lockout  LockoutConfig
	now      func() time.Time
	accounts map[string]*memoryAccount
	external map[string]string
}

// NewMemory returns an empty store. A nil hasher uses password.DefaultConfig.
func NewMemory(hasher *password.Hasher, lockout LockoutConfig) (*Memory, error) {
	h, err := newDefaultHasher(hasher)
	if err != nil {
		return nil, err
	}
	return &Memory{
		hasher:   h,
		lockout:  lockout.normalized(),
		now:      time.Now,
		accounts: map[string]*memoryAccount{},
		external: map[string]string{},
	}, nil
}

// Add registers an account with its initial secret and roles.
func (m *Memory) Add(account goIdentity.Account, secret string, roles ...string) error {
	if account.ID == "" || account.Identifier == "" {
		return fmt.Errorf("%w: account id and identifier required", goIdentity.ErrInvalidRequest)
	}
	hash, err := m.hasher.Hash(secret)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.accounts {
		if rec.account.ID == account.ID || rec.account.Identifier == account.Identifier ||
			(account.Email != "" && strings.EqualFold(rec.account.Email, account.Email)) {
			return ErrDuplicateAccount
		}
	}

	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	m.accounts[account.ID] = &memoryAccount{
		account: account,
		hash:    hash,
		roles:   normalizeRoles(roles),
	}
	return nil
}

// Link ties an external (provider, key) identity to accountID.
func (m *Memory) Link(provider, providerKey, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		return goIdentity.ErrNotFound
	}
	m.external[externalKey(provider, providerKey)] = accountID
	return nil
}

func (m *Memory) FindByIdentifier(_ context.Context, identifier string) (*goIdentity.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.accounts {
		if rec.account.Identifier == identifier {
			account := rec.account
			return &account, nil
		}
	}
	return nil, goIdentity.ErrNotFound
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*goIdentity.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, goIdentity.ErrNotFound
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.accounts {
		if rec.account.Email == email {
			account := rec.account
			return &account, nil
		}
	}
	return nil, goIdentity.ErrNotFound
}

func (m *Memory) FindByExternalLogin(_ context.Context, provider, providerKey string) (*goIdentity.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.external[externalKey(provider, providerKey)]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	rec, ok := m.accounts[id]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	account := rec.account
	return &account, nil
}

// VerifySecret checks secret and counts consecutive failures. Reaching
// MaxFailures locks the account for the lockout duration.
func (m *Memory) VerifySecret(_ context.Context, account *goIdentity.Account, secret string) (bool, error) {
	m.mu.RLock()
	rec, ok := m.accounts[account.ID]
	var hash string
	if ok {
		hash = rec.hash
	}
	m.mu.RUnlock()
	if !ok {
		return false, goIdentity.ErrNotFound
	}

	// hash outside the lock; argon2 is slow
	valid, err := m.hasher.Verify(secret, hash)
	if err != nil && !errors.Is(err, password.ErrSecretTooLong) && !errors.Is(err, password.ErrSecretTooShort) {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok = m.accounts[account.ID]
	if !ok {
		return false, goIdentity.ErrNotFound
	}
	if !valid {
		rec.failures++
		if rec.failures >= m.lockout.MaxFailures {
			rec.lockedUntil = m.now().Add(m.lockout.Duration)
			rec.failures = 0
		}
		return false, nil
	}
	rec.failures = 0
	return true, nil
}

// VerifyUnknown spends one hash on secret for an identifier that matched no
// account.
func (m *Memory) VerifyUnknown(_ context.Context, secret string) {
	m.hasher.VerifyDummy(secret)
}

func (m *Memory) IsLocked(_ context.Context, account *goIdentity.Account) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.accounts[account.ID]
	if !ok {
		return false, goIdentity.ErrNotFound
	}
	return m.now().Before(rec.lockedUntil), nil
}

// SetSecret replaces the secret and clears any lockout.
func (m *Memory) SetSecret(_ context.Context, account *goIdentity.Account, newSecret string) error {
	hash, err := m.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrPasswordPolicy, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.accounts[account.ID]
	if !ok {
		return goIdentity.ErrNotFound
	}
	rec.hash = hash
	rec.failures = 0
	rec.lockedUntil = time.Time{}
	return nil
}

func (m *Memory) GetRoles(_ context.Context, account *goIdentity.Account) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.accounts[account.ID]
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	return append([]string(nil), rec.roles...), nil
}

func normalizeRoles(roles []string) []string {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func externalKey(provider, providerKey string) string {
	return strings.ToLower(strings.TrimSpace(provider)) + "|" + providerKey
}
