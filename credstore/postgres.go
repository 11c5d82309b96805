package credstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/password"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgSelectAccount = `SELECT id, identifier, display_name, email, phone FROM accounts`

	pgFindByIdentifierSQL = pgSelectAccount + ` WHERE identifier = $1`

	pgFindByEmailSQL = pgSelectAccount + ` WHERE email = lower($1)`

	pgFindByExternalSQL = `SELECT a.id, a.identifier, a.display_name, a.email, a.phone
FROM external_logins e JOIN accounts a ON a.id = e.account_id
WHERE e.provider = lower($1) AND e.provider_key = $2`

	pgSecretHashSQL = `SELECT secret_hash FROM accounts WHERE id = $1`

	pgRecordFailureSQL = `UPDATE accounts SET
  failed_attempts = CASE WHEN failed_attempts + 1 >= $2 THEN 0 ELSE failed_attempts + 1 END,
  locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END
WHERE id = $1`

	pgClearFailuresSQL = `UPDATE accounts SET failed_attempts = 0 WHERE id = $1 AND failed_attempts <> 0`

	pgIsLockedSQL = `SELECT locked_until IS NOT NULL AND locked_until > $2 FROM accounts WHERE id = $1`

	pgSetSecretSQL = `UPDATE accounts SET secret_hash = $2, failed_attempts = 0, locked_until = NULL WHERE id = $1`

	pgRolesSQL = `SELECT COALESCE(array_agg(role ORDER BY role), '{}') FROM account_roles WHERE account_id = $1`

	pgInsertAccountSQL = `INSERT INTO accounts (id, identifier, display_name, email, phone, secret_hash)
VALUES ($1, $2, $3, lower($4), $5, $6)`

	pgInsertRoleSQL = `INSERT INTO account_roles (account_id, role) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	pgLinkExternalSQL = `INSERT INTO external_logins (provider, provider_key, account_id) VALUES (lower($1), $2, $3)
ON CONFLICT (provider, provider_key) DO UPDATE SET account_id = EXCLUDED.account_id`
)

// Querier is the subset of *pgxpool.Pool the store needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is a credential store over the accounts schema. It also
// implements goIdentity.ExternalLoginResolver.
type Postgres struct {
	db      Querier
	hasher  *password.Hasher
	lockout LockoutConfig
	now     func() time.Time
}

// NewPostgres returns a store over db. A nil hasher uses
// password.DefaultConfig.
func NewPostgres(db Querier, hasher *password.Hasher, lockout LockoutConfig) (*Postgres, error) {
	h, err := newDefaultHasher(hasher)
	if err != nil {
		return nil, err
	}
	return &Postgres{
		db:      db,
		hasher:  h,
		lockout: lockout.normalized(),
		now:     time.Now,
	}, nil
}

func (p *Postgres) FindByIdentifier(ctx context.Context, identifier string) (*goIdentity.Account, error) {
	return p.scanAccount(ctx, pgFindByIdentifierSQL, identifier)
}

func (p *Postgres) FindByEmail(ctx context.Context, email string) (*goIdentity.Account, error) {
	return p.scanAccount(ctx, pgFindByEmailSQL, strings.TrimSpace(email))
}

func (p *Postgres) FindByExternalLogin(ctx context.Context, provider, providerKey string) (*goIdentity.Account, error) {
	return p.scanAccount(ctx, pgFindByExternalSQL, strings.TrimSpace(provider), providerKey)
}

func (p *Postgres) scanAccount(ctx context.Context, sql string, args ...any) (*goIdentity.Account, error) {
	var (
		a     goIdentity.Account
		email *string
		phone *string
	)
	err := p.db.QueryRow(ctx, sql, args...).Scan(&a.ID, &a.Identifier, &a.DisplayName, &email, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goIdentity.ErrNotFound
		}
		return nil, unavailable(err)
	}
	if email != nil {
		a.Email = *email
	}
	if phone != nil {
		a.Phone = *phone
	}
	return &a, nil
}

// VerifySecret checks secret against the stored hash and updates the failure
// counter. Reaching MaxFailures sets locked_until.
func (p *Postgres) VerifySecret(ctx context.Context, account *goIdentity.Account, secret string) (bool, error) {
	var hash string
	if err := p.db.QueryRow(ctx, pgSecretHashSQL, account.ID).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, goIdentity.ErrNotFound
		}
		return false, unavailable(err)
	}

	valid, err := p.hasher.Verify(secret, hash)
	if err != nil && !errors.Is(err, password.ErrSecretTooLong) {
		return false, err
	}

	if !valid {
		lockedUntil := p.now().Add(p.lockout.Duration).UTC()
		if _, err := p.db.Exec(ctx, pgRecordFailureSQL, account.ID, p.lockout.MaxFailures, lockedUntil); err != nil {
			return false, unavailable(err)
		}
		return false, nil
	}

	if _, err := p.db.Exec(ctx, pgClearFailuresSQL, account.ID); err != nil {
		return false, unavailable(err)
	}
	return true, nil
}

// VerifyUnknown spends one hash on secret for an identifier that matched no
// account.
func (p *Postgres) VerifyUnknown(_ context.Context, secret string) {
	p.hasher.VerifyDummy(secret)
}

func (p *Postgres) IsLocked(ctx context.Context, account *goIdentity.Account) (bool, error) {
	var locked bool
	if err := p.db.QueryRow(ctx, pgIsLockedSQL, account.ID, p.now().UTC()).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, goIdentity.ErrNotFound
		}
		return false, unavailable(err)
	}
	return locked, nil
}

// SetSecret stores a new hash and clears any lockout.
func (p *Postgres) SetSecret(ctx context.Context, account *goIdentity.Account, newSecret string) error {
	hash, err := p.hasher.Hash(newSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrPasswordPolicy, err)
	}

	tag, err := p.db.Exec(ctx, pgSetSecretSQL, account.ID, hash)
	if err != nil {
		return unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return goIdentity.ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRoles(ctx context.Context, account *goIdentity.Account) ([]string, error) {
	var roles []string
	if err := p.db.QueryRow(ctx, pgRolesSQL, account.ID).Scan(&roles); err != nil {
		return nil, unavailable(err)
	}
	return roles, nil
}

// CreateAccount inserts an account with its secret and roles. It is not
// transactional; callers seeding many accounts should wrap it.
func (p *Postgres) CreateAccount(ctx context.Context, account goIdentity.Account, secret string, roles ...string) error {
	hash, err := p.hasher.Hash(secret)
	if err != nil {
		return fmt.Errorf("%w: %v", goIdentity.ErrPasswordPolicy, err)
	}

	if _, err := p.db.Exec(ctx, pgInsertAccountSQL,
		account.ID, account.Identifier, account.DisplayName,
		nullable(account.Email), nullable(account.Phone), hash,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateAccount
		}
		return unavailable(err)
	}

	for _, role := range normalizeRoles(roles) {
		if _, err := p.db.Exec(ctx, pgInsertRoleSQL, account.ID, role); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

// Link ties an external (provider, key) identity to accountID.
func (p *Postgres) Link(ctx context.Context, provider, providerKey, accountID string) error {
	if _, err := p.db.Exec(ctx, pgLinkExternalSQL, strings.TrimSpace(provider), providerKey, accountID); err != nil {
		return unavailable(err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", goIdentity.ErrUnavailable, err)
}
