package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgIssueCodeSQL = `INSERT INTO one_time_codes (tenant_id, purpose, subject, code_hash, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tenant_id, purpose, subject)
DO UPDATE SET code_hash = EXCLUDED.code_hash, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`

	pgRedeemCodeSQL = `DELETE FROM one_time_codes
WHERE tenant_id = $1 AND purpose = $2 AND subject = $3 AND code_hash = $4 AND expires_at > $5
RETURNING created_at`

	pgLookupCodeSQL = `SELECT code_hash, expires_at FROM one_time_codes
WHERE tenant_id = $1 AND purpose = $2 AND subject = $3`

	pgExpireCodesSQL = `DELETE FROM one_time_codes WHERE expires_at <= $1`
)

// Querier is the subset of *pgxpool.Pool the Postgres ledger needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger keeps codes in the one_time_codes table. The primary key on
// (tenant_id, purpose, subject) gives last-writer-wins issue via upsert, and
// redemption is one conditional DELETE so two racing redeemers cannot both win.
type PostgresLedger struct {
	db       Querier
	generate CodeGenerator
	now      func() time.Time
}

func NewPostgresLedger(db Querier, generate CodeGenerator) *PostgresLedger {
	return &PostgresLedger{
		db:       db,
		generate: generate,
		now:      time.Now,
	}
}

func (l *PostgresLedger) Issue(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	ttl time.Duration,
) (*IssuedCode, error) {
	code, err := prepareIssue(subject, ttl, l.generate)
	if err != nil {
		return nil, err
	}

	now := l.now()
	record := newCodeRecord(purpose, code, now, ttl)
	createdAt := time.UnixMilli(record.CreatedAt).UTC()
	expiresAt := time.UnixMilli(record.ExpiresAt).UTC()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err = l.db.Exec(ctx, pgIssueCodeSQL,
		normalizeTenantID(tenantID),
		int16(purpose),
		subject,
		record.CodeHash[:],
		createdAt,
		expiresAt,
	)
	if err != nil {
		return nil, classifyPostgresErr(ctx, err)
	}

	return &IssuedCode{
		Code:      code,
		Purpose:   purpose,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (l *PostgresLedger) Redeem(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	code string,
	now time.Time,
) error {
	tenantID = normalizeTenantID(tenantID)
	provided := internal.HashCode(code)

	var createdAt time.Time
	err := l.db.QueryRow(ctx, pgRedeemCodeSQL,
		tenantID,
		int16(purpose),
		subject,
		provided[:],
		now.UTC(),
	).Scan(&createdAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return classifyPostgresErr(ctx, err)
	}

	// nothing deleted; work out why
	if err := l.Lookup(ctx, tenantID, subject, purpose, code, now); err != nil {
		return err
	}
	return ErrCodeNotFound
}

func (l *PostgresLedger) Lookup(
	ctx context.Context,
	tenantID, subject string,
	purpose Purpose,
	code string,
	now time.Time,
) error {
	var (
		stored    []byte
		expiresAt time.Time
	)
	err := l.db.QueryRow(ctx, pgLookupCodeSQL,
		normalizeTenantID(tenantID),
		int16(purpose),
		subject,
	).Scan(&stored, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCodeNotFound
		}
		return classifyPostgresErr(ctx, err)
	}

	var storedHash [32]byte
	if len(stored) != len(storedHash) {
		return ErrCodeMismatch
	}
	copy(storedHash[:], stored)
	if !internal.EqualCodeHash(storedHash, internal.HashCode(code)) {
		return ErrCodeMismatch
	}
	if !now.Before(expiresAt) {
		return ErrCodeExpired
	}
	return nil
}

func (l *PostgresLedger) Expire(ctx context.Context, now time.Time) (int, error) {
	tag, err := l.db.Exec(ctx, pgExpireCodesSQL, now.UTC())
	if err != nil {
		return 0, classifyPostgresErr(ctx, err)
	}
	return int(tag.RowsAffected()), nil
}

func classifyPostgresErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
