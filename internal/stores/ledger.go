package stores

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
)

const (
	codeRecordVersionV1 = 1
	codeRecordSize      = 1 + 1 + 8 + 8 + sha256.Size
)

var (
	ErrCodeNotFound      = errors.New("code not found")
	ErrCodeMismatch      = errors.New("code mismatch")
	ErrCodeExpired       = errors.New("code expired")
	ErrInvalidCodeIssue  = errors.New("invalid code issue request")
	ErrLedgerUnavailable = errors.New("code ledger unavailable")
)

// Purpose partitions the ledger key space.
type Purpose uint8

const (
	PurposeLoginStepUp   Purpose = 1
	PurposePasswordReset Purpose = 2
)

func (p Purpose) String() string {
	switch p {
	case PurposeLoginStepUp:
		return "login_step_up"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "purpose_" + strconv.Itoa(int(p))
	}
}

// CodeGenerator produces the plaintext for a new code.
type CodeGenerator func() (string, error)

// IssuedCode is returned once by Issue. Code is the only copy of the plaintext.
type IssuedCode struct {
	Code      string
	Purpose   Purpose
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CodeRecord is the persisted shape of an issued code.
type CodeRecord struct {
	Purpose   Purpose
	CreatedAt int64
	ExpiresAt int64
	CodeHash  [32]byte
}

// Ledger is implemented by every backend.
type Ledger interface {
	Issue(ctx context.Context, tenantID, subject string, purpose Purpose, ttl time.Duration) (*IssuedCode, error)
	Redeem(ctx context.Context, tenantID, subject string, purpose Purpose, code string, now time.Time) error
	Lookup(ctx context.Context, tenantID, subject string, purpose Purpose, code string, now time.Time) error
	Expire(ctx context.Context, now time.Time) (int, error)
}

func newCodeRecord(purpose Purpose, code string, now time.Time, ttl time.Duration) *CodeRecord {
	return &CodeRecord{
		Purpose:   purpose,
		CreatedAt: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		CodeHash:  internal.HashCode(code),
	}
}

// check applies the redemption rules in order: wrong purpose or value is a
// mismatch, then a matching code at or past its expiry is expired.
func (r *CodeRecord) check(purpose Purpose, code string, now time.Time) error {
	if r.Purpose != purpose || !internal.EqualCodeHash(r.CodeHash, internal.HashCode(code)) {
		return ErrCodeMismatch
	}
	if now.UnixMilli() >= r.ExpiresAt {
		return ErrCodeExpired
	}
	return nil
}

func prepareIssue(subject string, ttl time.Duration, generate CodeGenerator) (string, error) {
	if strings.TrimSpace(subject) == "" || ttl <= 0 || generate == nil {
		return "", ErrInvalidCodeIssue
	}
	code, err := generate()
	if err != nil {
		return "", err
	}
	if code == "" {
		return "", ErrInvalidCodeIssue
	}
	return code, nil
}

func normalizeTenantID(tenantID string) string {
	if tenantID == "" {
		return "0"
	}
	return tenantID
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(codeRecordSize)

	buf.WriteByte(codeRecordVersionV1)
	buf.WriteByte(byte(record.Purpose))

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	if len(data) != codeRecordSize {
		return nil, errors.New("invalid code record size")
	}
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	purpose, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &CodeRecord{Purpose: Purpose(purpose)}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
