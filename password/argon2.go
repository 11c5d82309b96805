package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	DefaultMinSecretBytes = 8
	DefaultMaxSecretBytes = 1024
)

var (
	ErrSecretTooShort  = errors.New("secret is too short")
	ErrSecretTooLong   = errors.New("secret is too long")
	ErrMalformedHash   = errors.New("malformed argon2id hash")
	ErrUnsupportedHash = errors.New("unsupported hash algorithm or version")
)

// Config holds Argon2id cost parameters and secret length bounds. Zero
// length bounds fall back to the package defaults.
type Config struct {
	Memory         uint32 // KiB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinSecretBytes int
	MaxSecretBytes int
}

// DefaultConfig returns OWASP-leaning parameters.
func DefaultConfig() Config {
	return Config{
		Memory:         64 * 1024,
		Time:           3,
		Parallelism:    2,
		SaltLength:     16,
		KeyLength:      32,
		MinSecretBytes: DefaultMinSecretBytes,
		MaxSecretBytes: DefaultMaxSecretBytes,
	}
}

// Hasher hashes and verifies account secrets. It is safe for concurrent use.
type Hasher struct {
	config Config
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.MinSecretBytes <= 0 {
		cfg.MinSecretBytes = DefaultMinSecretBytes
	}
	if cfg.MaxSecretBytes <= 0 {
		cfg.MaxSecretBytes = DefaultMaxSecretBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Hasher{config: cfg}, nil
}

// MinSecretBytes is the shortest secret Hash accepts.
func (h *Hasher) MinSecretBytes() int {
	return h.config.MinSecretBytes
}

// Hash returns a PHC-encoded Argon2id hash of secret. Secrets are hashed
// byte for byte with no Unicode normalization.
func (h *Hasher) Hash(secret string) (string, error) {
	if len(secret) < h.config.MinSecretBytes {
		return "", ErrSecretTooShort
	}
	if len(secret) > h.config.MaxSecretBytes {
		return "", ErrSecretTooLong
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(secret), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether secret matches encoded. Over-long secrets are
// rejected before any key derivation.
func (h *Hasher) Verify(secret, encoded string) (bool, error) {
	if len(secret) > h.config.MaxSecretBytes {
		return false, ErrSecretTooLong
	}

	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(secret), parsed.salt, parsed.time, parsed.memory, parsed.parallelism, uint32(len(parsed.hash)))

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// VerifyDummy runs one key derivation at the hasher's configured cost and
// discards it. Credential stores call it for unknown accounts so that a miss
// costs the same as a wrong secret.
func (h *Hasher) VerifyDummy(secret string) {
	if len(secret) > h.config.MaxSecretBytes {
		return
	}
	salt := make([]byte, h.config.SaltLength)
	key := argon2.IDKey([]byte(secret), salt, h.config.Time, h.config.Memory, h.config.Parallelism, h.config.KeyLength)
	subtle.ConstantTimeCompare(key, salt)
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's current config.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	parsed, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}

	return h.config.Memory > parsed.memory ||
		h.config.Time > parsed.time ||
		h.config.Parallelism > parsed.parallelism ||
		h.config.KeyLength != uint32(len(parsed.hash)), nil
}

func decodePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, ErrMalformedHash
	}
	if parts[1] != algorithmID {
		return nil, ErrUnsupportedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, ErrUnsupportedHash
	}

	out := &phc{}
	if err := decodeParams(parts[3], out); err != nil {
		return nil, err
	}

	out.salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(out.salt) < int(minSaltLength) {
		return nil, ErrMalformedHash
	}
	out.hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(out.hash) < int(minKeyLength) {
		return nil, ErrMalformedHash
	}

	return out, nil
}

func decodeParams(part string, out *phc) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return ErrMalformedHash
	}

	seen := 0
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return ErrMalformedHash
		}

		switch name {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return ErrMalformedHash
			}
			out.memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return ErrMalformedHash
			}
			out.time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return ErrMalformedHash
			}
			out.parallelism = uint8(v)
		default:
			return ErrMalformedHash
		}
		seen++
	}

	if seen != 3 || out.memory == 0 || out.time == 0 || out.parallelism == 0 {
		return ErrMalformedHash
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < minTimeCost:
		return errors.New("password time must be >= 1")
	case cfg.Parallelism < minParallelism:
		return errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return errors.New("password key length must be >= 16")
	case cfg.MaxSecretBytes < cfg.MinSecretBytes:
		return errors.New("password MaxSecretBytes must be >= MinSecretBytes")
	}
	return nil
}
