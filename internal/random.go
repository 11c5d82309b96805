package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const (
	minCodeDigits = 6
	maxCodeDigits = 10
)

// ErrInvalidCodeDigits is returned when a code length outside [6,10] is requested.
var ErrInvalidCodeDigits = errors.New("invalid code digits")

// NewNumericCode returns a fixed-length decimal code drawn uniformly from
// crypto/rand. Leading zeros are kept.
func NewNumericCode(digits int) (string, error) {
	if digits < minCodeDigits || digits > maxCodeDigits {
		return "", ErrInvalidCodeDigits
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// IsNumericCode reports whether code has exactly digits decimal characters.
func IsNumericCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

func EqualCodeHash(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
