package credstore

import (
	"errors"
	"time"

	"github.com/MrEthical07/goIdentity/password"
)

var ErrDuplicateAccount = errors.New("account already exists")

// LockoutConfig controls how many consecutive wrong secrets lock an account
// and for how long.
type LockoutConfig struct {
	MaxFailures int
	Duration    time.Duration
}

func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxFailures: 5,
		Duration:    15 * time.Minute,
	}
}

func (c LockoutConfig) normalized() LockoutConfig {
	def := DefaultLockoutConfig()
	if c.MaxFailures <= 0 {
		c.MaxFailures = def.MaxFailures
	}
	if c.Duration <= 0 {
		c.Duration = def.Duration
	}
	return c
}

func newDefaultHasher(h *password.Hasher) (*password.Hasher, error) {
	if h != nil {
		return h, nil
	}
	return password.NewHasher(password.DefaultConfig())
}
