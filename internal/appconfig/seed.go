package appconfig

import (
	"fmt"
	"strings"
)

// SeedAccount is one development account from IDENTITY_DEV_SEED.
type SeedAccount struct {
	Identifier string
	Email      string
	Phone      string
	Secret     string
	Roles      []string
}

// SeedAccounts parses IDENTITY_DEV_SEED. Entries are separated by ";" and
// have the form identifier:email:phone:secret[:role|role]. Phone may be
// empty.
func (c *Config) SeedAccounts() ([]SeedAccount, error) {
	if strings.TrimSpace(c.DevSeed) == "" {
		return nil, nil
	}

	var out []SeedAccount
	for i, entry := range strings.Split(c.DevSeed, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 4 || len(parts) > 5 {
			return nil, fmt.Errorf("config: IDENTITY_DEV_SEED entry %d: want identifier:email:phone:secret[:roles]", i)
		}
		seed := SeedAccount{
			Identifier: strings.TrimSpace(parts[0]),
			Email:      strings.TrimSpace(parts[1]),
			Phone:      strings.TrimSpace(parts[2]),
			Secret:     parts[3],
		}
		if seed.Identifier == "" || seed.Secret == "" {
			return nil, fmt.Errorf("config: IDENTITY_DEV_SEED entry %d: identifier and secret are required", i)
		}
		if len(parts) == 5 && parts[4] != "" {
			seed.Roles = strings.Split(parts[4], "|")
		}
		out = append(out, seed)
	}
	return out, nil
}
