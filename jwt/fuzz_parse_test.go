package jwt

import (
	"encoding/base64"
	"slices"
	"strings"
	"testing"
	"time"
)

// FuzzParseRoles mutates issued credentials. Parse must never panic, and any
// token it accepts must carry exactly the roles that were signed for its
// subject: no mutation may widen a role snapshot.
func FuzzParseRoles(f *testing.F) {
	mgr, err := NewManager(Config{
		TTL:           5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "goidentity",
		Audience:      "console",
		Leeway:        30 * time.Second,
		RequireIAT:    true,
		KeyID:         "k1",
	})
	if err != nil {
		f.Fatal(err)
	}

	signed := map[string][]string{}
	issue := func(subject string, roles ...string) string {
		token, claims, err := mgr.Issue(subject, "", roles, 0)
		if err != nil {
			f.Fatal(err)
		}
		signed[subject] = claims.Roles
		return token
	}

	user := issue("u-user", "user")
	f.Add(user)
	f.Add(issue("u-admin", "user", "admin", "billing:write"))
	f.Add(issue("u-none"))
	f.Add(issue("u-dupes", "support", "support", " support "))

	// payload rewritten to claim admin under the original signature
	parts := strings.Split(user, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"roles":["admin","user"],"sub":"u-user","iss":"goidentity","aud":["console"],"exp":4102444800,"iat":1700000000}`))
	f.Add(parts[0] + "." + forged + "." + parts[2])

	f.Add("")
	f.Add("not.a.jwt")
	f.Add("eyJhbGciOiJub25lIn0.eyJzdWIiOiJ1LXVzZXIiLCJyb2xlcyI6WyJhZG1pbiJdfQ.")

	f.Fuzz(func(t *testing.T, input string) {
		claims, err := mgr.Parse(input)
		if err != nil {
			return
		}
		if claims == nil {
			t.Fatal("Parse returned nil claims without error")
		}
		want, ok := signed[claims.Subject]
		if !ok {
			t.Fatalf("accepted token for unsigned subject %q", claims.Subject)
		}
		if !slices.Equal(claims.Roles, want) {
			t.Fatalf("roles for %q changed: got %v want %v", claims.Subject, claims.Roles, want)
		}
	})
}
