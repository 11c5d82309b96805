package goIdentity_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"time"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/credstore"
	"github.com/MrEthical07/goIdentity/delivery"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ExampleNew wires an engine from the bundled adapters.
func ExampleNew() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	cfg := goIdentity.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	store, _ := credstore.NewMemory(nil, credstore.DefaultLockoutConfig())
	_ = store.Add(goIdentity.Account{ID: "u1", Identifier: "alice", Email: "alice@example.com"}, "correct-horse", "user")

	engine, err := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithDispatcher(delivery.NewOutbox(time.Minute)).
		Build()
	if err != nil {
		fmt.Println(err)
		return
	}
	defer engine.Close()

	cred, err := engine.Login(context.Background(), "alice", "correct-horse")
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(cred.AccountID, cred.Roles)
	// Output: u1 [user]
}

// ExampleEngine_BeginStepUp shows the two-call step-up login. The code
// reaches the user out of band; here it is read back from the outbox.
func ExampleEngine_BeginStepUp() {
	mr, _ := miniredis.Run()
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	pub, priv, _ := ed25519.GenerateKey(rand.Reader)
	cfg := goIdentity.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub

	store, _ := credstore.NewMemory(nil, credstore.DefaultLockoutConfig())
	_ = store.Add(goIdentity.Account{ID: "u1", Identifier: "alice", Email: "alice@example.com"}, "correct-horse", "user")
	outbox := delivery.NewOutbox(time.Minute)

	engine, _ := goIdentity.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(store).
		WithDispatcher(outbox).
		Build()
	defer engine.Close()

	ctx := context.Background()
	challenge, err := engine.BeginStepUp(ctx, "alice", "correct-horse", goIdentity.ChannelEmail)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(challenge.Channel)

	msg, _ := outbox.Last(goIdentity.ChannelEmail, "alice@example.com")
	code := regexp.MustCompile(`\d{6}`).FindString(msg.Body)

	if _, err := engine.CompleteStepUp(ctx, "alice", "correct-horse", code); err != nil {
		fmt.Println(err)
		return
	}
	_, err = engine.CompleteStepUp(ctx, "alice", "correct-horse", code)
	fmt.Println(errors.Is(err, goIdentity.ErrCodeInvalid))
	// Output:
	// email
	// true
}
