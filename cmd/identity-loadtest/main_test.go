package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestPercentile(t *testing.T) {
	samples := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(samples, 50); got != 5 {
		t.Fatalf("p50 = %v", got)
	}
	if got := percentile(samples, 100); got != 10 {
		t.Fatalf("p100 = %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty = %v", got)
	}
}

func TestRunRaceHasOneWinnerPerCode(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ledger := stores.NewRedisLedger(rdb, "otc-test", func() (string, error) { return "135790", nil })
	wins, stats := runRace(context.Background(), ledger, 20, 6)
	if wins != 20 {
		t.Fatalf("expected 20 winners, got %d", wins)
	}
	if stats.failures != 0 {
		t.Fatalf("unexpected failures: %d", stats.failures)
	}
}
