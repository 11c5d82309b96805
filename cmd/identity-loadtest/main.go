// Command identity-loadtest drives the Redis one-time-code ledger with
// concurrent issue and redeem traffic and checks that racing redeemers of
// the same code never both win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goIdentity/internal"
	"github.com/MrEthical07/goIdentity/internal/stores"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func main() {
	var (
		subjects    = flag.Int("subjects", 20000, "number of subjects to issue codes for")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		racers      = flag.Int("racers", 8, "concurrent redeemers per code in the race phase")
		raceCodes   = flag.Int("race-codes", 2000, "codes contested in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "otc-load", "ledger key prefix")
	)
	flag.Parse()

	if *subjects <= 0 || *concurrency <= 0 || *racers < 2 || *raceCodes <= 0 {
		fmt.Fprintln(os.Stderr, "subjects, concurrency and race-codes must be > 0; racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	ledger := stores.NewRedisLedger(client, *prefix, func() (string, error) {
		return internal.NewNumericCode(6)
	})

	codes := make([]string, *subjects)
	issueStats := runPhase(*subjects, *concurrency, func(i int) error {
		issued, err := ledger.Issue(ctx, "0", subjectFor(i), stores.PurposeLoginStepUp, 10*time.Minute)
		if err != nil {
			return err
		}
		codes[i] = issued.Code
		return nil
	})

	redeemStats := runPhase(*subjects, *concurrency, func(i int) error {
		return ledger.Redeem(ctx, "0", subjectFor(i), stores.PurposeLoginStepUp, codes[i], time.Now())
	})

	wins, raceStats := runRace(ctx, ledger, *raceCodes, *racers)

	fmt.Println("---- results ----")
	printStats("issue", issueStats)
	printStats("redeem", redeemStats)
	printStats("race", raceStats)
	fmt.Printf("race: codes=%d racers=%d winners=%d\n", *raceCodes, *racers, wins)

	if wins != int64(*raceCodes) {
		fmt.Fprintf(os.Stderr, "expected exactly %d winning redemptions, got %d\n", *raceCodes, wins)
		os.Exit(1)
	}
}

func subjectFor(i int) string {
	return fmt.Sprintf("subject-%d", i)
}

// runPhase calls op for indexes [0, n) across concurrency workers.
func runPhase(n, concurrency int, op func(i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, n)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= n {
					return
				}
				t0 := time.Now()
				err := op(i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

// runRace issues one code per subject and releases racers redeemers on it
// at once. Only ErrCodeNotFound counts as an expected loss.
func runRace(ctx context.Context, ledger *stores.RedisLedger, codes, racers int) (int64, phaseStats) {
	var (
		wins      int64
		failures  int64
		latencies = make([]time.Duration, 0, codes*racers)
		mu        sync.Mutex
	)

	start := time.Now()
	for c := 0; c < codes; c++ {
		subject := fmt.Sprintf("race-%d", c)
		issued, err := ledger.Issue(ctx, "0", subject, stores.PurposePasswordReset, time.Minute)
		if err != nil {
			atomic.AddInt64(&failures, 1)
			continue
		}

		var wg sync.WaitGroup
		gate := make(chan struct{})
		for r := 0; r < racers; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				t0 := time.Now()
				err := ledger.Redeem(ctx, "0", subject, stores.PurposePasswordReset, issued.Code, time.Now())
				d := time.Since(t0)
				switch {
				case err == nil:
					atomic.AddInt64(&wins, 1)
				case !errors.Is(err, stores.ErrCodeNotFound):
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}()
		}
		close(gate)
		wg.Wait()
	}
	return wins, computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
