// icloud-loadtest measures session store throughput against Redis.
//
// It seeds authenticated sessions carrying a realistic cookie set, then runs
// a load phase (Store.Load) and a save phase (cookie update plus Store.Save)
// with concurrent workers and prints latency percentiles for each.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goICloud/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	sess *session.Session
	mu   sync.Mutex
}

func main() {
	var (
		sessions    = flag.Int("sessions", 10000, "number of sessions to seed")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 50000, "operations per phase (load + save)")
		cookies     = flag.Int("cookies", 12, "cookies per session")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "icloud:loadtest", "session key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *cookies < 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0 and cookies >= 0")
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

	store := session.NewStore(client, *prefix)
	if rtt, err := store.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "redis unavailable: %v\n", err)
		os.Exit(1)
	} else {
		fmt.Printf("redis rtt %s\n", rtt.Round(time.Microsecond))
	}

	states := make([]sessionState, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := range states {
		states[i].sess = buildSession(i, *cookies)
		if err := store.Save(ctx, states[i].sess); err != nil {
			fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			os.Exit(1)
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loadStats := runPhase(*ops, *concurrency, func(r *rand.Rand, _ int) error {
		_, err := store.Load(ctx, states[r.Intn(len(states))].sess.ClientID())
		return err
	})
	saveStats := runPhase(*ops, *concurrency, func(r *rand.Rand, i int) error {
		state := &states[r.Intn(len(states))]
		state.mu.Lock()
		defer state.mu.Unlock()
		state.sess.Cookies().Add(session.Cookie{
			Name:   "X-APPLE-WEBAUTH-VALIDATE",
			Value:  strconv.Itoa(i),
			Domain: "icloud.com",
			Path:   "/",
		})
		return store.Save(ctx, state.sess)
	})

	fmt.Println("---- results ----")
	printStats("load", loadStats)
	printStats("save", saveStats)
}

func runPhase(ops, concurrency int, op func(r *rand.Rand, i int) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r, i)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
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
		return phaseStats{total: total}
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

func buildSession(i, cookies int) *session.Session {
	sess := session.New(fmt.Sprintf("LOADTEST-%08d", i))
	sess.Apply(session.LoginInfo{
		SessionID:   strconv.Itoa(8000000000 + i),
		AccountInfo: map[string]any{"appleId": fmt.Sprintf("user%d@example.com", i), "hsaVersion": int64(2)},
		ServiceMap: map[string]any{
			"ckdatabasews": map[string]any{"url": "https://p31-ckdatabasews.icloud.com:443", "status": "active"},
		},
		CreatedAt:     time.Now(),
		ExtendedLogin: true,
	})
	expires := time.Now().Add(30 * 24 * time.Hour)
	for c := 0; c < cookies; c++ {
		sess.Cookies().Add(session.Cookie{
			Name:    fmt.Sprintf("X-APPLE-WEBAUTH-%d", c),
			Value:   fmt.Sprintf("%064x", i*cookies+c),
			Domain:  "icloud.com",
			Path:    "/",
			Expiry:  &expires,
			Secure:  true,
		})
	}
	return sess
}
