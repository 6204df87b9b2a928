package client_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/pixperk/leasebook/pkg/client"
)

// Run with: go test -run=Percentile -v ./pkg/client/

type latencyStats struct {
	samples []time.Duration
	mu      sync.Mutex
}

func (s *latencyStats) record(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, d)
}

func (s *latencyStats) calculate() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) == 0 {
		return nil
	}

	sort.Slice(s.samples, func(i, j int) bool {
		return s.samples[i] < s.samples[j]
	})

	percentile := func(p float64) time.Duration {
		idx := int(float64(len(s.samples)) * p)
		if idx >= len(s.samples) {
			idx = len(s.samples) - 1
		}
		return s.samples[idx]
	}

	return map[string]time.Duration{
		"min":   s.samples[0],
		"p50":   percentile(0.50),
		"p90":   percentile(0.90),
		"p95":   percentile(0.95),
		"p99":   percentile(0.99),
		"p99.9": percentile(0.999),
		"max":   s.samples[len(s.samples)-1],
	}
}

func TestPercentileSequential(t *testing.T) {
	if testing.Short() {
		t.Skip("latency run")
	}

	c := startNode(t)
	ctx := context.Background()

	lease, _, err := c.CreateLease(ctx, terms())
	if err != nil {
		t.Fatalf("Failed to create lease: %v", err)
	}
	asTenant := lease.As(tenant)
	stats := &latencyStats{}

	iterations := 500
	t.Logf("Running %d sequential payments...", iterations)

	for i := 0; i < iterations; i++ {
		began := time.Now()
		if _, err := asTenant.Pay(ctx, eth(1)); err != nil {
			t.Fatalf("Failed to pay: %v", err)
		}
		stats.record(time.Since(began))
	}

	printStats(t, "Sequential", stats)
}

func TestPercentileParallel(t *testing.T) {
	if testing.Short() {
		t.Skip("latency run")
	}

	const numWriters = 3
	iterations := 600
	stats := &latencyStats{}

	c := startNode(t)
	ctx := context.Background()

	leases := make([]*client.Lease, numWriters)
	for i := range leases {
		lease, _, err := c.CreateLease(ctx, terms())
		if err != nil {
			t.Fatalf("Failed to create lease: %v", err)
		}
		leases[i] = lease.As(tenant)
	}

	t.Logf("Running %d parallel payments (%d leases)...", iterations, numWriters)

	var wg sync.WaitGroup
	for _, l := range leases {
		wg.Add(1)
		go func(l *client.Lease) {
			defer wg.Done()
			for j := 0; j < iterations/numWriters; j++ {
				began := time.Now()
				if _, err := l.Pay(ctx, eth(1)); err != nil {
					continue
				}
				stats.record(time.Since(began))
			}
		}(l)
	}

	wg.Wait()
	printStats(t, "Parallel", stats)
}

func printStats(t *testing.T, name string, stats *latencyStats) {
	percentiles := stats.calculate()
	if percentiles == nil {
		t.Logf("No data collected for %s", name)
		return
	}

	t.Logf("\n=== %s Latency Percentiles ===", name)
	t.Logf("  Samples: %d", len(stats.samples))
	t.Logf("  Min:     %v", percentiles["min"])
	t.Logf("  p50:     %v", percentiles["p50"])
	t.Logf("  p90:     %v", percentiles["p90"])
	t.Logf("  p95:     %v", percentiles["p95"])
	t.Logf("  p99:     %v", percentiles["p99"])
	t.Logf("  p99.9:   %v", percentiles["p99.9"])
	t.Logf("  Max:     %v", percentiles["max"])
	t.Logf("")
}
