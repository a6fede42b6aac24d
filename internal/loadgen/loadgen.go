// Package loadgen drives batches of probes through the filter.
package loadgen

import (
	"context"
	"sync"
	"time"

	"fencebench/internal/model"
	"fencebench/internal/probe"
)

// Generator issues probes via the proxy and hands raw outcomes back to
// the caller without interpreting them.
type Generator struct {
	Client *probe.Client
}

func New(client *probe.Client) *Generator {
	return &Generator{Client: client}
}

// RunConcurrent dispatches exactly n workers, one probe each, and
// blocks until every worker has finished. Outcome order is arbitrary.
func (g *Generator) RunConcurrent(ctx context.Context, target string, n int) []model.ProbeOutcome {
	results := make(chan model.ProbeOutcome, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.Client.Probe(ctx, target, true)
		}()
	}
	wg.Wait()
	close(results)

	out := make([]model.ProbeOutcome, 0, n)
	for r := range results {
		out = append(out, r)
	}
	return out
}

// RunForDuration cycles through targets sequentially until d has
// elapsed. The deadline is checked after each probe, so one slow probe
// may overrun the nominal duration.
func (g *Generator) RunForDuration(ctx context.Context, urls []string, d time.Duration) []model.ProbeOutcome {
	var out []model.ProbeOutcome
	deadline := time.Now().Add(d)

	for time.Now().Before(deadline) {
		for _, u := range urls {
			out = append(out, g.Client.Probe(ctx, u, true))
			if !time.Now().Before(deadline) || ctx.Err() != nil {
				return out
			}
		}
	}
	return out
}
