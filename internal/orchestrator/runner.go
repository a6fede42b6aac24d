// Package orchestrator sequences the five measurement phases and owns
// the aggregate result map.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fencebench/internal/loadgen"
	"fencebench/internal/metrics"
	"fencebench/internal/model"
	"fencebench/internal/probe"
	"fencebench/internal/report"
	"fencebench/internal/supervisor"
	"fencebench/internal/targets"
)

// Config is fixed at startup and never mutated afterwards.
type Config struct {
	Duration    time.Duration
	Connections int
	Output      string
}

func (c Config) validate() error {
	if c.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	if c.Connections < 1 {
		return errors.New("connections must be at least 1")
	}
	if c.Output == "" {
		return errors.New("output path must be set")
	}
	return nil
}

// ProcessManager is what a phase needs from the filter supervisor.
type ProcessManager interface {
	Start(ctx context.Context) (*supervisor.Handle, error)
	Stop(h *supervisor.Handle)
}

// Deps are the collaborators a Runner drives. Probes serves the
// sequential phases; Load carries the longer per-probe timeout used by
// the concurrency phase.
type Deps struct {
	Proc      ProcessManager
	Probes    *probe.Client
	Load      *loadgen.Generator
	Sampler   metrics.Sampler
	Log       zerolog.Logger
	Collector *report.Collector
}

// Runner walks Startup -> Memory -> Throughput -> Accuracy ->
// Concurrency -> Reporting. Phases degrade independently: a failed
// phase is logged and the next one still gets its own process cycle.
type Runner struct {
	cfg     Config
	proc    ProcessManager
	probes  *probe.Client
	seq     *loadgen.Generator
	load    *loadgen.Generator
	sampler metrics.Sampler
	log     zerolog.Logger
	lines   *report.Collector

	results model.Results

	// Shortened by tests; phase code never reads the model consts
	// directly for these.
	warmup time.Duration
	settle time.Duration
}

func New(cfg Config, d Deps) (*Runner, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:     cfg,
		proc:    d.Proc,
		probes:  d.Probes,
		seq:     loadgen.New(d.Probes),
		load:    d.Load,
		sampler: d.Sampler,
		log:     d.Log,
		lines:   d.Collector,
		results: model.Results{},
		warmup:  model.MemoryWarmup,
		settle:  model.StartupSettle,
	}, nil
}

// Results exposes the aggregate map, read-only by convention once Run
// has returned.
func (r *Runner) Results() model.Results {
	return r.results
}

// Run executes every phase in order. Only a reporting failure or an
// interrupt propagates; measurement phase errors are recorded and
// swallowed.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info().
		Float64("duration_s", r.cfg.Duration.Seconds()).
		Int("connections", r.cfg.Connections).
		Msg("starting filter performance tests")

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"startup", r.startupPhase},
		{"memory", r.memoryPhase},
		{"throughput", r.throughputPhase},
		{"accuracy", r.accuracyPhase},
		{"concurrency", r.concurrencyPhase},
	}

	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("interrupted before %s phase: %w", p.name, err)
		}
		if err := p.fn(ctx); err != nil {
			r.log.Error().Err(err).Str("phase", p.name).Msg("phase failed")
		}
	}

	return r.reportPhase()
}

// withProcess is the scoped start/use/stop region every measuring
// phase runs inside. Stop is guaranteed on all exit paths.
func (r *Runner) withProcess(ctx context.Context, fn func(h *supervisor.Handle) error) error {
	h, err := r.proc.Start(ctx)
	if err != nil {
		return err
	}
	defer r.proc.Stop(h)
	return fn(h)
}

func (r *Runner) startupPhase(ctx context.Context) error {
	r.log.Info().Msg("testing filter startup performance")

	var times []float64
	for i := 1; i <= model.StartupCycles; i++ {
		r.log.Info().Msgf("startup test %d/%d", i, model.StartupCycles)

		begin := time.Now()
		h, err := r.proc.Start(ctx)
		if err != nil {
			// Timed-out cycle is a skipped sample, not a zero.
			r.log.Warn().Err(err).Msg("startup cycle failed")
			continue
		}
		ms := float64(time.Since(begin)) / float64(time.Millisecond)
		r.proc.Stop(h)

		times = append(times, ms)
		r.log.Info().Msgf("startup time: %.2fms", ms)
		time.Sleep(r.settle)
	}

	if len(times) == 0 {
		return errors.New("no successful startup cycles")
	}

	r.results[model.KeyAvgStartupMs] = mean(times)
	r.results[model.KeyMinStartupMs] = minOf(times)
	r.results[model.KeyMaxStartupMs] = maxOf(times)
	r.log.Info().Msgf("average startup time: %.2fms", r.results[model.KeyAvgStartupMs])
	return nil
}

func (r *Runner) memoryPhase(ctx context.Context) error {
	r.log.Info().Msg("testing memory usage")

	return r.withProcess(ctx, func(h *supervisor.Handle) error {
		time.Sleep(r.warmup)

		if !r.sampler.Available() {
			r.log.Warn().Msg("memory sampling unavailable, skipping readings")
			return nil
		}

		var readings []float64
		for i := 1; i <= model.MemorySamples; i++ {
			mb, err := r.sampler.MemoryMB(h.PID)
			if err != nil {
				r.log.Warn().Err(err).Msg("process ended unexpectedly")
				break
			}
			readings = append(readings, mb)
			r.log.Info().Msgf("memory reading %d: %.2fMB", i, mb)
			time.Sleep(model.MemoryInterval)
		}

		if len(readings) == 0 {
			return nil
		}
		r.results[model.KeyAvgMemoryMB] = mean(readings)
		r.results[model.KeyMinMemoryMB] = minOf(readings)
		r.results[model.KeyMaxMemoryMB] = maxOf(readings)
		r.log.Info().Msgf("average memory: %.2fMB", r.results[model.KeyAvgMemoryMB])
		return nil
	})
}

func (r *Runner) throughputPhase(ctx context.Context) error {
	r.log.Info().Msg("testing filtering performance")

	return r.withProcess(ctx, func(_ *supervisor.Handle) error {
		time.Sleep(r.warmup)

		r.log.Info().Msgf("sending test requests for %.0f seconds", r.cfg.Duration.Seconds())

		begin := time.Now()
		outcomes := r.seq.RunForDuration(ctx, targets.Throughput(), r.cfg.Duration)
		actual := time.Since(begin)

		total := len(outcomes)
		blocked := 0
		var latencies []float64
		for _, o := range outcomes {
			if o.Class == model.Blocked {
				blocked++
			}
			if o.Class != model.Failed {
				latencies = append(latencies, float64(o.Elapsed)/float64(time.Millisecond))
			}
		}

		r.results[model.KeyRequestsPerSec] = float64(total) / actual.Seconds()
		r.results[model.KeyTotalRequests] = float64(total)
		r.results[model.KeyBlockedCount] = float64(blocked)
		if total > 0 {
			r.results[model.KeyBlockRate] = float64(blocked) / float64(total) * 100
		} else {
			r.results[model.KeyBlockRate] = 0
		}
		if len(latencies) > 0 {
			r.results[model.KeyAvgResponseMs] = mean(latencies)
			r.results[model.KeyMinResponseMs] = minOf(latencies)
			r.results[model.KeyMaxResponseMs] = maxOf(latencies)
		}

		r.log.Info().Msgf("requests/sec: %.2f", r.results[model.KeyRequestsPerSec])
		r.log.Info().Msgf("total requests: %d, blocked: %d (%.1f%%)",
			total, blocked, r.results[model.KeyBlockRate])
		return nil
	})
}

func (r *Runner) accuracyPhase(ctx context.Context) error {
	r.log.Info().Msg("testing blocking accuracy")

	return r.withProcess(ctx, func(_ *supervisor.Handle) error {
		time.Sleep(r.warmup)

		cases := targets.AccuracyCases()
		var correctBlocks, correctAllows, falsePositives, falseNegatives int

		for _, tc := range cases {
			out := r.probes.Probe(ctx, tc.URL, true)

			// A transport failure is not a block. It lands in the
			// not-blocked bucket on purpose.
			observedBlock := out.Class == model.Blocked

			switch {
			case tc.ExpectBlock && observedBlock:
				correctBlocks++
				r.log.Info().Msgf("%s: correctly blocked", tc.Label)
			case !tc.ExpectBlock && !observedBlock:
				correctAllows++
				r.log.Info().Msgf("%s: correctly allowed", tc.Label)
			case tc.ExpectBlock && !observedBlock:
				falseNegatives++
				r.log.Warn().Msgf("%s: should block but allowed", tc.Label)
			default:
				falsePositives++
				r.log.Warn().Msgf("%s: should allow but blocked", tc.Label)
			}
		}

		total := len(cases)
		correct := correctBlocks + correctAllows

		r.results[model.KeyAccuracy] = float64(correct) / float64(total) * 100
		r.results[model.KeyCorrectBlocks] = float64(correctBlocks)
		r.results[model.KeyCorrectAllows] = float64(correctAllows)
		r.results[model.KeyFalsePositives] = float64(falsePositives)
		r.results[model.KeyFalseNegatives] = float64(falseNegatives)

		r.log.Info().Msgf("accuracy: %.1f%% (%d/%d correct)", r.results[model.KeyAccuracy], correct, total)
		return nil
	})
}

func (r *Runner) concurrencyPhase(ctx context.Context) error {
	r.log.Info().Msg("testing concurrent load")

	return r.withProcess(ctx, func(_ *supervisor.Handle) error {
		time.Sleep(r.warmup)

		n := r.cfg.Connections
		r.log.Info().Msgf("starting %d concurrent connections", n)

		begin := time.Now()
		outcomes := r.load.RunConcurrent(ctx, targets.ConcurrencyTarget, n)
		elapsed := time.Since(begin)

		successful := 0
		for _, o := range outcomes {
			// A blocked response still proves the filter answered
			// under load, so it counts as success here.
			if o.Class != model.Failed {
				successful++
			}
		}
		failed := len(outcomes) - successful

		r.results[model.KeyConcurrentConns] = float64(n)
		r.results[model.KeyLoadDurationSec] = elapsed.Seconds()
		r.results[model.KeySuccessfulReqs] = float64(successful)
		r.results[model.KeyFailedReqs] = float64(failed)
		r.results[model.KeyConcurrentRate] = float64(successful) / float64(n) * 100

		r.log.Info().Msgf("successful: %d/%d (%.1f%%), duration: %.2fs",
			successful, n, r.results[model.KeyConcurrentRate], elapsed.Seconds())
		return nil
	})
}

func (r *Runner) reportPhase() error {
	r.log.Info().Msg("generating performance report")

	text := report.Render(report.Params{
		Duration:    r.cfg.Duration,
		Connections: r.cfg.Connections,
	}, r.results, r.lines.Lines())

	if err := report.Write(r.cfg.Output, text); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	r.log.Info().Msgf("report saved to %s", r.cfg.Output)
	return nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}
