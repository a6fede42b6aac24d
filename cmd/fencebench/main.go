package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"fencebench/internal/loadgen"
	"fencebench/internal/metrics"
	"fencebench/internal/model"
	"fencebench/internal/orchestrator"
	"fencebench/internal/probe"
	"fencebench/internal/report"
	"fencebench/internal/supervisor"
)

var cli struct {
	Duration    int    `help:"Test duration in seconds." default:"30"`
	Connections int    `help:"Concurrent connections for the load test." default:"50"`
	Output      string `help:"Report output path (default: timestamped filename)."`
	Dir         string `help:"Directory searched for the filter executable." default:"."`
}

func main() {
	kong.Parse(&cli, kong.Description("PocketFence Universal Filter performance test"))

	collector := report.NewCollector()
	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05.000"}
	captured := zerolog.ConsoleWriter{Out: collector, TimeFormat: "15:04:05.000", NoColor: true}
	log := zerolog.New(zerolog.MultiLevelWriter(console, captured)).With().Timestamp().Logger()

	output := cli.Output
	if output == "" {
		output = report.DefaultPath(time.Now())
	}

	// Pre-flight: without the filter binary no phase can run.
	log.Info().Msg("checking dependencies")
	execPath, err := supervisor.FindExecutable(cli.Dir)
	if err != nil {
		log.Error().Err(err).Msg("dependency check failed")
		os.Exit(1)
	}
	log.Info().Str("executable", execPath).Msg("filter executable located")

	sampler := metrics.Detect()
	if !sampler.Available() {
		log.Warn().Msg("memory sampling unavailable, memory metrics will be skipped")
	}

	runner, err := orchestrator.New(orchestrator.Config{
		Duration:    time.Duration(cli.Duration) * time.Second,
		Connections: cli.Connections,
		Output:      output,
	}, orchestrator.Deps{
		Proc:      supervisor.New(execPath),
		Probes:    probe.New(model.ProxyURL, model.ProbeTimeout),
		Load:      loadgen.New(probe.New(model.ProxyURL, model.ConcurrentProbeTimeout)),
		Sampler:   sampler,
		Log:       log,
		Collector: collector,
	})
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("test run failed")
		os.Exit(1)
	}

	log.Info().Msg("performance testing completed")
	summarize(log, runner)
}

func summarize(log zerolog.Logger, runner *orchestrator.Runner) {
	r := runner.Results()
	if r.Has(model.KeyAvgStartupMs) {
		log.Info().Msgf("startup: %.2fms", r[model.KeyAvgStartupMs])
	}
	if r.Has(model.KeyAvgMemoryMB) {
		log.Info().Msgf("memory: %.2fMB", r[model.KeyAvgMemoryMB])
	}
	if r.Has(model.KeyRequestsPerSec) {
		log.Info().Msgf("performance: %.2f req/s", r[model.KeyRequestsPerSec])
	}
	if r.Has(model.KeyAccuracy) {
		log.Info().Msgf("accuracy: %.1f%%", r[model.KeyAccuracy])
	}
}
