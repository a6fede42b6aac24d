package orchestrator

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fencebench/internal/loadgen"
	"fencebench/internal/metrics"
	"fencebench/internal/model"
	"fencebench/internal/probe"
	"fencebench/internal/report"
	"fencebench/internal/supervisor"
)

// stubProc stands in for the filter supervisor. failFirst makes the
// first n Start calls fail the way a never-ready filter would.
type stubProc struct {
	starts    int
	stops     int
	failFirst int
}

func (p *stubProc) Start(ctx context.Context) (*supervisor.Handle, error) {
	p.starts++
	if p.starts <= p.failFirst {
		return nil, supervisor.ErrStartupTimeout
	}
	return &supervisor.Handle{PID: 4242, StartedAt: time.Now()}, nil
}

func (p *stubProc) Stop(h *supervisor.Handle) {
	if h != nil {
		p.stops++
	}
}

// newStubFilter serves as the filter's forward proxy: requests whose
// URL carries a flagged keyword get the block page, everything else
// passes.
func newStubFilter(t *testing.T, blockKeywords ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, kw := range blockKeywords {
			if strings.Contains(r.RequestURI, kw) {
				fmt.Fprint(w, "<html>PocketFence - Content Blocked</html>")
				return
			}
		}
		fmt.Fprint(w, "<html>some ordinary page</html>")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRunner(t *testing.T, proc ProcessManager, proxyURL string) *Runner {
	t.Helper()
	client := probe.New(proxyURL, 2*time.Second)
	r, err := New(Config{
		Duration:    500 * time.Millisecond,
		Connections: 10,
		Output:      filepath.Join(t.TempDir(), "report.txt"),
	}, Deps{
		Proc:      proc,
		Probes:    client,
		Load:      loadgen.New(client),
		Sampler:   metrics.Unavailable{},
		Log:       zerolog.Nop(),
		Collector: report.NewCollector(),
	})
	require.NoError(t, err)

	// No need to wait out production warm-up pauses against a stub.
	r.warmup = 0
	r.settle = 0
	return r
}

func TestConfigValidation(t *testing.T) {
	deps := Deps{Collector: report.NewCollector(), Log: zerolog.Nop()}

	_, err := New(Config{Duration: 0, Connections: 1, Output: "x"}, deps)
	assert.Error(t, err)

	_, err = New(Config{Duration: time.Second, Connections: 0, Output: "x"}, deps)
	assert.Error(t, err)

	_, err = New(Config{Duration: time.Second, Connections: 1, Output: ""}, deps)
	assert.Error(t, err)
}

func TestRunStopsEveryStartedProcess(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.Run(context.Background()))

	// 5 startup cycles plus one process per measuring phase.
	assert.Equal(t, 9, proc.starts)
	assert.Equal(t, proc.starts, proc.stops, "every start must be paired with a stop")
}

func TestRunRecordsStartupStats(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.Run(context.Background()))
	res := r.Results()

	require.True(t, res.Has(model.KeyAvgStartupMs))
	assert.LessOrEqual(t, res[model.KeyMinStartupMs], res[model.KeyAvgStartupMs])
	assert.LessOrEqual(t, res[model.KeyAvgStartupMs], res[model.KeyMaxStartupMs])
}

func TestAccuracyAgainstKeywordBlockingFilter(t *testing.T) {
	// Stub blocks anything mentioning violence or adult content; the
	// fixture has four such cases and four clean ones.
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t, "violence", "adult").URL)

	require.NoError(t, r.accuracyPhase(context.Background()))
	res := r.Results()

	assert.Equal(t, 100.0, res[model.KeyAccuracy])
	assert.Equal(t, 4.0, res[model.KeyCorrectBlocks])
	assert.Equal(t, 4.0, res[model.KeyCorrectAllows])
	assert.Equal(t, 0.0, res[model.KeyFalsePositives])
	assert.Equal(t, 0.0, res[model.KeyFalseNegatives])
}

func TestAccuracyBucketsCoverEveryFixture(t *testing.T) {
	// An over-blocking filter still classifies every case into
	// exactly one bucket.
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t, "http").URL)

	require.NoError(t, r.accuracyPhase(context.Background()))
	res := r.Results()

	sum := res[model.KeyCorrectBlocks] + res[model.KeyCorrectAllows] +
		res[model.KeyFalsePositives] + res[model.KeyFalseNegatives]
	assert.Equal(t, 8.0, sum)
}

func TestAccuracyTreatsProbeFailureAsNotBlocked(t *testing.T) {
	srv := newStubFilter(t)
	addr := srv.URL
	srv.Close()

	proc := &stubProc{}
	r := newTestRunner(t, proc, addr)
	r.probes = probe.New(addr, 100*time.Millisecond)

	require.NoError(t, r.accuracyPhase(context.Background()))
	res := r.Results()

	// Every probe failed: expected-allow cases land in the correct
	// bucket, expected-block cases become false negatives.
	assert.Equal(t, 0.0, res[model.KeyCorrectBlocks])
	assert.Equal(t, 4.0, res[model.KeyCorrectAllows])
	assert.Equal(t, 0.0, res[model.KeyFalsePositives])
	assert.Equal(t, 4.0, res[model.KeyFalseNegatives])
}

func TestConcurrencyPhaseAllSucceed(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.concurrencyPhase(context.Background()))
	res := r.Results()

	assert.Equal(t, 100.0, res[model.KeyConcurrentRate])
	assert.Equal(t, 10.0, res[model.KeyConcurrentConns])
	assert.Equal(t, 10.0, res[model.KeySuccessfulReqs])
	assert.Equal(t, 0.0, res[model.KeyFailedReqs])
	assert.Greater(t, res[model.KeyLoadDurationSec], 0.0)
}

func TestThroughputPhaseCountsBlockedShare(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t, "violence", "adult", "malware", "gambling").URL)

	require.NoError(t, r.throughputPhase(context.Background()))
	res := r.Results()

	assert.Greater(t, res[model.KeyTotalRequests], 0.0)
	assert.Greater(t, res[model.KeyBlockedCount], 0.0)
	assert.Greater(t, res[model.KeyBlockRate], 0.0)
	assert.Less(t, res[model.KeyBlockRate], 100.0)
	assert.True(t, res.Has(model.KeyAvgResponseMs))
}

func TestThroughputPhaseTinyDurationYieldsNoRequests(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)
	r.cfg.Duration = time.Nanosecond

	require.NoError(t, r.throughputPhase(context.Background()))
	res := r.Results()

	assert.Equal(t, 0.0, res[model.KeyTotalRequests])
	assert.Equal(t, 0.0, res[model.KeyBlockRate])
}

func TestNeverReadyFilterStillReachesLaterPhases(t *testing.T) {
	// All five startup cycles time out; the orchestrator records no
	// startup samples but still gives the next phases their own
	// process cycles.
	proc := &stubProc{failFirst: model.StartupCycles}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.Run(context.Background()))
	res := r.Results()

	assert.False(t, res.Has(model.KeyAvgStartupMs))
	assert.Greater(t, proc.starts, model.StartupCycles, "later phases must still attempt starts")
	assert.True(t, res.Has(model.KeyConcurrentRate))
}

func TestMemoryPhaseDegradesWithoutSampler(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.memoryPhase(context.Background()))

	assert.False(t, r.Results().Has(model.KeyAvgMemoryMB))
	assert.Equal(t, 1, proc.starts)
	assert.Equal(t, 1, proc.stops)
}

func TestPhaseFailureDoesNotAbortRun(t *testing.T) {
	proc := &stubProc{failFirst: 6} // startup cycles + the memory phase start
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	require.NoError(t, r.Run(context.Background()))

	assert.True(t, r.Results().Has(model.KeyRequestsPerSec))
	assert.True(t, r.Results().Has(model.KeyAccuracy))
}

func TestInterruptAbortsBetweenPhases(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, proc.starts, proc.stops)
}

func TestRunWritesReportFile(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t, "violence", "adult").URL)

	require.NoError(t, r.Run(context.Background()))

	data, err := os.ReadFile(r.cfg.Output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "PERFORMANCE GRADE:")
	assert.Contains(t, string(data), "BLOCKING ACCURACY:")
}

func TestReportPhaseFailurePropagates(t *testing.T) {
	proc := &stubProc{}
	r := newTestRunner(t, proc, newStubFilter(t).URL)
	r.cfg.Output = filepath.Join(t.TempDir(), "missing", "deep", "report.txt")

	err := r.Run(context.Background())
	require.Error(t, err)
}
