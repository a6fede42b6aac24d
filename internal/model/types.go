package model

import (
	"time"
)

const (
	// ProxyAddr is where the filter exposes its forward-proxy interface.
	ProxyAddr = "127.0.0.1:8888"
	ProxyURL  = "http://" + ProxyAddr

	ReadyPollInterval = 100 * time.Millisecond
	ReadyWaitBudget   = 10 * time.Second
	StopGracePeriod   = 5 * time.Second

	ProbeTimeout           = 5 * time.Second
	ConcurrentProbeTimeout = 10 * time.Second

	StartupCycles  = 5
	StartupSettle  = 1 * time.Second
	MemoryWarmup   = 3 * time.Second
	MemorySamples  = 10
	MemoryInterval = 1 * time.Second
)

// Markers identifying a filter block page. Both must co-occur in the
// response body; keep them in sync with the filter's block template.
const (
	ProductMarker = "PocketFence"
	BlockedMarker = "Content Blocked"
)

// Classification is the observable outcome of one probe.
type Classification int

const (
	Allowed Classification = iota
	Blocked
	Failed
)

func (c Classification) String() string {
	switch c {
	case Allowed:
		return "allowed"
	case Blocked:
		return "blocked"
	default:
		return "failed"
	}
}

// ProbeOutcome is produced once per request and never retained past
// aggregation.
type ProbeOutcome struct {
	Elapsed time.Duration
	Class   Classification
	Err     error
}

// TestCase is one accuracy fixture entry.
type TestCase struct {
	URL         string
	ExpectBlock bool
	Label       string
}

// Results holds every metric produced across phases, keyed by metric
// name. Only the orchestrator goroutine writes to it.
type Results map[string]float64

func (r Results) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// Metric keys. Score and report lookups both go through these.
const (
	KeyAvgStartupMs = "avg_startup_time"
	KeyMinStartupMs = "min_startup_time"
	KeyMaxStartupMs = "max_startup_time"

	KeyAvgMemoryMB = "avg_memory_mb"
	KeyMinMemoryMB = "min_memory_mb"
	KeyMaxMemoryMB = "max_memory_mb"

	KeyRequestsPerSec = "requests_per_second"
	KeyTotalRequests  = "total_requests"
	KeyBlockedCount   = "blocked_requests"
	KeyBlockRate      = "block_rate"
	KeyAvgResponseMs  = "avg_response_time"
	KeyMinResponseMs  = "min_response_time"
	KeyMaxResponseMs  = "max_response_time"

	KeyAccuracy       = "filter_accuracy"
	KeyCorrectBlocks  = "correct_blocks"
	KeyCorrectAllows  = "correct_allows"
	KeyFalsePositives = "false_positives"
	KeyFalseNegatives = "false_negatives"

	KeyConcurrentConns = "concurrent_connections"
	KeyLoadDurationSec = "load_test_duration"
	KeySuccessfulReqs  = "successful_requests"
	KeyFailedReqs      = "failed_requests"
	KeyConcurrentRate  = "concurrent_success_rate"
)
