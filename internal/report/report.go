// Package report renders the end-of-run text report and captures
// console log lines for its log section.
package report

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"fencebench/internal/model"
	"fencebench/internal/score"
)

// Collector tees formatted log output into memory so the report can
// embed the full console log verbatim. Safe for concurrent writes.
type Collector struct {
	mu    sync.Mutex
	lines []string
	buf   strings.Builder
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	for {
		s := c.buf.String()
		idx := strings.IndexByte(s, '\n')
		if idx < 0 {
			break
		}
		c.lines = append(c.lines, s[:idx])
		c.buf.Reset()
		c.buf.WriteString(s[idx+1:])
	}
	return len(p), nil
}

func (c *Collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	if rest := c.buf.String(); rest != "" {
		out = append(out, rest)
	}
	return out
}

// Params are the run settings echoed in the report header.
type Params struct {
	Duration    time.Duration
	Connections int
}

// Render produces the fixed-section plain-text report.
func Render(p Params, r model.Results, logLines []string) string {
	total, grade := score.Calculate(r)

	var b strings.Builder

	fmt.Fprintf(&b, "PocketFence Universal Filter Performance Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", time.Now().Format(time.RFC1123))
	fmt.Fprintf(&b, "Platform: %s %s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&b, "Test Duration: %.0f seconds\n", p.Duration.Seconds())
	fmt.Fprintf(&b, "Concurrent Connections: %d\n\n", p.Connections)

	b.WriteString("STARTUP PERFORMANCE:\n")
	if r.Has(model.KeyAvgStartupMs) {
		fmt.Fprintf(&b, "  Average Startup Time: %.2fms\n", r[model.KeyAvgStartupMs])
		fmt.Fprintf(&b, "  Minimum Startup Time: %.2fms\n", r[model.KeyMinStartupMs])
		fmt.Fprintf(&b, "  Maximum Startup Time: %.2fms\n", r[model.KeyMaxStartupMs])
	} else {
		b.WriteString("  Startup tests failed\n")
	}

	b.WriteString("\nMEMORY USAGE:\n")
	if r.Has(model.KeyAvgMemoryMB) {
		fmt.Fprintf(&b, "  Average Memory: %.2fMB\n", r[model.KeyAvgMemoryMB])
		fmt.Fprintf(&b, "  Minimum Memory: %.2fMB\n", r[model.KeyMinMemoryMB])
		fmt.Fprintf(&b, "  Maximum Memory: %.2fMB\n", r[model.KeyMaxMemoryMB])
	} else {
		b.WriteString("  Memory tests failed\n")
	}

	b.WriteString("\nFILTERING PERFORMANCE:\n")
	if r.Has(model.KeyRequestsPerSec) {
		fmt.Fprintf(&b, "  Requests/Second: %.2f\n", r[model.KeyRequestsPerSec])
		fmt.Fprintf(&b, "  Total Requests: %.0f\n", r[model.KeyTotalRequests])
		fmt.Fprintf(&b, "  Blocked Requests: %.0f (%.1f%%)\n", r[model.KeyBlockedCount], r[model.KeyBlockRate])
		if r.Has(model.KeyAvgResponseMs) {
			fmt.Fprintf(&b, "  Average Response Time: %.2fms\n", r[model.KeyAvgResponseMs])
			fmt.Fprintf(&b, "  Min Response Time: %.2fms\n", r[model.KeyMinResponseMs])
			fmt.Fprintf(&b, "  Max Response Time: %.2fms\n", r[model.KeyMaxResponseMs])
		}
	} else {
		b.WriteString("  Performance tests failed\n")
	}

	b.WriteString("\nBLOCKING ACCURACY:\n")
	if r.Has(model.KeyAccuracy) {
		fmt.Fprintf(&b, "  Overall Accuracy: %.1f%%\n", r[model.KeyAccuracy])
		fmt.Fprintf(&b, "  Correct Blocks: %.0f\n", r[model.KeyCorrectBlocks])
		fmt.Fprintf(&b, "  Correct Allows: %.0f\n", r[model.KeyCorrectAllows])
		fmt.Fprintf(&b, "  False Positives: %.0f\n", r[model.KeyFalsePositives])
		fmt.Fprintf(&b, "  False Negatives: %.0f\n", r[model.KeyFalseNegatives])
	} else {
		b.WriteString("  Accuracy tests failed\n")
	}

	b.WriteString("\nCONCURRENT LOAD:\n")
	if r.Has(model.KeyConcurrentRate) {
		fmt.Fprintf(&b, "  Connections Tested: %.0f\n", r[model.KeyConcurrentConns])
		fmt.Fprintf(&b, "  Success Rate: %.1f%%\n", r[model.KeyConcurrentRate])
		fmt.Fprintf(&b, "  Successful Requests: %.0f\n", r[model.KeySuccessfulReqs])
		fmt.Fprintf(&b, "  Failed Requests: %.0f\n", r[model.KeyFailedReqs])
		fmt.Fprintf(&b, "  Load Test Duration: %.2fs\n", r[model.KeyLoadDurationSec])
	} else {
		b.WriteString("  Load tests failed\n")
	}

	b.WriteString("\nPERFORMANCE GRADE:\n")
	fmt.Fprintf(&b, "  Overall Score: %d/100 - Grade: %s\n", total, grade)

	b.WriteString("\nTEST LOG:\n")
	for _, line := range logLines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	return b.String()
}

// Write persists the rendered report, replacing any previous file.
func Write(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// DefaultPath builds the timestamped default output filename.
func DefaultPath(now time.Time) string {
	return fmt.Sprintf("filter-performance-%s.txt", now.Format("2006-01-02_15-04-05"))
}
