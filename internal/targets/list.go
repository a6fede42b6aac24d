package targets

import (
	"fencebench/internal/model"
)

// Throughput is the URL rotation used by the filtering-performance phase.
// A mix of hosts the filter should pass and hosts it should intercept,
// so the measured block rate is nonzero on a working filter.
func Throughput() []string {
	return []string{
		"http://example.com",
		"http://educational.site.com",
		"http://badsite-violence.com",
		"http://adult-content.com",
		"http://malware.site.com",
		"http://safe-learning.edu",
		"http://gambling-casino.com",
		"http://social-media.com",
	}
}

// AccuracyCases is the fixture for the blocking-accuracy phase.
// Half the cases must be blocked, half allowed.
func AccuracyCases() []model.TestCase {
	return []model.TestCase{
		{URL: "http://education.com", ExpectBlock: false, Label: "Educational site"},
		{URL: "http://violence-fighting.com", ExpectBlock: true, Label: "Violence content"},
		{URL: "http://adult-explicit.com", ExpectBlock: true, Label: "Adult content"},
		{URL: "http://violence-gaming.com", ExpectBlock: true, Label: "Violent games"},
		{URL: "http://school-learning.edu", ExpectBlock: false, Label: "School site"},
		{URL: "http://adult-casino.com", ExpectBlock: true, Label: "Adult gambling"},
		{URL: "http://safe-tutorial.com", ExpectBlock: false, Label: "Tutorial site"},
		{URL: "http://news-daily.com", ExpectBlock: false, Label: "News site"},
	}
}

// ConcurrencyTarget is the single URL hammered by the concurrent-load phase.
const ConcurrencyTarget = "http://example.com"
