// Package score grades a finished run.
package score

import (
	"fencebench/internal/model"
)

// Weighted thresholds. A missing metric simply contributes no points.
const (
	startupThresholdMs  = 2000
	memoryThresholdMB   = 50
	throughputThreshold = 10 // req/s
	accuracyThreshold   = 80 // percent
	concurrentThreshold = 90 // percent success

	startupPoints    = 15
	memoryPoints     = 20
	throughputPoints = 20
	accuracyPoints   = 25
	concurrentPoints = 20
)

// Calculate maps aggregate results to a 0-100 score and letter grade.
// Pure: same input, same output.
func Calculate(r model.Results) (int, string) {
	score := 0

	if v, ok := r[model.KeyAvgStartupMs]; ok && v < startupThresholdMs {
		score += startupPoints
	}
	if v, ok := r[model.KeyAvgMemoryMB]; ok && v < memoryThresholdMB {
		score += memoryPoints
	}
	if v, ok := r[model.KeyRequestsPerSec]; ok && v > throughputThreshold {
		score += throughputPoints
	}
	if v, ok := r[model.KeyAccuracy]; ok && v > accuracyThreshold {
		score += accuracyPoints
	}
	if v, ok := r[model.KeyConcurrentRate]; ok && v > concurrentThreshold {
		score += concurrentPoints
	}

	return score, grade(score)
}

func grade(score int) string {
	switch {
	case score >= 90:
		return "A+"
	case score >= 80:
		return "A"
	case score >= 70:
		return "B"
	case score >= 60:
		return "C"
	case score >= 50:
		return "D"
	default:
		return "F"
	}
}
