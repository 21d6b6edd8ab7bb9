// Package main provides helper functions for the benchmark CLI
package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
)

// formatRate formats a rate (items per second)
func formatRate(count int, duration time.Duration) string {
	if duration.Seconds() == 0 {
		return "N/A"
	}
	rate := float64(count) / duration.Seconds()
	return fmt.Sprintf("%.2f/s", rate)
}

// percentageString calculates and formats a percentage
func percentageString(part, total int) string {
	if total == 0 {
		return "0.00%"
	}
	return fmt.Sprintf("%.2f%%", float64(part)/float64(total)*100)
}

// reasonEmoji returns an emoji for a claim outcome
func reasonEmoji(reason domain.ReasonCode) string {
	switch reason {
	case domain.ReasonClaimed, domain.ReasonRefreshed:
		return "✅"
	case domain.ReasonLocked, domain.ReasonConflict, domain.ReasonOutOfState:
		return "🟡"
	case domain.ReasonTrustRejected, domain.ReasonOutOfRange:
		return "⛔"
	case reasonTransportError:
		return "⚪"
	default:
		return "❌"
	}
}

// percentile returns the p-th percentile (0..100) of sorted latencies
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p / 100)
	return sorted[idx]
}

// sortedReasons returns the reasons by descending count, then by name
func sortedReasons(counts map[domain.ReasonCode]int) []domain.ReasonCode {
	reasons := make([]domain.ReasonCode, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	return reasons
}
