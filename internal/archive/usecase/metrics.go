package usecase

import (
	"fmt"
	"math"
	"sort"
	"time"

	"duckmail-archive/internal/archive/domain"
)

const (
	failureRateAlertThreshold = 0.1
	p95LatencyAlertMs         = 5000.0
)

// Metrics aggregates run outcomes over the trailing window (24h default) and
// raises alerts when the failure rate or tail latency crosses its threshold.
func (u *syncUsecase) Metrics(windowHours int) (SyncMetrics, error) {
	if windowHours < 1 {
		windowHours = 24
	}
	since := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	runs, err := u.syncRepo.ListRunsSince(since)
	if err != nil {
		return SyncMetrics{}, err
	}
	metrics := buildSyncMetrics(runs)
	metrics.WindowHours = windowHours
	return metrics, nil
}

func buildSyncMetrics(runs []domain.SyncRun) SyncMetrics {
	metrics := SyncMetrics{Alerts: []string{}}

	var latencies []float64
	for _, run := range runs {
		switch run.Status {
		case domain.RunStatusSuccess, domain.RunStatusFailed, domain.RunStatusCompleted:
			metrics.TotalRuns++
		default:
			continue
		}
		if run.Status == domain.RunStatusFailed {
			metrics.FailedRuns++
		}
		if run.StartedAt != nil && run.FinishedAt != nil {
			latencies = append(latencies, float64(run.FinishedAt.Sub(*run.StartedAt).Milliseconds()))
		}
	}

	if metrics.TotalRuns > 0 {
		metrics.FailureRate = float64(metrics.FailedRuns) / float64(metrics.TotalRuns)
	}
	if len(latencies) > 0 {
		var sum float64
		for _, v := range latencies {
			sum += v
		}
		metrics.AvgLatencyMs = sum / float64(len(latencies))
		metrics.P95LatencyMs = percentile(latencies, 0.95)
	}

	if metrics.TotalRuns > 0 && metrics.FailureRate > failureRateAlertThreshold {
		metrics.Alerts = append(metrics.Alerts,
			fmt.Sprintf("failure rate %.1f%% exceeds %.0f%%", metrics.FailureRate*100, failureRateAlertThreshold*100))
	}
	if metrics.P95LatencyMs > p95LatencyAlertMs {
		metrics.Alerts = append(metrics.Alerts,
			fmt.Sprintf("p95 latency %.0fms exceeds %.0fms", metrics.P95LatencyMs, p95LatencyAlertMs))
	}
	return metrics
}

// percentile uses the ceil-rank method over a sorted copy.
func percentile(values []float64, p float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}
