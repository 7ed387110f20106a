package heuristics

import (
	"time"

	"github.com/tencentyun-labs/cognigate/internal/types"
)

// DetectTrends implements the Trend & Anomaly Detector of §4.6.4: a pure
// aggregation over two windows of query records — recent (the last h hours)
// and historical (the h hours prior to that) — that the Analytics Recorder
// (C7) is responsible for loading via its duckdb-backed aggregate reads.
func DetectTrends(recent, historical []types.QueryRecord, windowHours int) types.TrendReport {
	report := types.TrendReport{WindowHours: windowHours}

	peakHour := make(map[string]map[int]int)
	for _, r := range recent {
		dept := r.DepartmentID
		if dept == "" {
			dept = r.InferredDepartment
		}
		if peakHour[dept] == nil {
			peakHour[dept] = make(map[int]int)
		}
		peakHour[dept][r.CreatedAt.Hour()]++
	}
	report.PeakHourByDept = make(map[string]int, len(peakHour))
	for dept, hours := range peakHour {
		best, bestCount := 0, -1
		for h, c := range hours {
			if c > bestCount {
				best, bestCount = h, c
			}
		}
		report.PeakHourByDept[dept] = best
	}

	recentCat := countByKeyword(recent)
	historicalCat := countByKeyword(historical)
	historicalHours := float64(windowHours)
	if historicalHours <= 0 {
		historicalHours = 1
	}
	for kw, recentCount := range recentCat {
		histCount := historicalCat[kw]
		recentRate := float64(recentCount) / historicalHours
		histRate := float64(histCount) / historicalHours
		if histRate > 0 && recentRate >= 1.5*histRate {
			report.EmergingTopics = append(report.EmergingTopics, kw)
		}
	}

	recentRepeatRate := repeatRate(recent)
	histRepeatRate := repeatRate(historical)
	if histRepeatRate > 0 && recentRepeatRate >= 2*histRepeatRate {
		report.Anomalies = append(report.Anomalies, "repeat_question_rate_spike")
	}

	return report
}

func countByKeyword(records []types.QueryRecord) map[string]int {
	counts := make(map[string]int)
	for _, r := range records {
		for _, kw := range r.Keywords {
			counts[kw]++
		}
	}
	return counts
}

func repeatRate(records []types.QueryRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	repeats := 0
	for _, r := range records {
		if r.IsRepeat {
			repeats++
		}
	}
	return float64(repeats) / float64(len(records))
}

// windowBounds returns the start of the recent window [now-h, now) and of
// the historical window [now-2h, now-h) given now. Nothing in the module
// calls it; the composition root's trend reader computes the same bounds
// inline.
func windowBounds(now time.Time, hours int) (recentStart, historicalStart time.Time) {
	d := time.Duration(hours) * time.Hour
	return now.Add(-d), now.Add(-2 * d)
}
