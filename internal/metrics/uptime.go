package metrics

import (
	"math"
	"time"

	"clearquote/internal/models"
)

// UptimeSummary summarises backend connectivity over a window of samples.
type UptimeSummary struct {
	UptimePercent float64        `json:"uptime_percent"`
	TotalChecks   int            `json:"total_checks"`
	Passing       int            `json:"passing"`
	Failing       int            `json:"failing"`
	ByState       map[string]int `json:"by_state,omitempty"`
	LastState     string         `json:"last_state,omitempty"`
	LastChecked   string         `json:"last_checked,omitempty"`
}

// ComputeUptime aggregates uptime statistics from health samples.
func ComputeUptime(samples []models.HealthSample) UptimeSummary {
	summary := UptimeSummary{}
	if len(samples) == 0 {
		return summary
	}

	byState := make(map[string]int)
	var lastTime time.Time
	for _, sample := range samples {
		if sample.OK {
			summary.Passing++
		} else {
			summary.Failing++
		}
		if sample.State != "" {
			byState[sample.State]++
		}
		if sample.CheckedAt.After(lastTime) {
			lastTime = sample.CheckedAt
			summary.LastState = sample.State
		}
	}

	summary.TotalChecks = summary.Passing + summary.Failing
	summary.ByState = byState
	if summary.TotalChecks > 0 {
		percent := float64(summary.Passing) / float64(summary.TotalChecks) * 100
		summary.UptimePercent = math.Round(percent*100) / 100
	}
	if !lastTime.IsZero() {
		summary.LastChecked = lastTime.UTC().Format(time.RFC3339)
	}
	return summary
}
