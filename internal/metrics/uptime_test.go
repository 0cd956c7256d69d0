package metrics

import (
	"testing"
	"time"

	"clearquote/internal/models"
)

func TestComputeUptimeEmpty(t *testing.T) {
	summary := ComputeUptime(nil)
	if summary.TotalChecks != 0 || summary.UptimePercent != 0 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestComputeUptime(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	samples := []models.HealthSample{
		{CheckedAt: base, OK: true, State: "healthy"},
		{CheckedAt: base.Add(time.Minute), OK: true, State: "healthy"},
		{CheckedAt: base.Add(2 * time.Minute), OK: false, State: "error"},
		{CheckedAt: base.Add(3 * time.Minute), OK: true, State: "partial"},
	}

	summary := ComputeUptime(samples)
	if summary.TotalChecks != 4 || summary.Passing != 3 || summary.Failing != 1 {
		t.Errorf("counts = %+v", summary)
	}
	if summary.UptimePercent != 75 {
		t.Errorf("UptimePercent = %v, want 75", summary.UptimePercent)
	}
	if summary.LastState != "partial" {
		t.Errorf("LastState = %q, want partial", summary.LastState)
	}
	if summary.ByState["healthy"] != 2 || summary.ByState["error"] != 1 || summary.ByState["partial"] != 1 {
		t.Errorf("ByState = %v", summary.ByState)
	}
	if summary.LastChecked != base.Add(3*time.Minute).Format(time.RFC3339) {
		t.Errorf("LastChecked = %q", summary.LastChecked)
	}
}

func TestComputeUptimeRounding(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	samples := []models.HealthSample{
		{CheckedAt: base, OK: true, State: "healthy"},
		{CheckedAt: base.Add(time.Minute), OK: true, State: "healthy"},
		{CheckedAt: base.Add(2 * time.Minute), OK: false, State: "error"},
	}

	summary := ComputeUptime(samples)
	if summary.UptimePercent != 66.67 {
		t.Errorf("UptimePercent = %v, want 66.67", summary.UptimePercent)
	}
}
