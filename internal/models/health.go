package models

import "time"

// HealthSample records one applied connectivity-check outcome.
type HealthSample struct {
	CheckedAt time.Time `json:"checked_at"`
	State     string    `json:"state"`
	OK        bool      `json:"ok"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
}
