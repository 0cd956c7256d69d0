package monitor

// Health states, from worst to best reading.
const (
	StateError        = "error"
	StateUnknown      = "unknown"
	StatePartial      = "partial"
	StateUnconfigured = "unconfigured"
	StateHealthy      = "healthy"
)

// Health is the dashboard-facing classification of a snapshot.
type Health struct {
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

// DeriveHealth classifies a snapshot. It is a pure function and must be
// recomputed per call: the fields it reads change independently, so a cached
// result can go stale between any two transitions.
func DeriveHealth(s Snapshot) Health {
	switch {
	case s.LastError != "":
		return Health{State: StateError, Detail: s.LastError}
	case s.LastStatus == nil:
		return Health{State: StateUnknown, Detail: "no status received yet"}
	case s.LastStatus.Validation.IsValid:
		return Health{State: StateHealthy, Detail: s.LastStatus.GeminiModel}
	case s.LastStatus.GeminiAPIKeySet != s.LastStatus.DBURLSet:
		if s.LastStatus.GeminiAPIKeySet {
			return Health{State: StatePartial, Detail: "database URL not configured"}
		}
		return Health{State: StatePartial, Detail: "Gemini API key not configured"}
	default:
		return Health{State: StateUnconfigured, Detail: "backend is not configured"}
	}
}
