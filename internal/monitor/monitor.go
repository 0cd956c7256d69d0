package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clearquote/internal/models"
)

// StatusFetcher retrieves the backend's configuration status.
type StatusFetcher interface {
	FetchConfigStatus(ctx context.Context) (models.ConfigStatus, error)
}

// Config fixes the monitor's timing at construction.
type Config struct {
	PollInterval   time.Duration
	MaxRetries     int
	BaseRetryDelay time.Duration
	FetchTimeout   time.Duration
}

// DefaultConfig returns the standard production timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   5 * time.Second,
		MaxRetries:     3,
		BaseRetryDelay: 2 * time.Second,
		FetchTimeout:   10 * time.Second,
	}
}

// Snapshot is the read-only view of the monitor's state handed to consumers.
type Snapshot struct {
	LastStatus     *models.ConfigStatus `json:"last_status,omitempty"`
	LastUpdateTime *time.Time           `json:"last_update_time,omitempty"`
	IsLoading      bool                 `json:"is_loading"`
	IsRefreshing   bool                 `json:"is_refreshing"`
	RetryCount     int                  `json:"retry_count"`
	LastError      string               `json:"last_error,omitempty"`
	PollingActive  bool                 `json:"polling_active"`
}

// UpdateFunc observes every applied state transition.
type UpdateFunc func(Snapshot)

// SampleFunc observes the outcome of every applied fetch attempt. Unlike
// UpdateFunc it does not fire for lifecycle transitions (start, stop,
// refresh-begin), only for completed fetches.
type SampleFunc func(models.HealthSample)

// Monitor maintains a best-effort view of backend configuration health. It
// polls on a fixed interval, retries transient failures with exponential
// backoff up to a bound, pauses while the UI is hidden, and supports an
// on-demand refresh that bypasses the poll schedule without disturbing it.
//
// All timer handles are owned by the monitor. A generation counter guards
// against late results: Stop and RefreshNow bump it, and any retry callback
// or in-flight fetch carrying a stale generation is discarded instead of
// applied.
type Monitor struct {
	cfg      Config
	fetcher  StatusFetcher
	logger   *slog.Logger
	onUpdate UpdateFunc
	onSample SampleFunc

	mu         sync.Mutex
	snap       Snapshot
	running    bool
	inFlight   bool
	gen        uint64
	pollTimer  *time.Timer
	retryTimer *time.Timer
}

// New creates a monitor. It does not start polling until Start is called.
func New(fetcher StatusFetcher, cfg Config, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = def.BaseRetryDelay
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = def.FetchTimeout
	}

	return &Monitor{
		cfg:     cfg,
		fetcher: fetcher,
		logger:  logger.With("component", "monitor"),
		snap:    Snapshot{IsLoading: true},
	}
}

// SetOnUpdate registers the transition observer. Call before Start.
func (m *Monitor) SetOnUpdate(fn UpdateFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// SetOnSample registers the fetch-outcome observer. Call before Start.
func (m *Monitor) SetOnSample(fn SampleFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSample = fn
}

// Start performs an immediate fetch and arms the repeating poll timer.
// Idempotent: a second Start clears any existing timers before re-arming, so
// duplicate schedules cannot accumulate.
func (m *Monitor) Start() {
	m.mu.Lock()
	m.stopTimersLocked()
	m.gen++
	gen := m.gen
	m.running = true
	m.inFlight = true
	m.snap.PollingActive = true
	m.armPollLocked()
	snap := m.cloneLocked()
	update := m.onUpdate
	m.mu.Unlock()

	if update != nil {
		update(snap)
	}
	go m.attempt(gen, false)
}

// Stop disarms the poll timer and cancels any pending retry. Results of
// requests already in flight are discarded when they land. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopTimersLocked()
	m.gen++
	m.running = false
	m.inFlight = false
	m.snap.PollingActive = false
	m.snap.IsRefreshing = false
	snap := m.cloneLocked()
	update := m.onUpdate
	m.mu.Unlock()

	if update != nil {
		update(snap)
	}
}

// RefreshNow runs a user-triggered fetch independent of the poll schedule.
// Any pending automatic retry is cancelled and the retry budget is reset, so
// the manual attempt (and, on failure, its own retry chain) takes over. The
// periodic timer is left untouched.
func (m *Monitor) RefreshNow() {
	m.mu.Lock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
	m.gen++
	gen := m.gen
	m.inFlight = true
	m.snap.RetryCount = 0
	m.snap.IsRefreshing = true
	snap := m.cloneLocked()
	update := m.onUpdate
	m.mu.Unlock()

	if update != nil {
		update(snap)
	}
	go m.attempt(gen, true)
}

// SetVisible pauses polling while the UI is hidden and resumes it, with an
// immediate fetch, when the UI returns to the foreground. The last known
// status is kept across a pause.
func (m *Monitor) SetVisible(visible bool) {
	if visible {
		m.Start()
		return
	}
	m.Stop()
}

// Snapshot returns a copy of the current state. It never mutates anything.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cloneLocked()
}

func (m *Monitor) armPollLocked() {
	m.pollTimer = time.AfterFunc(m.cfg.PollInterval, m.pollTick)
}

func (m *Monitor) stopTimersLocked() {
	if m.pollTimer != nil {
		m.pollTimer.Stop()
		m.pollTimer = nil
	}
	if m.retryTimer != nil {
		m.retryTimer.Stop()
		m.retryTimer = nil
	}
}

func (m *Monitor) pollTick() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.armPollLocked()
	// A pending retry chain or an unfinished attempt owns the schedule;
	// the tick only keeps the cadence.
	if m.retryTimer != nil || m.inFlight {
		m.mu.Unlock()
		return
	}
	m.inFlight = true
	gen := m.gen
	m.mu.Unlock()

	m.attempt(gen, false)
}

func (m *Monitor) retryFire(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.retryTimer = nil
	m.inFlight = true
	m.mu.Unlock()

	m.attempt(gen, false)
}

// attempt runs one fetch and folds the outcome into state. Both poll ticks,
// retries and manual refreshes funnel through here.
func (m *Monitor) attempt(gen uint64, manual bool) {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.FetchTimeout)
	started := time.Now()
	status, err := m.fetcher.FetchConfigStatus(ctx)
	latency := time.Since(started)
	cancel()

	m.mu.Lock()
	if gen != m.gen {
		// Stop or a newer refresh superseded this attempt.
		m.mu.Unlock()
		return
	}
	m.inFlight = false
	m.snap.IsLoading = false
	if manual {
		m.snap.IsRefreshing = false
	}

	if err == nil {
		now := time.Now().UTC()
		copied := cloneStatus(&status)
		m.snap.LastStatus = copied
		m.snap.LastUpdateTime = &now
		m.snap.LastError = ""
		m.snap.RetryCount = 0
	} else {
		m.snap.LastError = err.Error()
		if m.snap.RetryCount < m.cfg.MaxRetries {
			delay := m.cfg.BaseRetryDelay << uint(m.snap.RetryCount)
			m.snap.RetryCount++
			m.retryTimer = time.AfterFunc(delay, func() { m.retryFire(gen) })
			m.logger.Warn("status fetch failed, retrying",
				"error", err,
				"attempt", m.snap.RetryCount,
				"delay", delay)
		} else {
			// Budget exhausted: stale status must not keep rendering
			// as valid. Idle until the next poll tick or manual
			// refresh.
			m.snap.LastStatus = nil
			m.logger.Error("status fetch failed, retries exhausted",
				"error", err,
				"retries", m.snap.RetryCount)
		}
	}

	snap := m.cloneLocked()
	update := m.onUpdate
	sampleFn := m.onSample
	m.mu.Unlock()

	if update != nil {
		update(snap)
	}
	if sampleFn != nil {
		sample := models.HealthSample{
			CheckedAt: time.Now().UTC(),
			State:     DeriveHealth(snap).State,
			OK:        err == nil,
			LatencyMs: latency.Milliseconds(),
		}
		if err != nil {
			sample.Error = err.Error()
		}
		sampleFn(sample)
	}
}

func (m *Monitor) cloneLocked() Snapshot {
	snap := m.snap
	snap.LastStatus = cloneStatus(m.snap.LastStatus)
	if m.snap.LastUpdateTime != nil {
		t := *m.snap.LastUpdateTime
		snap.LastUpdateTime = &t
	}
	return snap
}

func cloneStatus(status *models.ConfigStatus) *models.ConfigStatus {
	if status == nil {
		return nil
	}
	copied := *status
	if status.Validation.Missing != nil {
		copied.Validation.Missing = append([]string(nil), status.Validation.Missing...)
	}
	return &copied
}
