// Package budget tracks an optional daily request cap per upstream
// provider (storefront, price-history). Neither upstream publishes a hard
// quota, so this is an operator-configurable safety rail: a provider with
// no configured limit is never throttled.
package budget

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrBudgetExhausted = errors.New("daily budget exhausted")
	ErrBudgetWarning   = errors.New("budget warning threshold exceeded")
)

// ExhaustedError reports a provider's daily cap has been reached.
type ExhaustedError struct {
	Provider string
	Used     int64
	Limit    int64
	ResetsAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: daily budget exhausted (%d/%d requests, resets at %s)",
		e.Provider, e.Used, e.Limit, e.ResetsAt.Format("15:04 UTC"))
}

// WarningError reports a provider has crossed its warn threshold but has
// not yet exhausted its budget.
type WarningError struct {
	Provider  string
	Used      int64
	Limit     int64
	Threshold float64
}

func (e *WarningError) Error() string {
	return fmt.Sprintf("%s: budget warning, %.1f%% used (%d/%d, threshold %.0f%%)",
		e.Provider, float64(e.Used)/float64(e.Limit)*100, e.Used, e.Limit, e.Threshold*100)
}

// Tracker enforces one provider's daily request cap. Every Tracker knows
// its own provider name, so an ExhaustedError/WarningError it returns is
// always fully attributable without the caller threading the name through.
type Tracker struct {
	provider      string
	limit         int64
	used          int64 // atomic
	resetHour     int
	warnThreshold float64
	lastReset     time.Time
	mu            sync.RWMutex
}

// NewTracker builds a daily budget tracker for one named provider. A limit
// of 0 means unlimited: Allow/Consume always succeed and Stats reports
// IsExhausted=false regardless of usage.
func NewTracker(provider string, limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	now := time.Now().UTC()
	return &Tracker{
		provider:      provider,
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		lastReset:     lastResetBefore(now, resetHour),
	}
}

func lastResetBefore(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

func (t *Tracker) nextReset() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReset.Add(24 * time.Hour)
}

func (t *Tracker) rolloverIfDue() {
	now := time.Now().UTC()
	if !now.After(t.nextReset()) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if now.After(t.lastReset.Add(24 * time.Hour)) {
		atomic.StoreInt64(&t.used, 0)
		t.lastReset = lastResetBefore(now, t.resetHour)
	}
}

// unlimited reports whether this tracker has no configured cap.
func (t *Tracker) unlimited() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limit <= 0
}

// Allow reports whether a request may proceed without consuming budget.
// It returns ExhaustedError at the hard cap and WarningError past the
// warn threshold; both are informational past the warning case — only
// ExhaustedError should block a caller.
func (t *Tracker) Allow() error {
	if t.unlimited() {
		return nil
	}
	t.rolloverIfDue()

	used := atomic.LoadInt64(&t.used)
	limit := t.Limit()
	if used >= limit {
		return &ExhaustedError{Provider: t.provider, Used: used, Limit: limit, ResetsAt: t.nextReset()}
	}
	if rate := float64(used) / float64(limit); rate >= t.WarnThreshold() {
		return &WarningError{Provider: t.provider, Used: used, Limit: limit, Threshold: t.WarnThreshold()}
	}
	return nil
}

// Consume records one request against the budget, rejecting it (without
// incrementing) once the cap would be exceeded.
func (t *Tracker) Consume() error {
	if t.unlimited() {
		return nil
	}
	t.rolloverIfDue()

	limit := t.Limit()
	used := atomic.AddInt64(&t.used, 1)
	if used > limit {
		atomic.AddInt64(&t.used, -1)
		return &ExhaustedError{Provider: t.provider, Used: used - 1, Limit: limit, ResetsAt: t.nextReset()}
	}
	if rate := float64(used) / float64(limit); rate >= t.WarnThreshold() {
		return &WarningError{Provider: t.provider, Used: used, Limit: limit, Threshold: t.WarnThreshold()}
	}
	return nil
}

func (t *Tracker) Limit() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.limit
}

func (t *Tracker) WarnThreshold() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.warnThreshold
}

// SetLimit updates the daily cap, taking effect on the next Allow/Consume.
func (t *Tracker) SetLimit(limit int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limit = limit
}

// SetWarnThreshold updates the warning ratio; out-of-range values are
// ignored rather than clamped, since a silent clamp would mask a config
// mistake.
func (t *Tracker) SetWarnThreshold(threshold float64) {
	if threshold <= 0 || threshold > 1 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnThreshold = threshold
}

// Reset manually zeroes usage, independent of the scheduled rollover.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	atomic.StoreInt64(&t.used, 0)
	t.lastReset = time.Now().UTC()
}

// Stats is a point-in-time snapshot for logging and /metrics export.
type Stats struct {
	Provider        string    `json:"provider"`
	Limit           int64     `json:"limit"`
	Used            int64     `json:"used"`
	Remaining       int64     `json:"remaining"`
	UtilizationRate float64   `json:"utilization_rate"`
	WarnThreshold   float64   `json:"warn_threshold"`
	ResetHour       int       `json:"reset_hour"`
	LastReset       time.Time `json:"last_reset"`
	NextReset       time.Time `json:"next_reset"`
	IsWarning       bool      `json:"is_warning"`
	IsExhausted     bool      `json:"is_exhausted"`
}

// TimeToReset is the duration until the next scheduled rollover.
func (s *Stats) TimeToReset() time.Duration { return time.Until(s.NextReset) }

func (t *Tracker) Stats() Stats {
	t.rolloverIfDue()
	t.mu.RLock()
	defer t.mu.RUnlock()

	used := atomic.LoadInt64(&t.used)
	var rate float64
	if t.limit > 0 {
		rate = float64(used) / float64(t.limit)
	}

	return Stats{
		Provider:        t.provider,
		Limit:           t.limit,
		Used:            used,
		Remaining:       t.limit - used,
		UtilizationRate: rate,
		WarnThreshold:   t.warnThreshold,
		ResetHour:       t.resetHour,
		LastReset:       t.lastReset,
		NextReset:       t.lastReset.Add(24 * time.Hour),
		IsWarning:       t.limit > 0 && rate >= t.warnThreshold,
		IsExhausted:     t.limit > 0 && used >= t.limit,
	}
}

// Alert is one provider crossing a warning or exhaustion threshold,
// shaped for structured logging rather than pre-rendered prose.
type Alert struct {
	Provider  string
	Exhausted bool
	Stats     Stats
}

// Manager owns one Tracker per provider name.
type Manager struct {
	trackers map[string]*Tracker
	mu       sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{trackers: make(map[string]*Tracker)}
}

// AddProvider registers a tracker for the given provider name.
func (m *Manager) AddProvider(name string, limit int64, resetHour int, warnThreshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[name] = NewTracker(name, limit, resetHour, warnThreshold)
}

func (m *Manager) GetTracker(provider string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.trackers[provider]
	return tr, ok
}

// Allow delegates to the named provider's tracker; an unregistered
// provider has no budget tracking and is always allowed.
func (m *Manager) Allow(provider string) error {
	tr, ok := m.GetTracker(provider)
	if !ok {
		return nil
	}
	return tr.Allow()
}

func (m *Manager) Consume(provider string) error {
	tr, ok := m.GetTracker(provider)
	if !ok {
		return nil
	}
	return tr.Consume()
}

func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.trackers))
	for name, tr := range m.trackers {
		out[name] = tr.Stats()
	}
	return out
}

// Alerts reports every tracker currently in a warning or exhausted state,
// for a caller to log structurally (zerolog fields) rather than string-
// format into a human sentence ahead of time.
func (m *Manager) Alerts() []Alert {
	var alerts []Alert
	for provider, stats := range m.Stats() {
		if stats.IsExhausted {
			alerts = append(alerts, Alert{Provider: provider, Exhausted: true, Stats: stats})
		} else if stats.IsWarning {
			alerts = append(alerts, Alert{Provider: provider, Exhausted: false, Stats: stats})
		}
	}
	return alerts
}

// Reset zeroes every tracked provider's usage.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tr := range m.trackers {
		tr.Reset()
	}
}
