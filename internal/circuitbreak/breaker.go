// Package circuitbreak wraps sony/gobreaker per upstream host so a
// sustained run of transport failures trips independently of the rate
// controller's own adaptive concurrency.
package circuitbreak

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Config configures one host's breaker.
type Config struct {
	MaxRequests         uint32        // trial requests allowed in half-open
	Interval            time.Duration // closed-state counter reset interval
	Timeout             time.Duration // open -> half-open timeout
	ConsecutiveFailures uint32        // trips after this many in a row
}

func (c Config) withDefaults() Config {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	return c
}

// Breaker wraps a single gobreaker.CircuitBreaker for one host.
type Breaker struct {
	host string
	cb   *gobreaker.CircuitBreaker
}

func New(host string, cfg Config) *Breaker {
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        host,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("host", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	}
	return &Breaker{host: host, cb: gobreaker.NewCircuitBreaker(settings)}
}

// ErrOpen is returned by gobreaker when the breaker is open;
// callers can match it with errors.Is(err, gobreaker.ErrOpenState).
var ErrOpen = gobreaker.ErrOpenState

// Call executes fn through the breaker. fn's own error is returned
// unwrapped, so callers can still inspect provider-specific error types.
func (b *Breaker) Call(_ context.Context, fn func() error) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Stats is a point-in-time snapshot for reporting.
type Stats struct {
	Host                string         `json:"host"`
	State               string         `json:"state"`
	Requests            uint32         `json:"requests"`
	TotalSuccesses      uint32         `json:"total_successes"`
	TotalFailures       uint32         `json:"total_failures"`
	ConsecutiveFailures uint32         `json:"consecutive_failures"`
	Counts              gobreaker.Counts `json:"-"`
}

func (s Stats) IsHealthy() bool { return s.State != gobreaker.StateOpen.String() }

func (b *Breaker) Stats() Stats {
	counts := b.cb.Counts()
	return Stats{
		Host:                b.host,
		State:               b.cb.State().String(),
		Requests:            counts.Requests,
		TotalSuccesses:      counts.TotalSuccesses,
		TotalFailures:       counts.TotalFailures,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Counts:              counts,
	}
}

// Manager owns one Breaker per host.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

func (m *Manager) AddHost(host string, cfg Config) *Breaker {
	b := New(host, cfg)
	m.mu.Lock()
	m.breakers[host] = b
	m.mu.Unlock()
	return b
}

func (m *Manager) Get(host string) (*Breaker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[host]
	return b, ok
}

func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Stats, len(m.breakers))
	for host, b := range m.breakers {
		out[host] = b.Stats()
	}
	return out
}

// UnhealthyHosts returns hosts whose breaker is currently open.
func (m *Manager) UnhealthyHosts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for host, b := range m.breakers {
		if b.State() == gobreaker.StateOpen {
			out = append(out, host)
		}
	}
	return out
}
