// Package metrics snapshots rate-controller and budget-tracker stats into
// Prometheus gauges and writes them out in the text exposition format at
// the end of a run. There is no long-running server here (the updater is a
// batch CLI, not a service), so a one-shot text dump replaces what would
// otherwise be a scraped /metrics endpoint.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/vibecoder-lab/gamevault/internal/budget"
	"github.com/vibecoder-lab/gamevault/internal/ratelimit"
)

// Snapshot holds one registry's worth of gauges for a single run.
type Snapshot struct {
	registry *prometheus.Registry
}

// NewSnapshot builds a fresh, empty registry for one run's stats.
func NewSnapshot() *Snapshot {
	return &Snapshot{registry: prometheus.NewRegistry()}
}

// RecordController exports one host's rate-controller stats.
func (s *Snapshot) RecordController(stats ratelimit.Stats) {
	labels := prometheus.Labels{"host": stats.Host}

	s.gauge("gamevault_ratecontroller_concurrency", "Current permitted concurrency for this host.", labels, float64(stats.CurrentConc))
	s.gauge("gamevault_ratecontroller_window_usage", "Fraction of the sliding window limit in use.", labels, stats.WindowUsage)
	s.gauge("gamevault_ratecontroller_avg_rps", "Observed average requests per second over the last 5 minutes.", labels, stats.AvgRPS5Min)
	s.gauge("gamevault_ratecontroller_total_requests", "Total requests issued to this host this run.", labels, float64(stats.TotalRequests))
	s.gauge("gamevault_ratecontroller_http_429_total", "HTTP 429 responses observed this run.", labels, float64(stats.HTTP429Count))
	s.gauge("gamevault_ratecontroller_http_403_total", "HTTP 403 responses observed this run.", labels, float64(stats.HTTP403Count))
	s.gauge("gamevault_ratecontroller_ewma_rtt_ms", "EWMA round-trip time in milliseconds.", labels, float64(stats.EWMARTT.Milliseconds()))
}

// RecordBudget exports one provider's daily budget usage.
func (s *Snapshot) RecordBudget(provider string, stats budget.Stats) {
	labels := prometheus.Labels{"provider": provider}

	s.gauge("gamevault_budget_used", "Requests consumed against the daily budget.", labels, float64(stats.Used))
	s.gauge("gamevault_budget_limit", "Configured daily budget limit (0 means unlimited).", labels, float64(stats.Limit))
	s.gauge("gamevault_budget_utilization_rate", "Fraction of the daily budget consumed.", labels, stats.UtilizationRate)
}

func (s *Snapshot) gauge(name, help string, labels prometheus.Labels, value float64) {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, keys)
	s.registry.MustRegister(g)
	g.With(labels).Set(value)
}

// WriteFile dumps the registry in Prometheus text exposition format.
func (s *Snapshot) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("metrics: mkdir %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("metrics: create %s: %w", path, err)
	}
	defer f.Close()

	families, err := s.registry.Gather()
	if err != nil {
		return fmt.Errorf("metrics: gather: %w", err)
	}
	encoder := expfmt.NewEncoder(f, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode: %w", err)
		}
	}
	return nil
}
