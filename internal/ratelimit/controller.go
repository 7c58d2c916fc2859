// Package ratelimit implements the per-host adaptive rate controller:
// a golang.org/x/time/rate token bucket for target RPS, a sliding window
// for periodic caps, and a resizable concurrency gate whose size is
// retuned from Little's Law.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config parameterizes a Controller for one upstream host.
type Config struct {
	Host               string
	TargetRPS          float64
	WindowSeconds      int
	WindowLimit        int
	InitialConcurrency int     // default 5
	WarmupConcurrency  int     // default 3
	WarmupRequests     int     // default 20
	EWMAAlpha          float64 // default 0.2
}

func (c Config) withDefaults() Config {
	if c.InitialConcurrency == 0 {
		c.InitialConcurrency = 5
	}
	if c.WarmupConcurrency == 0 {
		c.WarmupConcurrency = 3
	}
	if c.WarmupRequests == 0 {
		c.WarmupRequests = 20
	}
	if c.EWMAAlpha == 0 {
		c.EWMAAlpha = 0.2
	}
	return c
}

// tokenBurst is the rate.Limiter's burst capacity: a few requests may fire
// back-to-back before the token bucket throttles to TargetRPS.
const tokenBurst = 3

const minRPS = 0.01

// Controller rate-limits and adaptively sizes concurrency for one host.
// All mutable state lives behind mu; RTT and error bookkeeping happens in
// recordSuccess/recordError/ReportHTTPError, never inside the HTTP call
// itself, so a caller never holds the lock across a suspension point.
type Controller struct {
	cfg Config

	mu                sync.Mutex
	limiter           *rate.Limiter // token-bucket layer; backoff halves its limit on a 429
	sentTimes         []time.Time
	successTimes      []time.Time
	errorTimes        []time.Time
	rttSamples        []time.Duration
	ewmaRTT           time.Duration
	baseRTT           time.Duration
	warmupCompleted   bool
	totalRequests     int64
	http429Count      int64
	http403Count      int64
	networkErrorCount int64
	lastBackoffTime   time.Time
	currentConc       int
	lastConcIncrease  time.Time

	gate       *ticketGate
	warmupGate *ticketGate
}

// New creates a Controller for the given host configuration.
func New(cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Limit(cfg.TargetRPS), tokenBurst),
		ewmaRTT:     1500 * time.Millisecond,
		currentConc: cfg.InitialConcurrency,
		gate:        newTicketGate(cfg.InitialConcurrency),
		warmupGate:  newTicketGate(cfg.WarmupConcurrency),
	}
}

// Permit is returned by Acquire; the caller must call exactly one of
// Success or Error once the guarded request completes.
type Permit struct {
	c     *Controller
	gate  *ticketGate
	start time.Time
	done  bool
}

// Acquire blocks until the token bucket, sliding window, and concurrency
// gate all admit a new request, honoring ctx cancellation throughout.
func (c *Controller) Acquire(ctx context.Context) (*Permit, error) {
	gate := c.currentGate()
	if err := gate.acquire(ctx); err != nil {
		return nil, err
	}
	if err := c.waitForSlot(ctx); err != nil {
		gate.release()
		return nil, err
	}
	return &Permit{c: c, gate: gate, start: time.Now()}, nil
}

func (c *Controller) currentGate() *ticketGate {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.warmupCompleted {
		return c.gate
	}
	return c.warmupGate
}

// waitForSlot enforces the token bucket and sliding window, sleeping in
// small increments outside the lock until both admit the request.
func (c *Controller) waitForSlot(ctx context.Context) error {
	for {
		wait, admitted := c.tryAdmit()
		if admitted {
			return nil
		}
		if wait <= 0 {
			wait = 10 * time.Millisecond
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAdmit checks the sliding window first (cheap, no reservation side
// effects), then reserves a token from the rate.Limiter. A reservation
// that would have to wait is cancelled rather than consumed, so a denied
// attempt never drains the bucket for the next one.
func (c *Controller) tryAdmit() (wait time.Duration, admitted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-time.Duration(c.cfg.WindowSeconds) * time.Second)
	c.sentTimes = pruneBefore(c.sentTimes, cutoff)

	if len(c.sentTimes) >= c.cfg.WindowLimit {
		windowWait := c.sentTimes[0].Add(time.Duration(c.cfg.WindowSeconds) * time.Second).Sub(now)
		if windowWait < 0 {
			windowWait = 0
		}
		return windowWait, false
	}

	reservation := c.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return time.Second, false
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.Cancel()
		return delay, false
	}

	c.totalRequests++
	c.sentTimes = append(c.sentTimes, now)
	return 0, true
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(times) && times[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return times
	}
	return append(times[:0:0], times[i:]...)
}

// Success releases the permit and records RTT for EWMA/warmup/percentile
// bookkeeping, then re-evaluates concurrency.
func (p *Permit) Success() {
	if p.done {
		return
	}
	p.done = true
	p.gate.release()
	p.c.recordSuccess(time.Since(p.start))
}

// Error releases the permit and records a failed attempt without touching
// RTT statistics.
func (p *Permit) Error() {
	if p.done {
		return
	}
	p.done = true
	p.gate.release()
	p.c.recordError()
}

func (c *Controller) recordSuccess(rtt time.Duration) {
	c.mu.Lock()
	now := time.Now()
	c.successTimes = append(c.successTimes, now)
	c.rttSamples = append(c.rttSamples, rtt)

	alpha := c.cfg.EWMAAlpha
	c.ewmaRTT = time.Duration(alpha*float64(rtt) + (1-alpha)*float64(c.ewmaRTT))

	if !c.warmupCompleted && len(c.rttSamples) >= c.cfg.WarmupRequests {
		sorted := append([]time.Duration(nil), c.rttSamples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		median := sorted[len(sorted)/2]
		c.baseRTT = clampDuration(median, 500*time.Millisecond, 3*time.Second)
		c.warmupCompleted = true
		c.gate.Resize(c.currentConc)
	}

	if len(c.rttSamples) > 100 {
		c.rttSamples = c.rttSamples[1:]
	}
	c.mu.Unlock()

	c.evaluateConcurrency()
}

func (c *Controller) recordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorTimes = append(c.errorTimes, time.Now())
	c.networkErrorCount++
}

// ReportHTTPError reports a 429 or 403 response. 429 halves concurrency and
// the token bucket's rate (via rate.Limiter.SetLimit, mirroring the
// teacher's own SetRPS-on-backoff pattern), then sleeps the caller's
// goroutine for Retry-After (or jittered exponential backoff) before
// returning; 403 is recorded but never adjusts concurrency or rate.
func (c *Controller) ReportHTTPError(ctx context.Context, statusCode int, retryAfter time.Duration) {
	var sleepFor time.Duration
	var is429 bool

	c.mu.Lock()
	now := time.Now()
	switch statusCode {
	case 429:
		is429 = true
		c.http429Count++
		c.currentConc = maxInt(1, c.currentConc/2)
		c.lastBackoffTime = now
		newLimit := rate.Limit(math.Max(minRPS, float64(c.limiter.Limit())/2))
		c.limiter.SetLimit(newLimit)
		c.gate.Resize(c.currentConc)
		if retryAfter > 0 {
			sleepFor = retryAfter
		} else {
			exp := minInt(int(c.http429Count)-1, 3)
			base := time.Duration(math.Min(60, 5*math.Pow(2, float64(exp)))) * time.Second
			jitter := time.Duration(rand.Float64() * float64(base) * 0.1)
			sleepFor = base + jitter
		}
	case 403:
		c.http403Count++
	}
	c.mu.Unlock()

	if is429 && sleepFor > 0 {
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

// evaluateConcurrency applies the Little's Law adjustment. It is invoked
// once per successful request but is itself a cheap O(window) scan.
func (c *Controller) evaluateConcurrency() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.warmupCompleted || c.baseRTT == 0 {
		return
	}

	now := time.Now()
	cutoff := now.Add(-time.Duration(c.cfg.WindowSeconds) * time.Second)
	c.sentTimes = pruneBefore(c.sentTimes, cutoff)
	windowUsage := float64(len(c.sentTimes)) / float64(c.cfg.WindowLimit)

	var p95RTT time.Duration
	if len(c.rttSamples) >= 20 {
		sorted := append([]time.Duration(nil), c.rttSamples...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		p95RTT = sorted[int(float64(len(sorted))*0.95)]
	} else {
		p95RTT = c.ewmaRTT
	}

	var safetyMargin float64
	switch {
	case windowUsage <= 0.7 && p95RTT <= time.Duration(float64(c.baseRTT)*1.2):
		safetyMargin = 0
	case windowUsage > 0.9 || p95RTT > time.Duration(float64(c.baseRTT)*1.5):
		safetyMargin = 1
	default:
		safetyMargin = 0.5
	}

	recommended := int(math.Ceil(c.cfg.TargetRPS*c.ewmaRTT.Seconds()) + safetyMargin)
	recommended = clampInt(recommended, 1, 10)

	twoMinAgo := now.Add(-2 * time.Minute)
	fiveMinAgo := now.Add(-5 * time.Minute)
	succ2 := countSince(c.successTimes, twoMinAgo)
	err2 := countSince(c.errorTimes, twoMinAgo)
	succ5 := countSince(c.successTimes, fiveMinAgo)
	err5 := countSince(c.errorTimes, fiveMinAgo)

	canIncrease := now.Sub(c.lastConcIncrease) >= 30*time.Second
	recent2min429 := 0
	if now.Sub(c.lastBackoffTime) < 2*time.Minute {
		recent2min429 = int(c.http429Count)
	}

	errRate5 := 0.0
	if succ5+err5 > 0 {
		errRate5 = float64(err5) / float64(succ5+err5)
	}

	increase1 := canIncrease && recent2min429 == 0 && succ2 > 0 && err2 == 0 &&
		windowUsage <= 0.8 && p95RTT <= time.Duration(float64(c.baseRTT)*1.1)
	increase2 := canIncrease && succ5 > 0 && windowUsage <= 0.85 && errRate5 < 0.005
	increase3 := canIncrease && c.currentConc < recommended-1

	decrease1 := windowUsage >= 0.95 && p95RTT >= time.Duration(float64(c.baseRTT)*1.3)
	decrease2 := succ5 > 0 && errRate5 >= 0.01

	switch {
	case increase1 || increase2 || increase3:
		c.currentConc = minInt(10, c.currentConc+1)
		c.lastConcIncrease = now
		c.gate.Resize(c.currentConc)
	case decrease1 || decrease2:
		c.currentConc = maxInt(1, c.currentConc-1)
		c.gate.Resize(c.currentConc)
	}
}

func countSince(times []time.Time, since time.Time) int {
	n := 0
	for _, t := range times {
		if !t.Before(since) {
			n++
		}
	}
	return n
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Stats is a point-in-time snapshot for reporting and /metrics export.
type Stats struct {
	Host            string        `json:"host"`
	TotalRequests   int64         `json:"total_requests"`
	Success2Min     int           `json:"success_2min"`
	Success5Min     int           `json:"success_5min"`
	Errors2Min      int           `json:"errors_2min"`
	Errors5Min      int           `json:"errors_5min"`
	HTTP429Count    int64         `json:"http_429_count"`
	HTTP403Count    int64         `json:"http_403_count"`
	NetworkErrors   int64         `json:"network_errors"`
	CurrentConc     int           `json:"current_concurrency"`
	WindowUsage     float64       `json:"window_usage"`
	AvgRPS5Min      float64       `json:"avg_rps_5min"`
	EWMARTT         time.Duration `json:"ewma_rtt"`
	BaseRTT         time.Duration `json:"base_rtt"`
	WarmupCompleted bool          `json:"warmup_completed"`
}

// IsThrottled reports whether the window is close to saturated.
func (s Stats) IsThrottled() bool { return s.WindowUsage >= 0.9 }

func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	twoMinAgo := now.Add(-2 * time.Minute)
	fiveMinAgo := now.Add(-5 * time.Minute)
	succ5 := countSince(c.successTimes, fiveMinAgo)

	windowUsage := 0.0
	if c.cfg.WindowLimit > 0 {
		windowStart := now.Add(-time.Duration(c.cfg.WindowSeconds) * time.Second)
		windowUsage = float64(countSince(c.sentTimes, windowStart)) / float64(c.cfg.WindowLimit)
	}

	avgRPS := 0.0
	if succ5 > 0 {
		avgRPS = float64(succ5) / 300.0
	}

	return Stats{
		Host:            c.cfg.Host,
		TotalRequests:   c.totalRequests,
		Success2Min:     countSince(c.successTimes, twoMinAgo),
		Success5Min:     succ5,
		Errors2Min:      countSince(c.errorTimes, twoMinAgo),
		Errors5Min:      countSince(c.errorTimes, fiveMinAgo),
		HTTP429Count:    c.http429Count,
		HTTP403Count:    c.http403Count,
		NetworkErrors:   c.networkErrorCount,
		CurrentConc:     c.currentConc,
		WindowUsage:     windowUsage,
		AvgRPS5Min:      avgRPS,
		EWMARTT:         c.ewmaRTT,
		BaseRTT:         c.baseRTT,
		WarmupCompleted: c.warmupCompleted,
	}
}

func (c *Controller) String() string {
	return fmt.Sprintf("ratelimit.Controller{host=%s conc=%d}", c.cfg.Host, c.currentConc)
}
