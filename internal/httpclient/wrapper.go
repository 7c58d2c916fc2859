// Package httpclient composes the rate controller, circuit breaker, and
// budget tracker into a single http.RoundTripper, mirroring the teacher's
// middleware-stack wrapper pattern.
package httpclient

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vibecoder-lab/gamevault/internal/budget"
	"github.com/vibecoder-lab/gamevault/internal/circuitbreak"
	"github.com/vibecoder-lab/gamevault/internal/ratelimit"
)

// transientBackoff is the retry schedule for a transient network failure:
// up to 3 retries after the first attempt (4 calls to the inner transport
// in all), waiting 2s/4s/8s before each retry.
var transientBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Config wires one host's middleware stack.
type Config struct {
	Host      string
	UserAgent string

	Controller *ratelimit.Controller // required
	Breaker    *circuitbreak.Breaker // optional
	Budget     *budget.Tracker       // optional
}

// Wrapper implements http.RoundTripper around an inner transport.
type Wrapper struct {
	cfg       Config
	transport http.RoundTripper
}

func NewWrapper(cfg Config, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "gamevault-updater/1.0"
	}
	return &Wrapper{cfg: cfg, transport: transport}
}

// RoundTrip implements http.RoundTripper with the full middleware stack:
// budget check, rate-controller permit, circuit breaker, transport.
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", w.cfg.UserAgent)
	}

	if w.cfg.Budget != nil {
		if err := w.cfg.Budget.Allow(); err != nil {
			if _, exhausted := err.(*budget.ExhaustedError); exhausted {
				return nil, &ProviderError{Host: w.cfg.Host, Type: "budget", Err: err}
			}
		}
	}

	permit, err := w.cfg.Controller.Acquire(req.Context())
	if err != nil {
		return nil, &ProviderError{Host: w.cfg.Host, Type: "rate_limit", Err: err}
	}

	var resp *http.Response
	execute := func() error {
		if w.cfg.Budget != nil {
			if err := w.cfg.Budget.Consume(); err != nil {
				if _, exhausted := err.(*budget.ExhaustedError); exhausted {
					return &ProviderError{Host: w.cfg.Host, Type: "budget", Err: err}
				}
			}
		}

		r, err := w.roundTripWithRetry(req)
		if err != nil {
			return &ProviderError{Host: w.cfg.Host, Type: "transport", Err: err}
		}
		resp = r

		switch {
		case r.StatusCode == http.StatusTooManyRequests:
			w.cfg.Controller.ReportHTTPError(req.Context(), 429, retryAfter(r.Header))
			return &ProviderError{Host: w.cfg.Host, Type: "rate_limit", StatusCode: 429, Err: fmt.Errorf("HTTP 429")}
		case r.StatusCode == http.StatusForbidden:
			w.cfg.Controller.ReportHTTPError(req.Context(), 403, 0)
			return &ProviderError{Host: w.cfg.Host, Type: "forbidden", StatusCode: 403, Err: fmt.Errorf("HTTP 403")}
		case r.StatusCode >= 500:
			return &ProviderError{Host: w.cfg.Host, Type: "http_error", StatusCode: r.StatusCode, Err: fmt.Errorf("HTTP %d", r.StatusCode)}
		}
		return nil
	}

	if w.cfg.Breaker != nil {
		err = w.cfg.Breaker.Call(req.Context(), execute)
	} else {
		err = execute()
	}

	if err != nil {
		permit.Error()
		return nil, err
	}
	permit.Success()
	return resp, nil
}

// roundTripWithRetry calls the inner transport, retrying a transient
// network failure (timeout, connection reset, DNS hiccup) on the
// transientBackoff schedule before surfacing it to the caller. A non-
// network error (e.g. a canceled context) is never retried.
func (w *Wrapper) roundTripWithRetry(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, err := w.transport.RoundTrip(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt >= len(transientBackoff) || !isTransientNetError(err) {
			return nil, lastErr
		}
		body, rewindErr := rewoundBody(req)
		if rewindErr != nil {
			return nil, lastErr
		}
		if body != nil {
			req.Body = body
		}

		timer := time.NewTimer(transientBackoff[attempt])
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// rewoundBody returns a fresh copy of req's body for a retried attempt, via
// GetBody if the request carries one. A nil return with a nil error means
// the request had no body (or none that needs rewinding).
func rewoundBody(req *http.Request) (io.ReadCloser, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return nil, nil
	}
	return req.GetBody()
}

func isTransientNetError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// ProviderError carries the host and failure category for an upstream call.
type ProviderError struct {
	Host       string
	Type       string // "rate_limit", "budget", "forbidden", "http_error", "transport"
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s error (HTTP %d): %v", e.Host, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Host, e.Type, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) IsRateLimited() bool     { return e.Type == "rate_limit" }
func (e *ProviderError) IsBudgetExhausted() bool { return e.Type == "budget" }
func (e *ProviderError) IsForbidden() bool       { return e.Type == "forbidden" }

// NewClient builds an *http.Client with the middleware stack installed.
func NewClient(cfg Config, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewWrapper(cfg, http.DefaultTransport),
		Timeout:   timeout,
	}
}
