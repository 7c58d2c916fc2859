package httpclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoder-lab/gamevault/internal/ratelimit"
)

func TestWrapper_SuccessfulRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	controller := ratelimit.New(ratelimit.Config{Host: "test", TargetRPS: 100, WindowSeconds: 60, WindowLimit: 1000})
	client := NewClient(Config{Host: "test", Controller: controller}, 0)

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, controller.Stats().TotalRequests)
}

func TestWrapper_429ReportsToController(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	controller := ratelimit.New(ratelimit.Config{Host: "test", TargetRPS: 100, WindowSeconds: 60, WindowLimit: 1000, InitialConcurrency: 4})
	client := NewClient(Config{Host: "test", Controller: controller}, 0)

	_, err := client.Get(srv.URL)
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.True(t, provErr.IsRateLimited())
	assert.Equal(t, 2, controller.Stats().CurrentConc)
}

// timeoutErr satisfies net.Error so isTransientNetError classifies it as
// retryable, without depending on a real dial/read timeout.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

type flakyTransport struct {
	failures int
	calls    int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: timeoutErr{}}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Header: make(http.Header)}, nil
}

func TestWrapper_RetriesTransientNetworkFailure(t *testing.T) {
	orig := transientBackoff
	transientBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { transientBackoff = orig }()

	controller := ratelimit.New(ratelimit.Config{Host: "test", TargetRPS: 100, WindowSeconds: 60, WindowLimit: 1000})
	transport := &flakyTransport{failures: 2}
	client := &http.Client{Transport: NewWrapper(Config{Host: "test", Controller: controller}, transport)}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, 3, transport.calls)
}

func TestWrapper_GivesUpAfterThreeRetries(t *testing.T) {
	orig := transientBackoff
	transientBackoff = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { transientBackoff = orig }()

	controller := ratelimit.New(ratelimit.Config{Host: "test", TargetRPS: 100, WindowSeconds: 60, WindowLimit: 1000})
	transport := &flakyTransport{failures: 10}
	client := &http.Client{Transport: NewWrapper(Config{Host: "test", Controller: controller}, transport)}

	req, err := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	require.NoError(t, err)
	_, err = client.Do(req)
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "transport", provErr.Type)
	assert.Equal(t, 4, transport.calls, "3 retries after the first attempt")
}
