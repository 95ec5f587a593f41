package httpclient

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/WalletKit/bridge/internal/infrastructure/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Timeout = 5 * time.Second
	opts.RetryWaitMin = time.Millisecond
	opts.RetryWaitMax = 5 * time.Millisecond
	return opts
}

func TestDoReturnsAnyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo", string(body))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	}))
	defer srv.Close()

	c := New(testOptions())
	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		URL:    srv.URL + "/v1/jsonRPC",
		Header: http.Header{"X-Test": {"yes"}},
		Body:   []byte("payload"),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, "Not Found", resp.StatusText)
	assert.Equal(t, "missing", string(resp.Body))
	assert.Equal(t, "payload", resp.Header.Get("X-Echo"))
	assert.Equal(t, srv.URL+"/v1/jsonRPC", resp.URL)
}

func TestDoRetriesIdempotentOnly(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions()
	opts.BreakerFailures = 100
	c := New(opts)

	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, int32(1), hits.Load())

	hits.Store(0)
	_, err = c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, int32(opts.RetryMax+1), hits.Load())
}

func TestBreakerTripsPerHost(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer healthy.Close()

	opts := testOptions()
	opts.BreakerFailures = 2
	opts.BreakerTimeout = time.Minute
	c := New(opts)

	for i := 0; i < 2; i++ {
		_, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: failing.URL})
		require.NoError(t, err)
	}

	_, err := c.Do(context.Background(), Request{Method: http.MethodPost, URL: failing.URL})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	resp, err := c.Do(context.Background(), Request{URL: healthy.URL})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	failingHost := mustHost(t, failing.URL)
	assert.Equal(t, resilience.StateOpen, c.BreakerStates()[failingHost])
}

func TestDoCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	opts := testOptions()
	opts.BreakerFailures = 1
	c := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Do(ctx, Request{URL: srv.URL})
	require.Error(t, err)

	// Cancellation is not an upstream failure.
	assert.Equal(t, resilience.StateClosed, c.BreakerStates()[mustHost(t, srv.URL)])
}

func TestRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	opts := testOptions()
	opts.RequestsPerSecond = 0.001
	opts.Burst = 1
	c := New(opts)

	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Do(ctx, Request{URL: srv.URL})
	assert.ErrorContains(t, err, "rate limit")
}

func TestInvalidURL(t *testing.T) {
	c := New(testOptions())
	for _, raw := range []string{"", "ftp://example.com/file", "/relative", "http://"} {
		_, err := c.Do(context.Background(), Request{URL: raw})
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
	_, err := c.Stream(context.Background(), "file:///etc/passwd", nil)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "abc", r.Header.Get("Last-Event-ID"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		_, _ = w.Write([]byte("data: one\n\n"))
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Timeout = 50 * time.Millisecond
	c := New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	resp, err := c.Stream(ctx, srv.URL, http.Header{"Last-Event-ID": {"abc"}})
	require.NoError(t, err)
	defer resp.Body.Close()

	// Outlives the plain request timeout.
	time.Sleep(100 * time.Millisecond)

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "data: one\n", line)

	cancel()
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().HTTP
	cfg.UserAgent = ""
	opts := OptionsFromConfig(cfg)

	assert.Equal(t, cfg.Timeout.Std(), opts.Timeout)
	assert.Equal(t, cfg.RetryMax, opts.RetryMax)
	assert.Equal(t, "WalletKitBridge/1.0", opts.UserAgent)
}

func mustHost(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Host
}
