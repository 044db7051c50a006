package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// flakyRoundTripper возвращает транспортную ошибку первые failures раз.
type flakyRoundTripper struct {
	mu       sync.Mutex
	failures int
	calls    int
	next     http.RoundTripper
}

func (f *flakyRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failures < 0 || f.calls <= f.failures
	f.mu.Unlock()

	if fail {
		return nil, errors.New("dial tcp: connection refused")
	}
	return f.next.RoundTrip(r)
}

func (f *flakyRoundTripper) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSleeps подменяет ожидание и запоминает задержки.
func recordSleeps(tr *Transport) *[]time.Duration {
	var delays []time.Duration
	tr.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return &delays
}

func newTestTransport(t *testing.T, baseURL string, rt http.RoundTripper, policy RetryPolicy, metrics *Metrics) *Transport {
	t.Helper()

	tr, err := NewTransport(TransportConfig{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Transport: rt},
		Retry:      policy,
		RequestID:  "req-1",
		Logger:     discardLogger(),
		Metrics:    metrics,
	})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	return tr
}

func TestTransport_RetriesUntilSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("5"))
	}))
	defer server.Close()

	const failures = 3
	rt := &flakyRoundTripper{failures: failures, next: http.DefaultTransport}
	metrics := NewMetrics(nil)
	tr := newTestTransport(t, server.URL, rt, RetryPolicy{}, metrics)
	delays := recordSleeps(tr)

	resp, err := tr.Send(context.Background(), http.MethodGet, "/api/jobCount", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body != "5" {
		t.Errorf("unexpected response: %+v", resp)
	}

	if rt.Calls() != failures+1 {
		t.Errorf("expected %d attempts, got %d", failures+1, rt.Calls())
	}
	if len(*delays) != failures {
		t.Fatalf("expected %d waits, got %d", failures, len(*delays))
	}
	for i, d := range *delays {
		if d != 15*time.Second {
			t.Errorf("wait %d: expected fixed 15s, got %v", i, d)
		}
	}

	if got := testutil.ToFloat64(metrics.retries.WithLabelValues("/api/jobCount")); got != failures {
		t.Errorf("expected %d retries in metrics, got %v", failures, got)
	}
}

func TestTransport_DoesNotRetryHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	rt := &flakyRoundTripper{next: http.DefaultTransport}
	tr := newTestTransport(t, server.URL, rt, RetryPolicy{}, nil)
	delays := recordSleeps(tr)

	resp, err := tr.Send(context.Background(), http.MethodPost, "/api/newJob", nil, map[string]string{"token": "t"})
	if err != nil {
		t.Fatalf("HTTP errors must not be transport errors: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError || resp.Body != "boom" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if rt.Calls() != 1 || len(*delays) != 0 {
		t.Errorf("expected single attempt, got %d calls and %d waits", rt.Calls(), len(*delays))
	}
}

func TestTransport_MaxAttempts(t *testing.T) {
	rt := &flakyRoundTripper{failures: -1}
	tr := newTestTransport(t, "http://tracker.invalid", rt, RetryPolicy{MaxAttempts: 3}, nil)
	delays := recordSleeps(tr)

	_, err := tr.Send(context.Background(), http.MethodGet, "/api/new", nil, nil)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if rt.Calls() != 3 {
		t.Errorf("expected 3 attempts, got %d", rt.Calls())
	}
	if len(*delays) != 2 {
		t.Errorf("expected 2 waits, got %d", len(*delays))
	}
}

func TestTransport_ContextCanceled(t *testing.T) {
	rt := &flakyRoundTripper{failures: -1}
	tr := newTestTransport(t, "http://tracker.invalid", rt, RetryPolicy{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Send(ctx, http.MethodGet, "/api/new", nil, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTransport_WaitHonoursContext(t *testing.T) {
	rt := &flakyRoundTripper{failures: -1}
	tr := newTestTransport(t, "http://tracker.invalid", rt, RetryPolicy{Delay: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Send(ctx, http.MethodGet, "/api/new", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("wait should be interrupted by context")
	}
}

func TestTransport_RequestShape(t *testing.T) {
	var (
		gotPath, gotQuery, gotContentType, gotRequestID string
		gotBody                                         []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		gotRequestID = r.Header.Get("X-Request-ID")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	tr := newTestTransport(t, server.URL+"//", http.DefaultTransport, RetryPolicy{}, nil)
	if tr.BaseURL() != server.URL {
		t.Errorf("expected normalized base %q, got %q", server.URL, tr.BaseURL())
	}

	query := url.Values{"stage": {"m"}}
	if _, err := tr.Send(context.Background(), http.MethodPost, "/api/updateProgress", query, map[string]string{"progress": "50%"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/updateProgress" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotQuery != "stage=m" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if gotContentType != "application/json" {
		t.Errorf("expected JSON content type, got %q", gotContentType)
	}
	if gotRequestID != "req-1" {
		t.Errorf("expected X-Request-ID req-1, got %q", gotRequestID)
	}
	if string(gotBody) != `{"progress":"50%"}` {
		t.Errorf("unexpected body %s", gotBody)
	}
}

func TestNewTransport_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "   ", "/", "tracker", "://x"} {
		if _, err := NewTransport(TransportConfig{BaseURL: raw}); !errors.Is(err, ErrValidation) {
			t.Errorf("%q: expected ErrValidation, got %v", raw, err)
		}
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	policy := RetryPolicy{
		Delay:    time.Second,
		Backoff:  BackoffExponential,
		MaxDelay: 10 * time.Second,
	}.normalize()

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second}, // потолок
		{6, 10 * time.Second},
	}

	for _, tt := range tests {
		if got := policy.backoff(tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	policy := RetryPolicy{}.normalize()

	if policy.Delay != 15*time.Second {
		t.Errorf("expected 15s delay, got %v", policy.Delay)
	}
	if policy.MaxAttempts != 0 {
		t.Errorf("expected unbounded attempts, got %d", policy.MaxAttempts)
	}
	for attempt := 1; attempt <= 5; attempt++ {
		if got := policy.backoff(attempt); got != 15*time.Second {
			t.Errorf("attempt %d: expected fixed 15s, got %v", attempt, got)
		}
	}
}
