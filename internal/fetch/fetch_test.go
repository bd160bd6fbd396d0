package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestFetcher(opts Options) (*Fetcher, *[]time.Duration) {
	if opts.JitterMax == 0 {
		opts.JitterMax = -1
	}
	f := New(nil, opts, nil)
	var waits []time.Duration
	f.sleep = func(_ context.Context, d time.Duration) bool {
		waits = append(waits, d)
		return true
	}
	return f, &waits
}

func TestFetch_OK(t *testing.T) {
	t.Parallel()

	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{UserAgent: "tester/2"})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(res.Body) != "%PDF-1.7" || res.Status != 200 || res.Attempts != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", res.ContentType)
	}
	if got := ua.Load(); got != "tester/2" {
		t.Fatalf("user agent = %v", got)
	}
	if len(*waits) != 0 {
		t.Fatalf("unexpected waits %v", *waits)
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 3, BaseBackoff: 100 * time.Millisecond, MaxBackoff: time.Second})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", res.Attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(*waits) != len(want) || (*waits)[0] != want[0] || (*waits)[1] != want[1] {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such sheet", http.StatusNotFound)
	}))
	defer srv.Close()

	f, _ := newTestFetcher(Options{Retries: 5})
	_, err := f.Fetch(context.Background(), srv.URL)

	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("err = %v, want StatusError 404", err)
	}
	if se.Body != "no such sheet" {
		t.Fatalf("body = %q", se.Body)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 2, BaseBackoff: time.Second, MaxBackoff: 1500 * time.Millisecond})
	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "http status 502") {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
	if len(*waits) != 2 || (*waits)[1] != 1500*time.Millisecond {
		t.Fatalf("waits = %v, want second wait clamped", *waits)
	}
}

func TestFetch_HonorsRetryAfter(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 1})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 7*time.Second {
		t.Fatalf("waits = %v, want [7s]", *waits)
	}
}

func TestFetch_RetryAfterIsClamped(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "86400")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 1, MaxBackoff: 2 * time.Second})
	if _, err := f.Fetch(context.Background(), srv.URL); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(*waits) != 1 || (*waits)[0] != 2*time.Second {
		t.Fatalf("waits = %v, want [2s]", *waits)
	}
}

func TestFetch_TruncatedBodyIsRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			conn, buf, err := http.NewResponseController(w).Hijack()
			if err != nil {
				t.Errorf("hijack: %v", err)
				return
			}
			defer conn.Close()
			_, _ = buf.WriteString("HTTP/1.1 200 OK\r\nContent-Type: application/pdf\r\nContent-Length: 1000\r\n\r\n%PDF-1.7 cut")
			_ = buf.Flush()
			return
		}
		_, _ = w.Write([]byte("%PDF-1.7 whole"))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 2})
	res, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if calls.Load() != 2 || res.Attempts != 2 {
		t.Fatalf("calls = %d attempts = %d, want 2", calls.Load(), res.Attempts)
	}
	if string(res.Body) != "%PDF-1.7 whole" {
		t.Fatalf("body = %q", res.Body)
	}
	if len(*waits) != 1 {
		t.Fatalf("waits = %v, want one retry", *waits)
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f, waits := newTestFetcher(Options{Retries: 3, MaxBytes: 16})
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
	if len(*waits) != 0 {
		t.Fatalf("oversized bodies must not be retried, waits = %v", *waits)
	}
}

func TestFetch_CanceledDuringBackoff(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := New(nil, Options{Retries: 3, JitterMax: -1}, nil)
	f.sleep = func(context.Context, time.Duration) bool {
		cancel()
		return false
	}

	_, err := f.Fetch(ctx, srv.URL)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFetch_NetworkErrorIsRetried(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	f, waits := newTestFetcher(Options{Retries: 1})
	if _, err := f.Fetch(context.Background(), url); err == nil {
		t.Fatalf("expected error from closed server")
	}
	if len(*waits) != 1 {
		t.Fatalf("waits = %v, want one retry", *waits)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	tests := map[string]time.Duration{
		"":      0,
		"3":     3 * time.Second,
		"-1":    0,
		"later": 0,
	}
	for in, want := range tests {
		h := http.Header{}
		if in != "" {
			h.Set("Retry-After", in)
		}
		if got := parseRetryAfter(h); got != want {
			t.Fatalf("parseRetryAfter(%q) = %s, want %s", in, got, want)
		}
	}

	h := http.Header{}
	h.Set("Retry-After", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
	if got := parseRetryAfter(h); got < 59*time.Minute || got > time.Hour {
		t.Fatalf("http-date Retry-After = %s", got)
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if !sleepContext(context.Background(), time.Millisecond) {
		t.Fatalf("expected full sleep")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepContext(ctx, time.Hour) {
		t.Fatalf("expected canceled sleep")
	}
}
