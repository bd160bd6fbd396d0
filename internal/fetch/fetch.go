// Package fetch downloads rate sheets over HTTP with a per-attempt timeout and
// retries on transient failures (network errors, 429, 5xx).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ratesheet/internal/metrics"
)

// Logger is the minimal logging seam used by this package.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// ErrTooLarge is returned when a body exceeds Options.MaxBytes.
var ErrTooLarge = errors.New("response body too large")

// StatusError is a non-2xx response. Body holds up to 4KB for debugging.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http status %d", e.Code)
	}
	return fmt.Sprintf("http status %d: %s", e.Code, e.Body)
}

// Options tunes a Fetcher. Zero values take the defaults noted per field.
type Options struct {
	Timeout     time.Duration // per attempt; default 60s
	Retries     int           // extra attempts after the first; negative means 0
	BaseBackoff time.Duration // default 1s; doubled per attempt
	MaxBackoff  time.Duration // default 30s
	JitterMax   time.Duration // default 250ms
	UserAgent   string        // default "ratesheet/1.0"
	MaxBytes    int64         // default 64 MiB
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = time.Second
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.JitterMax < 0 {
		o.JitterMax = 0
	} else if o.JitterMax == 0 {
		o.JitterMax = 250 * time.Millisecond
	}
	if o.UserAgent == "" {
		o.UserAgent = "ratesheet/1.0"
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 64 << 20
	}
	return o
}

// Result is a successful download.
type Result struct {
	URL         string
	Status      int
	ContentType string
	Body        []byte
	Attempts    int
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	client *http.Client
	opts   Options
	log    Logger

	// sleep waits for d or until ctx is done; it reports whether the full
	// wait elapsed. Tests replace it.
	sleep func(ctx context.Context, d time.Duration) bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New returns a Fetcher. A nil client uses http.DefaultClient; a nil logger
// discards output.
func New(client *http.Client, opts Options, log Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = nopLogger{}
	}
	return &Fetcher{
		client: client,
		opts:   opts.withDefaults(),
		log:    log,
		sleep:  sleepContext,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// attempt is the outcome of one HTTP round trip.
type attempt struct {
	status     int
	body       []byte
	ctype      string
	retryAfter time.Duration
	err        error
}

// Fetch downloads rawURL. It retries network errors, 429 and 5xx up to
// Options.Retries times; other failures return immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	maxAttempts := f.opts.Retries + 1

	var last attempt
	for n := 1; n <= maxAttempts; n++ {
		start := time.Now()
		last = f.do(ctx, rawURL)
		read := int64(-1)
		if last.err == nil {
			read = int64(len(last.body))
		}
		metrics.RecordHTTP(last.status, last.err, time.Since(start), read)

		if last.err == nil {
			f.log.Printf("fetch: url=%s status=%d bytes=%d attempt=%d", rawURL, last.status, len(last.body), n)
			return Result{URL: rawURL, Status: last.status, ContentType: last.ctype, Body: last.body, Attempts: n}, nil
		}
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		if !retryable(last) || n == maxAttempts {
			break
		}

		wait := f.backoff(n, last.retryAfter)
		f.log.Printf("fetch: url=%s attempt=%d err=%v retry_in=%s", rawURL, n, last.err, wait)
		if !f.sleep(ctx, wait) {
			return Result{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
	}
	return Result{}, fmt.Errorf("fetch %s: %w", rawURL, last.err)
}

func (f *Fetcher) do(ctx context.Context, rawURL string) attempt {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return attempt{err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	a := attempt{status: resp.StatusCode, ctype: resp.Header.Get("Content-Type")}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_, _ = io.Copy(io.Discard, resp.Body)
		a.err = &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode == http.StatusTooManyRequests {
			a.retryAfter = parseRetryAfter(resp.Header)
		}
		return a
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes+1))
	if err != nil {
		// A body cut short is a transport failure, not a final 2xx.
		a.status = 0
		a.err = fmt.Errorf("read body: %w", err)
		return a
	}
	if int64(len(body)) > f.opts.MaxBytes {
		a.err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.opts.MaxBytes)
		return a
	}
	a.body = body
	return a
}

func retryable(a attempt) bool {
	if errors.Is(a.err, ErrTooLarge) {
		return false
	}
	switch {
	case a.status == 0:
		return true
	case a.status == http.StatusTooManyRequests:
		return true
	case a.status >= 500:
		return true
	}
	return false
}

// backoff is base*2^(n-1) plus jitter. A server Retry-After overrides the
// exponential part. Either is clamped to MaxBackoff before jitter.
func (f *Fetcher) backoff(n int, retryAfter time.Duration) time.Duration {
	d := retryAfter
	if d <= 0 {
		d = f.opts.BaseBackoff << uint(n-1)
		if d <= 0 {
			d = f.opts.MaxBackoff
		}
	}
	if d > f.opts.MaxBackoff {
		d = f.opts.MaxBackoff
	}
	if f.opts.JitterMax > 0 {
		f.rngMu.Lock()
		d += time.Duration(f.rng.Int63n(int64(f.opts.JitterMax) + 1))
		f.rngMu.Unlock()
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
