// Package metrics is the process-wide metrics facade used by the pipeline,
// the fetcher and the commands. Code records through the package functions;
// main decides which Backend (Datadog, none) receives the data.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by the backends.
const (
	StepTotal           = "ratesheet_step_total"
	StepDurationSeconds = "ratesheet_step_duration_seconds"
	RowsTotal           = "ratesheet_rows_total"

	HTTPRequestsTotal          = "ratesheet_http_requests_total"
	HTTPErrorsTotal            = "ratesheet_http_errors_total"
	HTTPRequestDurationSeconds = "ratesheet_http_request_duration_seconds"
	HTTPDownloadBytes          = "ratesheet_http_download_bytes"
)

// Labels are metric dimensions, e.g. {"schema": "vp", "outcome": "emitted"}.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer observations.
type Flusher interface {
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b disables metrics.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter on the current backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample on the current backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the current backend if it buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordStep counts one pipeline step and its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRows counts rows of a schema by outcome ("emitted", "dropped", "degraded").
func RecordRows(schema, outcome string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RowsTotal, float64(n), Labels{"schema": schema, "outcome": outcome})
}

// RecordHTTP records one HTTP attempt. status is 0 when no response arrived;
// such attempts are labelled "network". bytes < 0 means the body was not read.
func RecordHTTP(status int, err error, d time.Duration, bytes int64) {
	s := "network"
	if status > 0 {
		s = strconv.Itoa(status)
	}
	l := Labels{"status": s}

	IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status == 0 || status >= 400 {
		IncCounter(HTTPErrorsTotal, 1, l)
	}
	ObserveHistogram(HTTPRequestDurationSeconds, d.Seconds(), l)
	if bytes >= 0 {
		ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}
