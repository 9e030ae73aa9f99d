// Package metrics is a small facade between harvest components and whichever
// metrics backend the process configures. Components call the package-level
// helpers; the default backend discards everything.
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	ItemsTotal          = "harvest_items_total"
	MissingFieldsTotal  = "harvest_missing_fields_total"
	SubmissionsTotal    = "harvest_submissions_total"
	StepTotal           = "harvest_step_total"
	StepDuration        = "harvest_step_duration_seconds"
	HTTPRequestsTotal   = "harvest_http_requests_total"
	HTTPErrorsTotal     = "harvest_http_errors_total"
	HTTPRequestDuration = "harvest_http_request_duration_seconds"
	HTTPResponseTime    = "harvest_http_response_duration_seconds"
	HTTPDownloadBytes   = "harvest_http_download_bytes"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by buffering backends.
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

// SetBackend installs b as the process-wide backend. nil restores the no-op
// backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// RecordHTTP records one HTTP attempt. status 0 means no response was
// received; bytes < 0 means unknown size.
func RecordHTTP(job string, status int, err error, reqDur, respDur time.Duration, bytes int64) {
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	l := Labels{"job": job, "status": st}

	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, l)
	if err != nil || status == 0 || status >= 400 {
		b.IncCounter(HTTPErrorsTotal, 1, l)
	}
	if reqDur >= 0 {
		b.ObserveHistogram(HTTPRequestDuration, reqDur.Seconds(), l)
	}
	if respDur >= 0 {
		b.ObserveHistogram(HTTPResponseTime, respDur.Seconds(), l)
	}
	if bytes >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), l)
	}
}

// RecordStep records one pipeline step (fetch, extract, enrich, submit) and
// its duration.
func RecordStep(step string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, l)
	b.ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordItem counts one detail link by outcome ("ok" or "failed").
func RecordItem(status string) {
	current().IncCounter(ItemsTotal, 1, Labels{"status": status})
}

// RecordMissingField counts a field that came out Absent.
func RecordMissingField(field string) {
	current().IncCounter(MissingFieldsTotal, 1, Labels{"field": field})
}

// RecordSubmission counts one submission attempt to sink.
func RecordSubmission(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	current().IncCounter(SubmissionsTotal, 1, Labels{"sink": sink, "status": status})
}
