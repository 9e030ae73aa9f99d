package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu      sync.Mutex
	events  []event
	flushed int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"histogram", name, value, labels})
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

func (r *recorder) find(name string) []event {
	var out []event
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// These tests swap the process-wide backend, so they do not run in parallel.

func TestRecordHTTP(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordHTTP("cars", 200, nil, 100*time.Millisecond, 150*time.Millisecond, 2048)
	RecordHTTP("cars", 0, errors.New("dial tcp: refused"), -1, -1, -1)

	reqs := r.find(HTTPRequestsTotal)
	if len(reqs) != 2 {
		t.Fatalf("requests: got %d events", len(reqs))
	}
	if reqs[0].labels["status"] != "200" || reqs[1].labels["status"] != "error" {
		t.Fatalf("status labels: %+v", reqs)
	}
	if errs := r.find(HTTPErrorsTotal); len(errs) != 1 {
		t.Fatalf("errors: got %d events, want 1", len(errs))
	}
	if d := r.find(HTTPRequestDuration); len(d) != 1 || d[0].value != 0.1 {
		t.Fatalf("request duration: %+v", d)
	}
	if b := r.find(HTTPDownloadBytes); len(b) != 1 || b[0].value != 2048 {
		t.Fatalf("download bytes: %+v", b)
	}
}

func TestRecordHelpers(t *testing.T) {
	r := &recorder{}
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordStep("fetch", nil, time.Second)
	RecordStep("submit", errors.New("boom"), 0)
	RecordItem("ok")
	RecordMissingField("Effekt")
	RecordSubmission("ingest", nil)

	steps := r.find(StepTotal)
	if len(steps) != 2 || steps[1].labels["status"] != "error" {
		t.Fatalf("steps: %+v", steps)
	}
	if m := r.find(MissingFieldsTotal); len(m) != 1 || m[0].labels["field"] != "Effekt" {
		t.Fatalf("missing: %+v", m)
	}
	if s := r.find(SubmissionsTotal); len(s) != 1 || s[0].labels["sink"] != "ingest" {
		t.Fatalf("submissions: %+v", s)
	}

	if err := Flush(); err != nil {
		t.Fatal(err)
	}
	if r.flushed != 1 {
		t.Fatalf("flushed %d times", r.flushed)
	}
}

func TestNopBackend(t *testing.T) {
	SetBackend(nil)
	RecordItem("ok")
	if err := Flush(); err != nil {
		t.Fatalf("nop flush: %v", err)
	}
}
