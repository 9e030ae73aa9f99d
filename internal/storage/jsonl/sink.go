// Package jsonl writes documents as JSON lines, one envelope per document.
// It is the default sink for dry runs.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"harvest/internal/storage"
)

type envelope struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	DocType    string          `json:"doc_type"`
	SourceURL  string          `json:"source_url,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Body       json.RawMessage `json:"body"`
}

type Sink struct {
	mu  sync.Mutex
	enc *json.Encoder
	seq int64
}

func init() {
	storage.Register("jsonl", Open)
}

// Open writes to cfg.Out, or stdout.
func Open(_ context.Context, cfg storage.Config) (storage.Sink, error) {
	var w io.Writer = os.Stdout
	if cfg.Out != nil {
		w = cfg.Out
	}
	return New(w), nil
}

func New(w io.Writer) *Sink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Sink{enc: enc}
}

func (s *Sink) Close() error { return nil }

// Submit writes doc and returns its 1-based sequence number.
func (s *Sink) Submit(_ context.Context, doc storage.Document) (string, error) {
	if !json.Valid(doc.Body) {
		return "", fmt.Errorf("jsonl: body is not valid JSON")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.FormatInt(s.seq+1, 10)
	err := s.enc.Encode(envelope{
		ID:         id,
		Collection: doc.Collection,
		DocType:    doc.DocType,
		SourceURL:  doc.SourceURL,
		CreatedAt:  doc.CreatedAt.UTC(),
		Body:       doc.Body,
	})
	if err != nil {
		return "", fmt.Errorf("jsonl: write: %w", err)
	}
	s.seq++
	return id, nil
}
