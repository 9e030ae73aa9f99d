// Package storage defines the Sink that extracted records are submitted to
// and a registry of backends. Backends register themselves from init; import
// harvest/internal/storage/all to link every one of them.
package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Document is one serialised record on its way to a sink.
type Document struct {
	Collection string
	DocType    string
	SourceURL  string
	// Body is the JSON-encoded record.
	Body      []byte
	CreatedAt time.Time
}

// Sink persists documents.
//
// Submit returns the identifier the backend assigned, or "" when the backend
// accepted the document without reporting one. Callers log a missing id; it
// is not an error.
type Sink interface {
	Submit(ctx context.Context, doc Document) (string, error)
	Close() error
}

// Config selects and configures a sink backend.
type Config struct {
	// Kind must match a registered backend (ingest, sqlite, postgres, mssql,
	// jsonl).
	Kind string
	// DSN is used by the database backends.
	DSN string

	Ingest IngestConfig

	// Out is where the jsonl backend writes. Nil means stdout.
	Out io.Writer
}

// IngestConfig is the HTTP ingest API.
type IngestConfig struct {
	BaseURL string
	APIKey  string
	// Header carries Prefix+APIKey, e.g. "Authorization: Bearer <key>".
	Header  string
	Prefix  string
	Timeout time.Duration
}

// Factory builds a Sink from cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Backend packages call it
// from init.
//
// Panics if kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs the sink registered under cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing sink kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported sink kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
