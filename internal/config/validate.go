package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Severity of a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding. Path is the YAML key path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// KnownSinks are the sink kinds Validate accepts.
var KnownSinks = []string{"ingest", "sqlite", "postgres", "mssql", "jsonl"}

// Validate checks cfg and returns every issue found, errors first in the
// order the sections appear in the file.
func Validate(cfg Config) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	switch cfg.Env {
	case "dev", "prod":
	default:
		add(SeverityWarning, "env", "unknown env %q; text logging will be used", cfg.Env)
	}

	if err := checkHTTPURL(cfg.Job.ListingURL); err != nil {
		add(SeverityError, "job.listing_url", "%v", err)
	}
	if strings.TrimSpace(cfg.Job.SchemaFile) == "" {
		add(SeverityError, "job.schema_file", "required")
	}
	if strings.TrimSpace(cfg.Job.LinkField) == "" {
		add(SeverityError, "job.link_field", "required")
	}
	if cfg.Job.ImageField != "" && cfg.Job.ImageTarget == "" {
		add(SeverityError, "job.image_target", "required when job.image_field is set")
	}
	if cfg.Job.MinDelay < 0 {
		add(SeverityError, "job.min_delay", "must be non-negative")
	}
	if cfg.Job.Jitter < 0 {
		add(SeverityError, "job.jitter", "must be non-negative")
	}
	if cfg.Job.MinDelay == 0 && cfg.Job.Jitter == 0 {
		add(SeverityWarning, "job.min_delay", "no delay between detail fetches")
	}
	if cfg.Job.MaxItems < 0 {
		add(SeverityError, "job.max_items", "must be >= 0")
	}

	if cfg.HTTP.Timeout <= 0 {
		add(SeverityError, "http.timeout", "must be positive")
	}
	if cfg.HTTP.Retries < 0 {
		add(SeverityError, "http.retries", "must be >= 0")
	}
	if cfg.HTTP.MaxRetryWait > 0 && cfg.HTTP.RetryWait > cfg.HTTP.MaxRetryWait {
		add(SeverityError, "http.retry_wait", "exceeds http.max_retry_wait")
	}

	validateSink(cfg.Sink, add)

	if cfg.EnrichEnabled() && cfg.Enrich.BlobField != "" && len(cfg.Enrich.AllowKeys) == 0 {
		add(SeverityWarning, "enrich.allow_keys", "empty: nothing will be copied from %s", cfg.Enrich.BlobField)
	}

	switch cfg.Metrics.Backend {
	case "", "none", "datadog":
	default:
		add(SeverityError, "metrics.backend", "unknown backend %q (want none or datadog)", cfg.Metrics.Backend)
	}

	return issues
}

func validateSink(s SinkConfig, add func(Severity, string, string, ...any)) {
	known := false
	for _, k := range KnownSinks {
		if s.Kind == k {
			known = true
			break
		}
	}
	if !known {
		add(SeverityError, "sink.kind", "unknown sink %q (want one of %s)", s.Kind, strings.Join(KnownSinks, ", "))
		return
	}

	if strings.TrimSpace(s.Collection) == "" {
		add(SeverityError, "sink.collection", "required")
	}
	if strings.TrimSpace(s.DocType) == "" {
		add(SeverityError, "sink.doc_type", "required")
	}

	switch s.Kind {
	case "ingest":
		if err := checkHTTPURL(s.Ingest.BaseURL); err != nil {
			add(SeverityError, "sink.ingest.base_url", "%v", err)
		}
		if strings.TrimSpace(s.Ingest.APIKey) == "" {
			add(SeverityWarning, "sink.ingest.api_key", "empty: requests will be unauthenticated")
		}
	case "sqlite", "postgres", "mssql":
		if strings.TrimSpace(s.DSN) == "" {
			add(SeverityError, "sink.dsn", "required for %s", s.Kind)
		}
	}
}

func checkHTTPURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
