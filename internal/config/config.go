// Package config loads harvest job files.
//
// A job file is YAML. Every key is optional: the file is merged over
// Default(), so a minimal job only names the listing URL, the schema file and
// the sink. ${VAR} references are expanded from the environment in secrets,
// DSNs and URLs.
package config

import (
	"time"
)

// Config is one crawl job.
type Config struct {
	Env     string        `yaml:"env"`
	Log     LogConfig     `yaml:"log"`
	Job     JobConfig     `yaml:"job"`
	HTTP    HTTPConfig    `yaml:"http"`
	Sink    SinkConfig    `yaml:"sink"`
	Enrich  EnrichConfig  `yaml:"enrich"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// JobConfig describes what to crawl.
type JobConfig struct {
	Name       string `yaml:"name"`
	ListingURL string `yaml:"listing_url"`
	SchemaFile string `yaml:"schema_file"`

	// LinkField is the list-schema field holding detail links.
	LinkField string `yaml:"link_field"`
	// ImageField, when set, names a detail field holding the primary image
	// URL; the image is fetched and stored base64-encoded in ImageTarget.
	ImageField  string `yaml:"image_field"`
	ImageTarget string `yaml:"image_target"`
	// ExpectedFields are logged when they come out Absent.
	ExpectedFields []string `yaml:"expected_fields"`

	MinDelay time.Duration `yaml:"min_delay"`
	Jitter   time.Duration `yaml:"jitter"`
	// MaxItems caps the number of detail links processed; 0 means all.
	MaxItems int `yaml:"max_items"`
}

// HTTPConfig is the page/image transport policy.
type HTTPConfig struct {
	Timeout      time.Duration     `yaml:"timeout"`
	UserAgent    string            `yaml:"user_agent"`
	Retries      int               `yaml:"retries"`
	RetryWait    time.Duration     `yaml:"retry_wait"`
	MaxRetryWait time.Duration     `yaml:"max_retry_wait"`
	Headers      map[string]string `yaml:"headers"`
}

// SinkConfig selects where records go.
type SinkConfig struct {
	// Kind is one of the registered sinks: ingest, sqlite, postgres, mssql, jsonl.
	Kind       string       `yaml:"kind"`
	Collection string       `yaml:"collection"`
	DocType    string       `yaml:"doc_type"`
	Ingest     IngestConfig `yaml:"ingest"`
	// DSN is used by the database sinks.
	DSN string `yaml:"dsn"`
}

// IngestConfig is the HTTP ingest API.
type IngestConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Header  string        `yaml:"header"`
	Prefix  string        `yaml:"prefix"`
	Timeout time.Duration `yaml:"timeout"`
}

// EnrichConfig mirrors enrich.Config. Enabled is a pointer so a job file can
// turn enrichment off over the default.
type EnrichConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	BlobField  string   `yaml:"blob_field"`
	NestedPath string   `yaml:"nested_path"`
	AllowKeys  []string `yaml:"allow_keys"`

	Canonical FieldSet `yaml:"canonical"`
	Scraped   FieldSet `yaml:"scraped"`
}

// FieldSet names the four logical fields enrichment reconciles.
type FieldSet struct {
	ModelYear string `yaml:"model_year"`
	Price     string `yaml:"price"`
	Distance  string `yaml:"distance"`
	Power     string `yaml:"power"`
}

type MetricsConfig struct {
	// Backend is "none" or "datadog".
	Backend    string        `yaml:"backend"`
	Tags       []string      `yaml:"tags"`
	FlushEvery time.Duration `yaml:"flush_every"`
}

// EnrichEnabled reports whether enrichment runs.
func (c *Config) EnrichEnabled() bool {
	return c.Enrich.Enabled == nil || *c.Enrich.Enabled
}

// Default is the car-listing profile.
func Default() Config {
	enabled := true
	return Config{
		Env: "dev",
		Log: LogConfig{Level: "info"},
		Job: JobConfig{
			Name:        "harvest",
			LinkField:   "links",
			ImageTarget: "image",
			MinDelay:    time.Second,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "harvest/1.0",
			RetryWait:    2 * time.Second,
			MaxRetryWait: 60 * time.Second,
		},
		Sink: SinkConfig{
			Kind: "jsonl",
			Ingest: IngestConfig{
				Header:  "Authorization",
				Prefix:  "Bearer ",
				Timeout: 30 * time.Second,
			},
		},
		Enrich: EnrichConfig{
			Enabled:    &enabled,
			BlobField:  "adData",
			NestedPath: "ad",
			AllowKeys:  []string{"model", "make", "fuel", "gearbox", "pris", "km", "hk"},
			Canonical:  FieldSet{ModelYear: "model", Price: "pris", Distance: "km", Power: "hk"},
			Scraped:    FieldSet{ModelYear: "Modellår", Price: "Totalpris", Distance: "Kilometer", Power: "Effekt"},
		},
		Metrics: MetricsConfig{
			Backend:    "none",
			FlushEvery: time.Minute,
		},
	}
}
