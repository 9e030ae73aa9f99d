package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads path, merges it over Default, expands environment references
// and validates the result. Warnings are returned alongside a nil error;
// any error-severity issue fails the load with ErrInvalidConfig.
func Load(path string) (Config, []Issue, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, nil, err
	}

	issues := Validate(cfg)
	if HasErrors(issues) {
		return cfg, issues, fmt.Errorf("%w: %s", ErrInvalidConfig, path)
	}
	return cfg, issues, nil
}

// Read is Load without validation.
func Read(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}

	// A relative schema path is relative to the job file.
	if cfg.Job.SchemaFile != "" && !filepath.IsAbs(cfg.Job.SchemaFile) {
		cfg.Job.SchemaFile = filepath.Join(filepath.Dir(path), cfg.Job.SchemaFile)
	}
	return cfg, nil
}

// Parse decodes YAML content and merges it over Default.
func Parse(data []byte) (Config, error) {
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	// Zero values in the file keep the default (mergo semantics); the one
	// boolean that defaults to true is carried over by hand.
	cfg := Default()
	if err := mergo.Merge(&cfg, file, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("merge defaults: %w", err)
	}
	if file.Enrich.Enabled != nil {
		v := *file.Enrich.Enabled
		cfg.Enrich.Enabled = &v
	}
	expandEnv(&cfg)
	return cfg, nil
}

func expandEnv(cfg *Config) {
	cfg.Job.ListingURL = os.ExpandEnv(cfg.Job.ListingURL)
	cfg.Sink.DSN = os.ExpandEnv(cfg.Sink.DSN)
	cfg.Sink.Ingest.BaseURL = os.ExpandEnv(cfg.Sink.Ingest.BaseURL)
	cfg.Sink.Ingest.APIKey = os.ExpandEnv(cfg.Sink.Ingest.APIKey)
	for k, v := range cfg.HTTP.Headers {
		cfg.HTTP.Headers[k] = os.ExpandEnv(v)
	}
}
