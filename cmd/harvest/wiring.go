package main

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"harvest/internal/config"
	"harvest/internal/enrich"
	"harvest/internal/fetch"
	hlog "harvest/internal/log"
	"harvest/internal/metrics"
	"harvest/internal/metrics/datadog"
	"harvest/internal/storage"

	// Link every sink backend; the job file picks one.
	_ "harvest/internal/storage/all"
)

func newLogger(cmd *cobra.Command, cfg config.Config) (*logrus.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return hlog.New(hlog.Options{
		Env:     cfg.Env,
		Level:   cfg.Log.Level,
		Verbose: verbose,
		Out:     cmd.ErrOrStderr(),
	})
}

// setupMetrics installs the configured backend and returns its shutdown
// function. A backend that fails to start is logged and metrics stay off.
func setupMetrics(ctx context.Context, cfg config.Config, log logrus.FieldLogger) func() {
	switch cfg.Metrics.Backend {
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    cfg.Job.Name,
			Tags:       cfg.Metrics.Tags,
			FlushEvery: cfg.Metrics.FlushEvery,
		})
		if err != nil {
			log.WithError(err).Warn("metrics: datadog backend unavailable; metrics disabled")
			return func() {}
		}
		log.WithFields(logrus.Fields{"job": cfg.Job.Name, "tags": cfg.Metrics.Tags}).Info("metrics: datadog enabled")
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is buffered.
			if err := b.Close(); err != nil {
				log.WithError(err).Warn("metrics: datadog close")
			}
			metrics.SetBackend(nil)
		}
	case "", "none":
		log.Debug("metrics: disabled")
	default:
		log.WithField("backend", cfg.Metrics.Backend).Warn("metrics: unknown backend; metrics disabled")
	}
	return func() {}
}

func newFetcher(cfg config.Config) *fetch.Client {
	return fetch.New(fetch.Options{
		Timeout:      cfg.HTTP.Timeout,
		UserAgent:    cfg.HTTP.UserAgent,
		Headers:      cfg.HTTP.Headers,
		Retries:      cfg.HTTP.Retries,
		RetryWait:    cfg.HTTP.RetryWait,
		MaxRetryWait: cfg.HTTP.MaxRetryWait,
		Job:          cfg.Job.Name,
	})
}

func newEnricher(cfg config.Config) *enrich.Enricher {
	if !cfg.EnrichEnabled() {
		return nil
	}
	ec := cfg.Enrich
	return enrich.New(enrich.Config{
		BlobField:  ec.BlobField,
		NestedPath: ec.NestedPath,
		AllowKeys:  ec.AllowKeys,
		Canonical:  enrich.FieldSet(ec.Canonical),
		Scraped:    enrich.FieldSet(ec.Scraped),
	})
}

func newSink(ctx context.Context, cfg config.Config, out io.Writer) (storage.Sink, error) {
	s, err := storage.New(ctx, storage.Config{
		Kind: cfg.Sink.Kind,
		DSN:  cfg.Sink.DSN,
		Ingest: storage.IngestConfig{
			BaseURL: cfg.Sink.Ingest.BaseURL,
			APIKey:  cfg.Sink.Ingest.APIKey,
			Header:  cfg.Sink.Ingest.Header,
			Prefix:  cfg.Sink.Ingest.Prefix,
			Timeout: cfg.Sink.Ingest.Timeout,
		},
		Out: out,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s sink: %w", cfg.Sink.Kind, err)
	}
	return s, nil
}

func printIssues(w io.Writer, issues []config.Issue) {
	for _, iss := range issues {
		fmt.Fprintln(w, iss.String())
	}
}
