package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"harvest/internal/config"
	"harvest/internal/crawl"
	"harvest/internal/extracthtml"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the listing page and submit every detail record",
		Long: `Crawl fetches the job's listing page, resolves its detail links and
processes them one at a time: fetch, extract, attach image, enrich, submit.
A failing item is logged and the crawl moves on; the run fails only when the
listing itself cannot be processed or when every item failed.

Examples:
  # Run a job
  harvest crawl --config configs/cars.yaml

  # Print records as JSON lines instead of submitting them
  harvest crawl --config configs/cars.yaml --dry-run --max-items 3`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "configs/cars.yaml", "Job file (YAML)")
	cmd.Flags().Bool("dry-run", false, "Write records to stdout as JSON lines instead of the configured sink")
	cmd.Flags().Int("max-items", 0, "Process at most this many detail links (0 keeps the job setting)")
	return cmd
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	maxItems, _ := cmd.Flags().GetInt("max-items")

	cfg, issues, err := config.Load(path)
	printIssues(cmd.ErrOrStderr(), issues)
	if err != nil {
		return err
	}
	if dryRun {
		cfg.Sink.Kind = "jsonl"
	}
	if maxItems > 0 {
		cfg.Job.MaxItems = maxItems
	}

	log, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	schemas, err := extracthtml.LoadSchemaFile(cfg.Job.SchemaFile)
	if err != nil {
		return err
	}
	if schemas.List == nil || schemas.Detail == nil {
		return fmt.Errorf("schema %s: both list and detail sections are required", cfg.Job.SchemaFile)
	}

	shutdownMetrics := setupMetrics(context.Background(), cfg, log)
	defer shutdownMetrics()

	sink, err := newSink(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.WithError(err).Warn("close sink")
		}
	}()

	seq, err := crawl.New(crawl.Options{
		ListingURL:     cfg.Job.ListingURL,
		Collection:     cfg.Sink.Collection,
		DocType:        cfg.Sink.DocType,
		List:           schemas.List,
		Detail:         schemas.Detail,
		LinkField:      cfg.Job.LinkField,
		ImageField:     cfg.Job.ImageField,
		ImageTarget:    cfg.Job.ImageTarget,
		ExpectedFields: cfg.Job.ExpectedFields,
		MaxItems:       cfg.Job.MaxItems,
		MinDelay:       cfg.Job.MinDelay,
		Jitter:         cfg.Job.Jitter,
		Fetcher:        newFetcher(cfg),
		Enricher:       newEnricher(cfg),
		Sink:           sink,
		SinkName:       cfg.Sink.Kind,
		Logger:         log.WithField("job", cfg.Job.Name),
	})
	if err != nil {
		return err
	}

	sum, err := seq.Run(ctx)
	if err != nil {
		return fmt.Errorf("crawl %s: %w", cfg.Job.Name, err)
	}
	if sum.Total > 0 && sum.Succeeded == 0 {
		return fmt.Errorf("crawl %s: all %d items failed", cfg.Job.Name, sum.Total)
	}
	return nil
}
