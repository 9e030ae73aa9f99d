package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"harvest/internal/config"
	"harvest/internal/enrich"
	"harvest/internal/extracthtml"
	"harvest/internal/fetch"
)

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Run a schema against one page or a directory of pages",
		Long: `Extract evaluates one section of a schema file against HTML read from
stdin, a URL or file (--url), or every file in a directory (--dir), and prints
JSON. It is the tool for writing and debugging schemas.

Examples:
  # One detail page from a URL, enriched
  harvest extract --schema configs/cars.json5 --url https://cars.example/ad/1 --enrich

  # The list section of a saved page
  harvest extract --schema configs/cars.json5 --section list < listing.html

  # Every saved page in a directory, as a JSON array
  harvest extract --schema configs/cars.json5 --dir ./pages

  # Show every stage of every field
  harvest extract --schema configs/cars.json5 --trace < ad.html

  # Print what a selector matches
  harvest extract --selector "dl.specs dt" --text < ad.html`,
		Args: cobra.NoArgs,
		RunE: runExtractCmd,
	}

	cmd.Flags().StringP("schema", "s", "", "Schema file (JSON5)")
	cmd.Flags().String("section", "detail", "Schema section to run: list or detail")
	cmd.Flags().StringP("url", "u", "", "Fetch the page from this URL or file instead of stdin")
	cmd.Flags().StringP("dir", "d", "", "Extract every file in this directory")
	cmd.Flags().BoolP("enrich", "e", false, "Enrich records (merge embedded data, derive metrics)")
	cmd.Flags().StringP("config", "c", "", "Job file supplying HTTP and enrichment settings")
	cmd.Flags().Bool("trace", false, "Print each field's stage-by-stage trace instead of JSON")
	cmd.Flags().String("selector", "", "Debug: print the elements a CSS selector matches")
	cmd.Flags().Bool("text", false, "With --selector, print text instead of outer HTML")
	cmd.Flags().Duration("timeout", 20*time.Second, "Timeout for --url fetches")
	return cmd
}

func runExtractCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	schemaPath, _ := flags.GetString("schema")
	section, _ := flags.GetString("section")
	src, _ := flags.GetString("url")
	dir, _ := flags.GetString("dir")
	doEnrich, _ := flags.GetBool("enrich")
	cfgPath, _ := flags.GetString("config")
	trace, _ := flags.GetBool("trace")
	selector, _ := flags.GetString("selector")
	textOnly, _ := flags.GetBool("text")
	timeout, _ := flags.GetDuration("timeout")

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.Read(cfgPath); err != nil {
			return err
		}
	}
	cfg.HTTP.Timeout = timeout

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	client := newFetcher(cfg)

	// Selector debugging needs HTML but no schema.
	if selector != "" {
		html, err := fetch.ReadSource(ctx, client, src, cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("load html: %w", err)
		}
		return extracthtml.DebugPrintSelector(out, html, selector, textOnly)
	}

	if schemaPath == "" {
		return errors.New("--schema is required (or use --selector)")
	}
	set, err := extracthtml.LoadSchemaFile(schemaPath)
	if err != nil {
		return err
	}
	schema, ok := set.Section(section)
	if !ok {
		return fmt.Errorf("schema %s has no %q section", schemaPath, section)
	}

	var enricher *enrich.Enricher
	if doEnrich {
		cfg.Enrich.Enabled = nil
		enricher = newEnricher(cfg)
	}
	post := func(rec extracthtml.Record) {
		if enricher != nil {
			enricher.Apply(rec)
		}
	}

	if dir != "" {
		return extracthtml.StreamFromDir(ctx, out, dir, schema, post)
	}

	html, err := fetch.ReadSource(ctx, client, src, cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("load html: %w", err)
	}
	if trace {
		return extracthtml.DebugPipeline(out, html, schema)
	}

	rec, err := extracthtml.ExtractHTML(ctx, html, schema)
	if err != nil {
		return err
	}
	post(rec)

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
