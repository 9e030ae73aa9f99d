package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Schema-driven HTML extraction and crawling",
		Long: `harvest fetches a listing page, follows its detail links and turns each
detail page into a structured record using a declarative extraction schema.
Records are enriched with derived fields and submitted to a sink (an ingest
API, SQLite, Postgres, SQL Server or JSON lines).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewExtractCmd())
	cmd.AddCommand(NewValidateCmd())
	return cmd
}
