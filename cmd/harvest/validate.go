package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"harvest/internal/config"
	"harvest/internal/extracthtml"
)

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a job file and its schema without crawling",
		Long: `Validate loads the job file, reports every configuration issue and
compiles the referenced schema file. It exits non-zero when any error is
found; warnings are printed but do not fail.`,
		Args: cobra.NoArgs,
		RunE: runValidateCmd,
	}
	cmd.Flags().StringP("config", "c", "configs/cars.yaml", "Job file (YAML)")
	return cmd
}

func runValidateCmd(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	out := cmd.OutOrStdout()

	cfg, err := config.Read(path)
	if err != nil {
		return err
	}
	issues := config.Validate(cfg)
	printIssues(out, issues)

	if cfg.Job.SchemaFile != "" {
		set, err := extracthtml.LoadSchemaFile(cfg.Job.SchemaFile)
		switch {
		case err != nil:
			fmt.Fprintf(out, "%s: %s: %v\n", config.SeverityError, "job.schema_file", err)
			return fmt.Errorf("%w: %s", config.ErrInvalidConfig, path)
		case set.List == nil || set.Detail == nil:
			fmt.Fprintf(out, "%s: %s: both list and detail sections are required\n", config.SeverityError, "job.schema_file")
			return fmt.Errorf("%w: %s", config.ErrInvalidConfig, path)
		default:
			if _, ok := set.List.Pipeline(cfg.Job.LinkField); !ok {
				fmt.Fprintf(out, "%s: %s: list section has no field %q\n", config.SeverityError, "job.link_field", cfg.Job.LinkField)
				return fmt.Errorf("%w: %s", config.ErrInvalidConfig, path)
			}
		}
	}

	if config.HasErrors(issues) {
		return fmt.Errorf("%w: %s", config.ErrInvalidConfig, path)
	}
	fmt.Fprintf(out, "%s: ok\n", path)
	return nil
}
