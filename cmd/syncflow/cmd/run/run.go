// Package run provides the run command.
package run

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/alerts"
	"github.com/agentstation/syncflow/internal/cmd/output"
	"github.com/agentstation/syncflow/internal/cmd/table"
	"github.com/agentstation/syncflow/pkg/report"
)

// NewCommand creates the run command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		GroupID: "core",
		Short:   "Fetch, merge and publish once",
		Long: `Run performs one sync run: fetch every source, normalize and match the
records, resolve conflicts, publish the merged dataset, and print the report.

Ctrl+C cancels the run unless it has started publishing.`,
		Example: `  syncflow run                      # Run against the configured sources
  syncflow run --show entities      # Also print every merged field
  syncflow run -o json              # Print the full report as JSON`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			show, err := cmd.Flags().GetStringSlice("show")
			if err != nil {
				return err
			}
			return runOnce(cmd, app, show)
		},
	}

	cmd.Flags().StringSlice("show", []string{"sources", "review"},
		"Sections to print after the summary: sources, review, entities, issues")

	return cmd
}

func runOnce(cmd *cobra.Command, app application.Application, show []string) error {
	format, err := output.Resolve(app.OutputFormat())
	if err != nil {
		return err
	}

	engine, err := app.Engine()
	if err != nil {
		return err
	}

	entry, err := engine.Run(cmd.Context(), syncflow.TriggerManual)
	if err != nil {
		return err
	}
	summary := entry.Summary()

	out := cmd.OutOrStdout()
	if !format.IsTable() {
		if err := output.NewFormatter(format).Format(out, entry); err != nil {
			return err
		}
	} else if err := printReport(out, format, entry, show); err != nil {
		return err
	}

	if err := alerts.NewFormatWriter(cmd.ErrOrStderr(), output.FormatTable).WriteAlert(alerts.ForRun(summary)); err != nil {
		return err
	}

	if summary.Outcome.Kind == report.OutcomeFailed {
		return fmt.Errorf("run %s failed: %s", summary.RunID, summary.Outcome.Reason)
	}
	return nil
}

// printReport prints the summary table followed by the requested sections.
// Empty sections are skipped.
func printReport(w io.Writer, format output.Format, entry *report.Entry, show []string) error {
	formatter := output.NewFormatter(format)
	if err := formatter.Format(w, table.SummaryToTableData(entry.Summary())); err != nil {
		return err
	}

	for _, section := range show {
		var (
			title string
			data  table.Data
		)
		switch section {
		case "sources":
			title, data = "Sources", table.SourcesToTableData(entry.Report.Sources)
		case "review":
			title, data = "Needs review", table.ReviewToTableData(entry.Report.Entities)
		case "entities":
			title, data = "Entities", table.EntitiesToTableData(entry.Report.Entities)
		case "issues":
			title, data = "Issues", table.IssuesToTableData(entry.Report.Errors)
		default:
			return fmt.Errorf("unknown section %q: must be one of sources, review, entities, issues", section)
		}
		if len(data.Rows) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "\n%s:\n", title); err != nil {
			return err
		}
		if err := formatter.Format(w, data); err != nil {
			return err
		}
	}
	return nil
}
