// Package history provides the history command and its subcommands.
package history

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/output"
	"github.com/agentstation/syncflow/internal/cmd/table"
	"github.com/agentstation/syncflow/pkg/constants"
	pkghistory "github.com/agentstation/syncflow/pkg/history"
)

// NewCommand creates the history command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history [run-id]",
		GroupID: "core",
		Short:   "List past runs or show one run's report",
		Long: `History lists recorded runs, newest first, or shows one run's report.

Runs persist across invocations only with the sqlite history driver.`,
		Example: `  syncflow history                     # Newest runs first
  syncflow history --status failed     # Only failed runs
  syncflow history 5f0c...             # One run's report
  syncflow history 5f0c... --entities  # Include merged entities`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				entities, err := cmd.Flags().GetBool("entities")
				if err != nil {
					return err
				}
				return showRun(cmd, app, args[0], entities)
			}
			f, err := parseFilter(cmd)
			if err != nil {
				return err
			}
			return listRuns(cmd, app, f)
		},
	}

	cmd.Flags().Int("offset", 0, "Number of runs to skip")
	cmd.Flags().Int("limit", constants.DefaultPageSize, "Maximum number of runs to list")
	cmd.Flags().String("status", "", "Filter by status: success, partial, failed")
	cmd.Flags().String("trigger", "", "Filter by trigger: manual, schedule, api")
	cmd.Flags().Bool("entities", false, "Include merged entities when showing a run")

	return cmd
}

func parseFilter(cmd *cobra.Command) (pkghistory.Filter, error) {
	var f pkghistory.Filter
	var err error
	if f.Offset, err = cmd.Flags().GetInt("offset"); err != nil {
		return f, err
	}
	if f.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return f, err
	}
	if f.Status, err = cmd.Flags().GetString("status"); err != nil {
		return f, err
	}
	if f.Trigger, err = cmd.Flags().GetString("trigger"); err != nil {
		return f, err
	}
	return f.Normalize(), nil
}

func listRuns(cmd *cobra.Command, app application.Application, f pkghistory.Filter) error {
	format, err := output.Resolve(app.OutputFormat())
	if err != nil {
		return err
	}
	engine, err := app.Engine()
	if err != nil {
		return err
	}

	page, err := engine.History(cmd.Context(), f)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := output.Print(out, format, table.RunsToTableData(page.Runs), page); err != nil {
		return err
	}
	if format.IsTable() {
		_, err = fmt.Fprintf(out, "\nShowing %d of %d runs\n", len(page.Runs), page.Total)
	}
	return err
}

func showRun(cmd *cobra.Command, app application.Application, runID string, withEntities bool) error {
	format, err := output.Resolve(app.OutputFormat())
	if err != nil {
		return err
	}
	engine, err := app.Engine()
	if err != nil {
		return err
	}

	entry, err := engine.Entry(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if !withEntities {
		trimmed := *entry
		trimmed.Report.Entities = nil
		entry = &trimmed
	}

	out := cmd.OutOrStdout()
	if !format.IsTable() {
		return output.NewFormatter(format).Format(out, entry)
	}

	formatter := output.NewFormatter(format)
	if err := formatter.Format(out, table.SummaryToTableData(entry.Summary())); err != nil {
		return err
	}
	sections := []struct {
		title string
		data  table.Data
	}{
		{"Sources", table.SourcesToTableData(entry.Report.Sources)},
		{"Issues", table.IssuesToTableData(entry.Report.Errors)},
		{"Entities", table.EntitiesToTableData(entry.Report.Entities)},
	}
	for _, s := range sections {
		if len(s.data.Rows) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(out, "\n%s:\n", s.title); err != nil {
			return err
		}
		if err := formatter.Format(out, s.data); err != nil {
			return err
		}
	}
	return nil
}
