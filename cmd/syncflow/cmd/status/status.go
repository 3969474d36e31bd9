// Package status provides the status command.
package status

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow"
	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/emoji"
	"github.com/agentstation/syncflow/internal/cmd/output"
	"github.com/agentstation/syncflow/internal/cmd/table"
)

// NewCommand creates the status command.
func NewCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: "core",
		Short:   "Show engine status and the last run's outcome",
		Long: `Status shows whether a run is active and how the last recorded run ended.

The last run survives restarts only with the sqlite history driver.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := output.Resolve(app.OutputFormat())
			if err != nil {
				return err
			}
			engine, err := app.Engine()
			if err != nil {
				return err
			}
			st := engine.Status()
			return output.Print(cmd.OutOrStdout(), format, ToTableData(st), st)
		},
	}
}

// ToTableData renders a status as a property table.
func ToTableData(st syncflow.Status) table.Data {
	state := emoji.Success + " " + string(st.State)
	rows := [][]string{{"State", state}}

	if a := st.Active; a != nil {
		rows[0][1] = emoji.Running + " " + string(st.State)
		rows = append(rows,
			[]string{"Active Run", a.RunID},
			[]string{"Trigger", a.Trigger},
			[]string{"Phase", string(a.Phase)},
			[]string{"Started", table.FormatTime(a.StartedAt)},
		)
	}

	if l := st.Last; l != nil {
		rows = append(rows,
			[]string{"Last Run", l.RunID},
			[]string{"Last Outcome", fmt.Sprintf("%s %s", table.OutcomeIcon(l.Outcome.Kind), l.Outcome.String())},
			[]string{"Last Finished", table.FormatTime(l.FinishedAt)},
		)
	} else {
		rows = append(rows, []string{"Last Run", emoji.Optional})
	}

	return table.Data{Headers: []string{"Property", "Value"}, Rows: rows}
}
