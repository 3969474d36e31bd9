// Package override provides commands for the manual overrides that settle
// fields left for review.
package override

import (
	"fmt"
	"os/user"
	"strconv"
	"time"

	"github.com/agentstation/utc"
	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/alerts"
	"github.com/agentstation/syncflow/internal/cmd/output"
	"github.com/agentstation/syncflow/internal/cmd/table"
	"github.com/agentstation/syncflow/pkg/errors"
	"github.com/agentstation/syncflow/pkg/history"
	"github.com/agentstation/syncflow/pkg/records"
)

// NewCommand creates the override command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "override",
		Aliases: []string{"overrides"},
		GroupID: "management",
		Short:   "Manage manual overrides for fields that need review",
		Long: `A field whose conflict is resolved by a manual rule waits for review.
An override records the chosen value; later runs reuse it for that entity
and field instead of asking again.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listOverrides(cmd, app)
		},
	}

	cmd.AddCommand(newListCommand(app))
	cmd.AddCommand(newSetCommand(app))
	cmd.AddCommand(newDeleteCommand(app))

	return cmd
}

func newListCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored overrides",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listOverrides(cmd, app)
		},
	}
}

func newSetCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <entity> <field> <value>",
		Short: "Record the value to use for an entity's field",
		Example: `  syncflow override set "Acme Corp" stage "Closed Won" --kind enum
  syncflow override set globex amount 125000 --kind number --note "per finance"`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := cmd.Flags().GetString("kind")
			if err != nil {
				return err
			}
			note, err := cmd.Flags().GetString("note")
			if err != nil {
				return err
			}
			setBy, err := cmd.Flags().GetString("by")
			if err != nil {
				return err
			}

			value, err := ParseValue(kind, args[2])
			if err != nil {
				return err
			}
			if setBy == "" {
				setBy = currentUser()
			}

			engine, err := app.Engine()
			if err != nil {
				return err
			}
			o := history.Override{
				EntityKey: args[0],
				Field:     args[1],
				Value:     value,
				SetBy:     setBy,
				Note:      note,
			}
			if err := engine.SetOverride(cmd.Context(), o); err != nil {
				return err
			}

			msg := fmt.Sprintf("Override set: %s.%s = %s", args[0], args[1], value)
			return writeAlert(cmd, app, alerts.NewSuccess(msg))
		},
	}

	cmd.Flags().String("kind", "string", "Value kind: string, number, timestamp, enum")
	cmd.Flags().String("note", "", "Reason for the override")
	cmd.Flags().String("by", "", "Who set the override (defaults to the current user)")

	return cmd
}

func newDeleteCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <entity> <field>",
		Aliases: []string{"rm"},
		Short:   "Remove an override so the field is reviewed again",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := app.Engine()
			if err != nil {
				return err
			}
			if err := engine.DeleteOverride(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			msg := fmt.Sprintf("Override deleted: %s.%s", args[0], args[1])
			return writeAlert(cmd, app, alerts.NewSuccess(msg))
		},
	}
}

func listOverrides(cmd *cobra.Command, app application.Application) error {
	format, err := output.Resolve(app.OutputFormat())
	if err != nil {
		return err
	}
	engine, err := app.Engine()
	if err != nil {
		return err
	}
	list, err := engine.Overrides(cmd.Context())
	if err != nil {
		return err
	}
	if format.IsTable() && len(list) == 0 {
		return writeAlert(cmd, app, alerts.NewInfo("No overrides stored"))
	}
	return output.Print(cmd.OutOrStdout(), format, table.OverridesToTableData(list), list)
}

func writeAlert(cmd *cobra.Command, app application.Application, a *alerts.Alert) error {
	format, err := output.Resolve(app.OutputFormat())
	if err != nil {
		return err
	}
	return alerts.NewFormatWriter(cmd.OutOrStdout(), format).WriteAlert(a)
}

// ParseValue converts command-line text to a typed value of the given kind.
// Timestamps accept RFC 3339 or a plain date.
func ParseValue(kind, text string) (records.Value, error) {
	k, ok := records.ParseKind(kind)
	if !ok || (k == records.KindAbsent && kind != "") {
		return records.Value{}, &errors.ValidationError{
			Field:   "kind",
			Value:   kind,
			Message: "must be one of string, number, timestamp, enum",
		}
	}

	switch k {
	case records.KindNumber:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return records.Value{}, &errors.ValidationError{Field: "value", Value: text, Message: "not a number"}
		}
		return records.Number(f), nil
	case records.KindTimestamp:
		for _, layout := range []string{time.RFC3339, time.DateOnly} {
			if t, err := time.Parse(layout, text); err == nil {
				return records.Timestamp(utc.New(t)), nil
			}
		}
		return records.Value{}, &errors.ValidationError{
			Field:   "value",
			Value:   text,
			Message: "timestamp must be RFC 3339 or YYYY-MM-DD",
		}
	case records.KindEnum:
		return records.Enum(text), nil
	default:
		return records.String(text), nil
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return ""
}
