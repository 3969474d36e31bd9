// Package config provides commands for inspecting and validating the
// engine configuration.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agentstation/syncflow/cmd/application"
	"github.com/agentstation/syncflow/internal/cmd/alerts"
	"github.com/agentstation/syncflow/internal/cmd/emoji"
	"github.com/agentstation/syncflow/internal/cmd/output"
	"github.com/agentstation/syncflow/internal/cmd/table"
	appconfig "github.com/agentstation/syncflow/internal/config"
	"github.com/agentstation/syncflow/internal/sources/registry"
)

// NewCommand creates the config command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		GroupID: "management",
		Short:   "Show and validate the configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newShowCommand(app))
	cmd.AddCommand(newSourcesCommand(app))
	cmd.AddCommand(newValidateCommand(app))

	return cmd
}

func newShowCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Long: `Show prints the configuration after defaults, the config file and
SYNCFLOW_* environment variables are applied. Tokens are redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := output.ParseFormat(app.OutputFormat())
			if err != nil {
				return err
			}
			// nested config reads best as YAML
			if format.IsTable() {
				format = output.FormatYAML
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), app.Config().Sanitized())
		},
	}
}

func newSourcesCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List configured sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := output.Resolve(app.OutputFormat())
			if err != nil {
				return err
			}
			cfg := app.Config().Sanitized()
			return output.Print(cmd.OutOrStdout(), format, SourcesToTableData(cfg), cfg.Sources)
		},
	}
}

func newValidateCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file for errors",
		Example: `  syncflow config validate                # The file syncflow would load
  syncflow config validate ./prod.yaml    # A specific file`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.ConfigPath()
			if len(args) == 1 {
				path = args[0]
			}

			format, err := output.Resolve(app.OutputFormat())
			if err != nil {
				return err
			}
			writer := alerts.NewFormatWriter(cmd.OutOrStdout(), format)

			cfg, err := appconfig.Load(path)
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				if writeErr := writer.WriteAlert(alerts.NewError("Configuration is invalid").WithError(err)); writeErr != nil {
					return writeErr
				}
				return err
			}

			file := cfg.File
			if file == "" {
				file = "built-in demo configuration"
			}
			return writer.WriteAlert(alerts.NewSuccess("Configuration is valid").WithDetails(
				"file: "+file,
				fmt.Sprintf("sources: %d", len(cfg.Sources)),
				fmt.Sprintf("rules: %d", len(cfg.Rules)),
				"publish: "+describePublish(cfg.Publish),
				"history: "+string(cfg.History.Driver),
			))
		},
	}
}

// SourcesToTableData lists the configured sources.
func SourcesToTableData(cfg *appconfig.Config) table.Data {
	priority := make(map[string]int, len(cfg.Priority))
	for i, id := range cfg.Priority {
		priority[id] = i + 1
	}

	rows := make([][]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		rank := "-"
		if p, ok := priority[s.ID]; ok {
			rank = strconv.Itoa(p)
		}
		supported := emoji.Success
		if !registry.Has(s.Type) {
			supported = emoji.Error
		}

		fields := make([]string, 0, len(s.Schema.Fields))
		for _, f := range s.Schema.Fields {
			fields = append(fields, f.To)
		}

		rows = append(rows, []string{
			s.ID,
			supported + " " + string(s.Type),
			rank,
			s.Schema.EntityKey,
			strings.Join(fields, ", "),
			location(s),
		})
	}

	return table.Data{
		Headers:         []string{"ID", "Type", "Priority", "Entity Key", "Fields", "Location"},
		Rows:            rows,
		ColumnAlignment: []table.Align{table.AlignLeft, table.AlignLeft, table.AlignCenter, table.AlignLeft, table.AlignLeft, table.AlignLeft},
		WideColumns:     []int{4, 5},
	}
}

func location(s appconfig.SourceConfig) string {
	switch s.Type {
	case appconfig.SourceDemo:
		if s.Dataset != "" {
			return "demo:" + s.Dataset
		}
		return "demo:" + s.ID
	case appconfig.SourceFile:
		return s.Path
	case appconfig.SourceHTTP:
		return s.URL
	default:
		return "-"
	}
}

func describePublish(p appconfig.PublishConfig) string {
	if p.Type == appconfig.PublishFile {
		return "file " + p.Path
	}
	return string(p.Type)
}
