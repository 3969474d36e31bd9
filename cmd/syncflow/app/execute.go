package app

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	configcmd "github.com/agentstation/syncflow/cmd/syncflow/cmd/config"
	historycmd "github.com/agentstation/syncflow/cmd/syncflow/cmd/history"
	"github.com/agentstation/syncflow/cmd/syncflow/cmd/override"
	"github.com/agentstation/syncflow/cmd/syncflow/cmd/run"
	"github.com/agentstation/syncflow/cmd/syncflow/cmd/serve"
	"github.com/agentstation/syncflow/cmd/syncflow/cmd/status"
	"github.com/agentstation/syncflow/cmd/syncflow/cmd/version"
)

// Execute runs the syncflow CLI application with the given arguments.
// This is the main entry point called from main.go.
func (a *App) Execute(ctx context.Context, args []string) error {
	rootCmd := a.createRootCommand()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// createRootCommand creates the root cobra command with all subcommands.
func (a *App) createRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "syncflow",
		Short:   "Merge records from several sources into one view",
		Version: a.version,
		Long: `Syncflow reconciles records describing the same entities across
independent sources (a CRM, an issue tracker, a spreadsheet) into one merged
view, resolves field-level conflicts with configurable rules, and keeps an
auditable report of every run.

Without a config file syncflow runs against built-in demo sources.`,
		PersistentPreRunE: a.setupCommand,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}

	rootCmd.AddGroup(&cobra.Group{
		ID:    "core",
		Title: "Core Commands:",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "management",
		Title: "Management Commands:",
	})

	// Add global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default is ./syncflow.yaml or $HOME/.config/syncflow/syncflow.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (shortcut for --log-level=debug)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output (shortcut for --log-level=warn)")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringP("format", "o", "", "output format: table, json, yaml, wide")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace, debug, info, warn, error (overrides -v/-q)")

	rootCmd.SetVersionTemplate("syncflow {{.Version}}\n")

	a.registerCommands(rootCmd)

	return rootCmd
}

// setupCommand is called before any command runs.
func (a *App) setupCommand(cmd *cobra.Command, _ []string) error {
	// These flags are defined as persistent flags in createRootCommand, so errors indicate programming errors
	verbose := mustGetBool(cmd, "verbose")
	quiet := mustGetBool(cmd, "quiet")
	noColor := mustGetBool(cmd, "no-color")
	format := mustGetString(cmd, "format")
	logLevel := mustGetString(cmd, "log-level")
	configFile := mustGetString(cmd, "config")

	a.config.UpdateFromFlags(verbose, quiet, noColor, format, logLevel, configFile)

	// Reinitialize logger with updated config
	logger := NewLogger(a.config)
	a.logger = &logger

	return nil
}

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(run.NewCommand(a))
	rootCmd.AddCommand(serve.NewCommand(a))
	rootCmd.AddCommand(status.NewCommand(a))
	rootCmd.AddCommand(historycmd.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(override.NewCommand(a))
	rootCmd.AddCommand(configcmd.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(version.NewCommand(a))
}

// ExitOnError is a helper that prints an error and exits with status 1.
// This is meant to be used in main.go for top-level error handling.
func ExitOnError(err error) {
	if err != nil {
		//nolint:errcheck // Ignoring write error since we're exiting anyway
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// mustGetBool retrieves a boolean flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetBool(cmd *cobra.Command, name string) bool {
	val, err := cmd.Flags().GetBool(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}

// mustGetString retrieves a string flag value or panics if the flag doesn't exist.
// This should only be used for flags defined in this package.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic("programming error: failed to get flag " + name + ": " + err.Error())
	}
	return val
}
