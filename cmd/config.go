package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romuloxaguiar/teste-yfbai3/config"
)

// ConfigCommandDeps holds the dependencies for config commands.
type ConfigCommandDeps struct {
	// Load loads the file at path, or the default location when path is
	// empty.
	Load       func(path string) (*config.Config, error)
	ConfigPath func() (string, error)
}

// DefaultConfigDeps returns the default dependencies for production use.
func DefaultConfigDeps() *ConfigCommandDeps {
	return &ConfigCommandDeps{
		Load:       config.Load,
		ConfigPath: config.ConfigPath,
	}
}

// NewConfigCommand creates the root config command with all subcommands.
func NewConfigCommand(deps *ConfigCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultConfigDeps()
	}

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the engine configuration",
		Long: `Inspect and validate the engine configuration.

Configuration is loaded in this order (later sources override earlier):
  1. Built-in defaults
  2. The config file ($MINUTES_CONFIG, or ~/.minutes/config.yaml)
  3. .env in the working directory
  4. Environment variables (MINUTES_*)

Commands:
  validate   Check a configuration for errors
  show       Print the effective configuration with secrets masked
  path       Print the config file location

Examples:
  minutes config validate
  minutes config validate ./staging.yaml
  minutes config show`,
	}

	cmd.AddCommand(newConfigValidateCommand(deps))
	cmd.AddCommand(newConfigShowCommand(deps))
	cmd.AddCommand(newConfigPathCommand(deps))

	return cmd
}

// newConfigValidateCommand creates the 'config validate' subcommand.
func newConfigValidateCommand(deps *ConfigCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate the configuration",
		Long: `Load the configuration and report every problem found.

Without an argument the effective configuration is validated; with a file
argument only that file (plus the environment) is checked.

Examples:
  minutes config validate
  minutes config validate ./staging.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if _, err := deps.Load(path); err != nil {
				return err
			}
			if path == "" {
				path = "effective configuration"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid (%s)\n", path)
			return nil
		},
	}
}

// newConfigShowCommand creates the 'config show' subcommand.
func newConfigShowCommand(deps *ConfigCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Print the effective configuration as YAML. Passwords are masked.

Examples:
  minutes config show
  MINUTES_BACKEND=remote MINUTES_BACKEND_URL=http://gpu01:8000 minutes config show`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.Load("")
			if err != nil {
				return err
			}
			data, err := cfg.Redacted().Marshal()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// newConfigPathCommand creates the 'config path' subcommand.
func newConfigPathCommand(deps *ConfigCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := deps.ConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
