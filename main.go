// Package main provides the minutes CLI entry point.
// minutes turns meeting transcripts into structured minutes: topics,
// action items and a summary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/romuloxaguiar/teste-yfbai3/cmd"
	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// ServiceName identifies this binary in version output.
const ServiceName = "minutes"

// Global flags.
var (
	cfgFile string
	debug   bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Meeting minutes engine",
	Long: `minutes turns meeting transcripts into structured minutes.

Each transcript is cleaned, split into speaker-aware chunks and analysed
by three stages: topic detection, action item recognition and summary
generation. Results pass a joint quality gate before they are returned.

COMMON WORKFLOWS:
  One-off run:      minutes process transcript.json
  Run the service:  minutes serve
  Swap a model:     minutes model update summary_generation --model <name>
  Check setup:      minutes config validate  →  minutes model status

DISCOVERY:
  minutes <command> --help    Subcommands, flags, and examples for any command
  minutes config show         Effective configuration (secrets masked)`,
	SilenceUsage: true,
}

// loadConfig loads the configuration named by --config and applies --debug.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
	return cfg, nil
}

// configFile loads path, falling back to --config when path is empty.
func configFile(path string) (*config.Config, error) {
	if path == "" {
		return loadConfig()
	}
	return config.Load(path)
}

// configPath returns the file --config names, or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.ConfigPath()
}

// Version command flags.
var (
	versionOutput string
	versionServer string
)

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the minutes binary.

Use --server to query a running service instead.
Use --output json for machine-readable output.

Examples:
  minutes version
  minutes version --output json
  minutes version --server http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get(ServiceName)
		if versionServer != "" {
			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			remote, err := fetchVersion(ctx, versionServer)
			if err != nil {
				return err
			}
			info = remote
		}

		out := c.OutOrStdout()
		switch strings.ToLower(versionOutput) {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		case "", "text":
			fmt.Fprintf(out, "%s version %s\n", info.ServiceName, info.Version)
			fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
			return nil
		default:
			return fmt.Errorf("invalid output format: %q (must be text or json)", versionOutput)
		}
	},
}

// fetchVersion queries the /version endpoint of a running service.
func fetchVersion(ctx context.Context, server string) (buildinfo.Info, error) {
	var info buildinfo.Info

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := strings.TrimRight(server, "/") + "/version"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return info, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent(ServiceName))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return info, fmt.Errorf("querying %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return info, fmt.Errorf("querying %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("decoding version: %w", err)
	}
	return info, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $MINUTES_CONFIG or ~/.minutes/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	versionCmd.Flags().StringVarP(&versionOutput, "output", "o", "text", "Output format: text, json")
	versionCmd.Flags().StringVar(&versionServer, "server", "", "Query the version of a running service at this URL")

	rootCmd.AddCommand(versionCmd)

	processDeps := cmd.DefaultProcessDeps()
	processDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewProcessCommand(processDeps))

	serveDeps := cmd.DefaultServeDeps()
	serveDeps.LoadConfig = loadConfig
	serveDeps.ConfigPath = configPath
	rootCmd.AddCommand(cmd.NewServeCommand(serveDeps))

	modelDeps := cmd.DefaultModelDeps()
	modelDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewModelCommand(modelDeps))

	rootCmd.AddCommand(cmd.NewConfigCommand(&cmd.ConfigCommandDeps{
		Load:       configFile,
		ConfigPath: configPath,
	}))
	rootCmd.AddCommand(cmd.NewAuthCommand(nil))

	dbDeps := cmd.DefaultDbDeps()
	dbDeps.LoadConfig = loadConfig
	rootCmd.AddCommand(cmd.NewDbCommand(dbDeps))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
