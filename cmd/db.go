package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/db"
)

// DbCommandDeps holds the dependencies for db commands.
type DbCommandDeps struct {
	LoadConfig  func() (*config.Config, error)
	ConnectToDB func(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error)
	Stdin       io.Reader
}

// DefaultDbDeps returns the default dependencies for production use.
func DefaultDbDeps() *DbCommandDeps {
	return &DbCommandDeps{
		LoadConfig: func() (*config.Config, error) { return config.Load("") },
		ConnectToDB: func(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
			return connectDatabase(ctx, cfg, newLogger(cfg))
		},
		Stdin: os.Stdin,
	}
}

// Db command flags.
var (
	dbDryRun bool
	dbYes    bool
	dbOutput string
)

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand(deps *DbCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultDbDeps()
	}

	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the minutes database",
		Long: `Manage the PostgreSQL database used by the postgres store.

Migrations are embedded in the binary and applied in version order,
each in its own transaction.

Commands:
  migrate   Apply pending migrations
  status    Show applied, pending and drifted migrations
  list      List the migrations shipped with this binary
  check     Ping the database and show pool statistics

Examples:
  minutes db migrate --dry-run
  minutes db migrate --yes
  minutes db status -o json`,
		Aliases: []string{"database"},
	}

	cmd.PersistentFlags().StringVarP(&dbOutput, "output", "o", "text", "Output format: text, json, yaml")

	cmd.AddCommand(newDbMigrateCommand(deps))
	cmd.AddCommand(newDbStatusCommand(deps))
	cmd.AddCommand(newDbListCommand())
	cmd.AddCommand(newDbCheckCommand(deps))

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand(deps *DbCommandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations",
		Long: `Apply every pending migration.

The pending migrations are listed first and confirmation is requested
unless --yes is given.

Examples:
  minutes db migrate --dry-run
  minutes db migrate
  minutes db migrate --yes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd, deps)
		},
	}

	cmd.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show pending migrations without applying them")
	cmd.Flags().BoolVarP(&dbYes, "yes", "y", false, "Apply without asking for confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		Long: `Show applied, pending and drifted migrations.

Drifted migrations are recorded as applied but are no longer shipped with
this binary.

Examples:
  minutes db status
  minutes db status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, deps, func(ctx context.Context, pool *pgxpool.Pool) error {
				status, err := db.GetMigrationStatus(ctx, pool, db.Embedded, db.EmbeddedDir)
				if err != nil {
					return fmt.Errorf("getting migration status: %w", err)
				}
				return writeOutput(cmd.OutOrStdout(), dbOutput, status, func(w io.Writer) error {
					return writeMigrationStatusText(w, status)
				})
			})
		},
	}
}

// newDbListCommand creates the 'db list' subcommand.
func newDbListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List shipped migrations",
		Long: `List the migrations embedded in this binary. No database is needed.

Examples:
  minutes db list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := ParseOutputFormat(dbOutput); err != nil {
				return err
			}
			migrations, err := db.FindMigrations(db.Embedded, db.EmbeddedDir)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), dbOutput, migrations, func(w io.Writer) error {
				for _, m := range migrations {
					fmt.Fprintf(w, "%s  %s\n", m.Version, m.Name)
				}
				return nil
			})
		},
	}
}

// newDbCheckCommand creates the 'db check' subcommand.
func newDbCheckCommand(deps *DbCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check database connectivity",
		Long: `Ping the database and show connection pool statistics.

Examples:
  minutes db check`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd, deps, func(ctx context.Context, pool *pgxpool.Pool) error {
				status := db.Check(ctx, pool)
				if err := writeOutput(cmd.OutOrStdout(), dbOutput, status, func(w io.Writer) error {
					state := "healthy"
					if !status.Healthy {
						state = "unhealthy: " + status.Error
					}
					fmt.Fprintf(w, "Database %s\n", state)
					fmt.Fprintf(w, "  Latency:     %s\n", status.Latency)
					fmt.Fprintf(w, "  Connections: %d total, %d acquired\n", status.TotalConns, status.AcquiredConns)
					return nil
				}); err != nil {
					return err
				}
				if !status.Healthy {
					return fmt.Errorf("database unhealthy: %s", status.Error)
				}
				return nil
			})
		},
	}
}

func runDbMigrate(cmd *cobra.Command, deps *DbCommandDeps) error {
	out := cmd.OutOrStdout()
	return withPool(cmd, deps, func(ctx context.Context, pool *pgxpool.Pool) error {
		status, err := db.GetMigrationStatus(ctx, pool, db.Embedded, db.EmbeddedDir)
		if err != nil {
			return fmt.Errorf("getting pending migrations: %w", err)
		}

		if len(status.Pending) == 0 {
			fmt.Fprintln(out, "No pending migrations.")
			return nil
		}

		fmt.Fprintf(out, "Pending migrations (%d):\n", len(status.Pending))
		for _, m := range status.Pending {
			fmt.Fprintf(out, "  %s - %s\n", m.Version, m.Name)
		}
		fmt.Fprintln(out)

		if dbDryRun {
			fmt.Fprintln(out, "Dry run mode: no migrations applied.")
			return nil
		}

		if !dbYes {
			fmt.Fprint(out, "Apply these migrations? (y/N): ")
			response, _ := bufio.NewReader(deps.Stdin).ReadString('\n')
			if strings.ToLower(strings.TrimSpace(response)) != "y" {
				fmt.Fprintln(out, "Migration cancelled.")
				return nil
			}
		}

		fmt.Fprintln(out, "Applying all pending migrations...")
		result, err := db.RunMigrations(ctx, pool, db.Embedded, db.EmbeddedDir)
		if err != nil {
			fmt.Fprintf(out, "\nMigration failed: %v\n", err)
			if result != nil && len(result.Applied) > 0 {
				fmt.Fprintln(out, "\nSuccessfully applied before failure:")
				for _, v := range result.Applied {
					fmt.Fprintf(out, "  + %s\n", v)
				}
			}
			return err
		}

		fmt.Fprintf(out, "\nSuccessfully applied %d migration(s):\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Fprintf(out, "  + %s\n", v)
		}
		return nil
	})
}

// withPool loads the configuration, connects and runs fn.
func withPool(cmd *cobra.Command, deps *DbCommandDeps, fn func(ctx context.Context, pool *pgxpool.Pool) error) error {
	if _, err := ParseOutputFormat(dbOutput); err != nil {
		return err
	}

	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	pool, err := deps.ConnectToDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, pool)
}

func writeMigrationStatusText(w io.Writer, status *db.MigrationStatus) error {
	fmt.Fprintf(w, "Applied: %d  Pending: %d  Drift: %d\n", len(status.Applied), len(status.Pending), len(status.Drift))

	section := func(title string, entries []db.MigrationStatusEntry) {
		if len(entries) == 0 {
			return
		}
		fmt.Fprintf(w, "\n%s:\n", title)
		for _, e := range entries {
			at := "-"
			if e.AppliedAt != nil {
				at = e.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "  %-6s %-19s %s\n", e.Version, at, truncateDbString(e.Name, 60))
		}
	}
	section("Applied", status.Applied)
	section("Pending", status.Pending)
	section("Drift (applied, not shipped)", status.Drift)
	return nil
}

func truncateDbString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
