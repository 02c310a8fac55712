package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// ModelCommandDeps holds the dependencies for model commands.
type ModelCommandDeps struct {
	LoadConfig func() (*config.Config, error)
	NewLogger  func(cfg *config.Config) logging.Logger
	NewRuntime func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Runtime, error)
}

// DefaultModelDeps returns the default dependencies for production use.
func DefaultModelDeps() *ModelCommandDeps {
	return &ModelCommandDeps{
		LoadConfig: func() (*config.Config, error) { return config.Load("") },
		NewLogger:  newLogger,
		NewRuntime: NewRuntime,
	}
}

// Model command flags.
var (
	modelOutput string
)

// NewModelCommand creates the root model command with all subcommands.
func NewModelCommand(deps *ModelCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultModelDeps()
	}

	cmd := &cobra.Command{
		Use:   "model",
		Short: "Inspect and update stage models",
		Long: `Inspect and update the models behind the analysis stages.

Each stage (topic_detection, action_item_recognition, summary_generation)
has one active model. An update loads the candidate model, validates it
against the active one and swaps it in only when quality holds; otherwise
the active model stays in place.

These commands load the configured models in-process. To update a running
service, use POST /api/v1/models/{stage} or edit the watched config file.

Commands:
  status     Show the active model, state and statistics of every stage
  update     Load, validate and swap a stage model
  history    Show recorded model updates

Examples:
  minutes model status
  minutes model update summary_generation --model facebook/bart-large-xsum
  minutes model history -o json`,
		Aliases: []string{"models"},
	}

	cmd.PersistentFlags().StringVarP(&modelOutput, "output", "o", "text", "Output format: text, json, yaml")

	cmd.AddCommand(newModelStatusCommand(deps))
	cmd.AddCommand(newModelUpdateCommand(deps))
	cmd.AddCommand(newModelHistoryCommand(deps))

	return cmd
}

// newModelStatusCommand creates the 'model status' subcommand.
func newModelStatusCommand(deps *ModelCommandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show stage model status",
		Long: `Display the active model of every stage with its lifecycle state,
version and running statistics.

Examples:
  minutes model status
  minutes model status -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *Runtime) error {
				statuses := rt.Coordinator.Status()
				return writeOutput(cmd.OutOrStdout(), modelOutput, statuses, func(w io.Writer) error {
					return writeModelStatusText(w, statuses)
				})
			})
		},
	}
}

// newModelUpdateCommand creates the 'model update' subcommand.
func newModelUpdateCommand(deps *ModelCommandDeps) *cobra.Command {
	var (
		modelName      string
		threshold      float64
		target         float64
		batchSize      int
		force          bool
		skipValidation bool
		reason         string
	)

	cmd := &cobra.Command{
		Use:   "update <stage>",
		Short: "Update a stage model",
		Long: `Load a candidate model for a stage, validate it against the active
model and swap it in.

The candidate starts from the configured stage settings; flags override
individual values. The update is rolled back when the candidate fails to
load, misses its performance target, or degrades quality by more than
update.max_degradation.

Stages: ` + strings.Join(types.Stages, ", ") + `

Examples:
  # Switch the summary model
  minutes model update summary_generation --model facebook/bart-large-xsum

  # Raise the action item threshold
  minutes model update action_item_recognition --threshold 0.8

  # Reload the same model without validation
  minutes model update topic_detection --force --skip-validation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageName := args[0]
			return withRuntime(cmd, deps, func(ctx context.Context, rt *Runtime) error {
				cfg, ok := rt.Config.Stages.Get(stageName)
				if !ok {
					return fmt.Errorf("unknown stage: %q (must be one of %s)", stageName, strings.Join(types.Stages, ", "))
				}
				flags := cmd.Flags()
				if flags.Changed("model") {
					cfg.ModelName = modelName
				}
				if flags.Changed("threshold") {
					cfg.ConfidenceThreshold = threshold
				}
				if flags.Changed("target") {
					cfg.PerformanceTarget = target
				}
				if flags.Changed("batch-size") {
					cfg.BatchSize = batchSize
				}

				outcome, err := rt.Coordinator.UpdateModel(ctx, stageName, cfg, update.Options{
					Force:          force,
					SkipValidation: skipValidation,
					Reason:         reason,
				})
				if outcome.Result != "" {
					if werr := writeOutput(cmd.OutOrStdout(), modelOutput, outcome, func(w io.Writer) error {
						return writeOutcomeText(w, outcome)
					}); werr != nil {
						return werr
					}
				}
				if err != nil {
					return fmt.Errorf("updating %s: %w", stageName, err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&modelName, "model", "", "Candidate model name")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Confidence threshold in [0,1]")
	cmd.Flags().Float64Var(&target, "target", 0, "Performance target in [0,1]")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Inference batch size")
	cmd.Flags().BoolVar(&force, "force", false, "Reload even when the configuration is unchanged")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Commit without comparing against the active model")
	cmd.Flags().StringVar(&reason, "reason", "manual update", "Reason recorded with the update")

	return cmd
}

// newModelHistoryCommand creates the 'model history' subcommand.
func newModelHistoryCommand(deps *ModelCommandDeps) *cobra.Command {
	var (
		stageName string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded model updates",
		Long: `Show model update outcomes recorded in the store, newest first.

Only the postgres store keeps history across runs.

Examples:
  minutes model history
  minutes model history --stage summary_generation --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, deps, func(ctx context.Context, rt *Runtime) error {
				outcomes, err := rt.Store.ListModelUpdates(ctx, stageName, limit)
				if err != nil {
					return fmt.Errorf("listing model updates: %w", err)
				}
				return writeOutput(cmd.OutOrStdout(), modelOutput, outcomes, func(w io.Writer) error {
					return writeHistoryText(w, outcomes)
				})
			})
		},
	}

	cmd.Flags().StringVar(&stageName, "stage", "", "Only show updates of this stage")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of updates to show")

	return cmd
}

// withRuntime loads the configuration, builds a runtime and runs fn.
func withRuntime(cmd *cobra.Command, deps *ModelCommandDeps, fn func(ctx context.Context, rt *Runtime) error) error {
	if _, err := ParseOutputFormat(modelOutput); err != nil {
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

	rt, err := deps.NewRuntime(ctx, cfg, deps.NewLogger(cfg))
	if err != nil {
		return err
	}
	defer rt.Close()

	return fn(ctx, rt)
}

func writeModelStatusText(w io.Writer, statuses []update.Status) error {
	fmt.Fprintf(w, "%-26s %-10s %-28s %-8s %-10s %s\n", "STAGE", "STATE", "MODEL", "VERSION", "ACCURACY", "PROCESSED")
	for _, s := range statuses {
		fmt.Fprintf(w, "%-26s %-10s %-28s %-8d %-10.3f %d\n",
			s.Stage, s.State, s.Model, s.Version, s.Stats.AccuracyEstimate, s.Stats.TotalProcessed)
	}
	return nil
}

func writeOutcomeText(w io.Writer, o update.Outcome) error {
	fmt.Fprintf(w, "Update %s: %s\n", o.ID, o.Result)
	fmt.Fprintf(w, "  Stage:       %s\n", o.Stage)
	fmt.Fprintf(w, "  Model:       %s -> %s\n", o.PreviousModel, o.Model)
	if o.Result == update.Committed {
		fmt.Fprintf(w, "  Version:     %d\n", o.Version)
	}
	fmt.Fprintf(w, "  Baseline:    %.3f\n", o.BaselineScore)
	fmt.Fprintf(w, "  Candidate:   %.3f\n", o.CandidateScore)
	fmt.Fprintf(w, "  Degradation: %.3f\n", o.Degradation)
	if o.Reason != "" {
		fmt.Fprintf(w, "  Reason:      %s\n", o.Reason)
	}
	fmt.Fprintf(w, "  Duration:    %s\n", o.Duration)
	return nil
}

func writeHistoryText(w io.Writer, outcomes []update.Outcome) error {
	if len(outcomes) == 0 {
		fmt.Fprintln(w, "No model updates recorded.")
		return nil
	}
	fmt.Fprintf(w, "%-20s %-26s %-12s %-28s %s\n", "AT", "STAGE", "RESULT", "MODEL", "REASON")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%-20s %-26s %-12s %-28s %s\n",
			o.At.Format("2006-01-02 15:04:05"), o.Stage, o.Result, o.Model, o.Reason)
	}
	return nil
}
