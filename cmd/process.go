package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/transcript"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// ProcessCommandDeps holds the dependencies for the process command.
type ProcessCommandDeps struct {
	LoadConfig func() (*config.Config, error)
	NewLogger  func(cfg *config.Config) logging.Logger
	NewRuntime func(ctx context.Context, cfg *config.Config, logger logging.Logger) (*Runtime, error)
	Stdin      io.Reader
}

// DefaultProcessDeps returns the default dependencies for production use.
func DefaultProcessDeps() *ProcessCommandDeps {
	return &ProcessCommandDeps{
		LoadConfig: func() (*config.Config, error) { return config.Load("") },
		NewLogger:  newLogger,
		NewRuntime: NewRuntime,
		Stdin:      os.Stdin,
	}
}

// NewProcessCommand creates the process command.
func NewProcessCommand(deps *ProcessCommandDeps) *cobra.Command {
	if deps == nil {
		deps = DefaultProcessDeps()
	}

	var (
		meetingID string
		format    string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "process <file>|-",
		Short: "Generate minutes for a transcript",
		Long: `Run a transcript through the engine once and print the minutes.

The input is one of:

  json          {"meeting_id": "m-42", "text": "Alice: ...", "processing_options": {...}}
  text          plain text, "Speaker: text" lines where speakers are known
  vtt           WebVTT captions (speaker headers, <v> voice tags, or "Name: " cues)
  timestamped   "0:11 : Speaker Name : text" exports

The format is detected from the content unless --format is given. Every
format except json requires --meeting-id. Use - to read from stdin.

Stage models are loaded from the configuration before processing starts;
nothing is kept running afterwards.

Examples:
  # Process a JSON transcript
  minutes process transcript.json

  # Process plain text from stdin
  cat notes.txt | minutes process - --meeting-id weekly-sync

  # Process recorded captions
  minutes process call.vtt --meeting-id weekly-sync

  # Human-readable output
  minutes process transcript.json -o text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, deps, args[0], meetingID, format, output)
		},
	}

	cmd.Flags().StringVar(&meetingID, "meeting-id", "", "Meeting ID (required unless the input is JSON, overrides the JSON value)")
	cmd.Flags().StringVar(&format, "format", string(transcript.FormatAuto), "Input format: auto, json, text, vtt, timestamped")
	cmd.Flags().StringVarP(&output, "output", "o", string(OutputJSON), "Output format: text, json, yaml")

	return cmd
}

func runProcess(cmd *cobra.Command, deps *ProcessCommandDeps, path, meetingID, format, output string) error {
	if _, err := ParseOutputFormat(output); err != nil {
		return err
	}
	f, err := transcript.ParseFormat(format)
	if err != nil {
		return err
	}

	data, err := readInput(path, deps.Stdin)
	if err != nil {
		return err
	}
	t, err := parseTranscript(data, f, meetingID)
	if err != nil {
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

	res, err := rt.Engine.Process(ctx, t)
	if err != nil {
		return fmt.Errorf("processing transcript: %w", err)
	}

	return writeOutput(cmd.OutOrStdout(), output, res, func(w io.Writer) error {
		return writeMinutesText(w, res)
	})
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return data, nil
}

// parseTranscript decodes data in format f, detecting it when f is
// FormatAuto. meetingID, when set, replaces the document's meeting ID.
func parseTranscript(data []byte, f transcript.Format, meetingID string) (types.Transcript, error) {
	var t types.Transcript

	if f == transcript.FormatAuto {
		f = transcript.Detect(data)
	}

	switch f {
	case transcript.FormatJSON:
		if err := json.Unmarshal(bytes.TrimSpace(data), &t); err != nil {
			return t, fmt.Errorf("parsing transcript JSON: %w", err)
		}
	case transcript.FormatVTT, transcript.FormatTimestamped:
		doc, err := transcript.Decode(data, f)
		if err != nil {
			return t, fmt.Errorf("parsing %s transcript: %w", f, err)
		}
		if len(doc.Segments) == 0 {
			return t, fmt.Errorf("no transcript segments found in %s input", f)
		}
		t.Text = doc.Text()
	default:
		t.Text = string(data)
	}

	if meetingID != "" {
		t.MeetingID = meetingID
	}
	if strings.TrimSpace(t.MeetingID) == "" {
		return t, fmt.Errorf("meeting ID is required (use --meeting-id)")
	}
	return t, nil
}

func writeMinutesText(w io.Writer, res *types.MinutesResult) error {
	fmt.Fprintf(w, "Minutes %s (meeting %s)\n", res.ID, res.MeetingID)
	fmt.Fprintf(w, "  Processed in %s on %s", res.Metadata.ProcessingTime, res.Metadata.Device)
	if res.Metadata.CacheHit {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "\nSummary:")
	fmt.Fprintf(w, "  %s\n", res.Summary.Summary)

	fmt.Fprintf(w, "\nTopics (%d):\n", len(res.Topics.Topics))
	for _, topic := range res.Topics.Topics {
		fmt.Fprintf(w, "  - %s (%.2f)", topic.Name, topic.Relevance)
		if topic.Context != nil {
			fmt.Fprintf(w, " context %.2f", topic.Context.Combined)
		}
		if len(topic.Keywords) > 0 {
			fmt.Fprintf(w, " [%s]", strings.Join(topic.Keywords, ", "))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\nAction items (%d):\n", len(res.ActionItems.Items))
	for _, item := range res.ActionItems.Items {
		fmt.Fprintf(w, "  - %s\n", item.Text)
		var details []string
		if a := item.Metadata.Assignee; a != "" {
			details = append(details, "assignee: "+a)
		}
		if d := item.Metadata.Deadline; d != "" {
			details = append(details, "due: "+d)
		}
		if p := item.Metadata.Priority; p != "" {
			details = append(details, "priority: "+p)
		}
		if len(details) > 0 {
			fmt.Fprintf(w, "    %s\n", strings.Join(details, ", "))
		}
	}
	return nil
}
