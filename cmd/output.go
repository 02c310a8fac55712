package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

// Output formats.
const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

// ParseOutputFormat validates s. An empty string selects text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	case OutputYAML:
		return OutputYAML, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (must be text, json, or yaml)", s)
	}
}

// writeOutput prints v in format. text renders the text form.
func writeOutput(w io.Writer, format string, v any, text func(io.Writer) error) error {
	f, err := ParseOutputFormat(format)
	if err != nil {
		return err
	}
	switch f {
	case OutputJSON:
		return writeJSON(w, v)
	case OutputYAML:
		return writeYAML(w, v)
	default:
		return text(w)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON so field names match the JSON output.
func writeYAML(w io.Writer, v any) error {
	jdata, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var obj any
	if err := json.Unmarshal(jdata, &obj); err != nil {
		return err
	}
	data, err := yaml.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// newLogger builds the logger described by cfg.
func newLogger(cfg *config.Config) logging.Logger {
	return logging.NewLogger(cfg.Logging.Logger())
}
