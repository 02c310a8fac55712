package cmd

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{in: "", want: OutputText},
		{in: "text", want: OutputText},
		{in: "JSON", want: OutputJSON},
		{in: " yaml ", want: OutputYAML},
		{in: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestWriteOutput(t *testing.T) {
	v := struct {
		StageName string `json:"stage_name"`
		Version   int    `json:"version"`
	}{StageName: "topic_detection", Version: 2}

	text := func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s v%d\n", v.StageName, v.Version)
		return err
	}

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "text", v, text))
	assert.Equal(t, "topic_detection v2\n", buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "json", v, text))
	assert.JSONEq(t, `{"stage_name":"topic_detection","version":2}`, buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "yaml", v, text))
	assert.Contains(t, buf.String(), "stage_name: topic_detection")
	assert.Contains(t, buf.String(), "version: 2")

	assert.Error(t, writeOutput(&buf, "csv", v, text))
}
