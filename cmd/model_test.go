package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

func testModelDeps() *ModelCommandDeps {
	return &ModelCommandDeps{
		LoadConfig: func() (*config.Config, error) { return testConfig(), nil },
		NewLogger:  nopLogger,
		NewRuntime: NewRuntime,
	}
}

func executeModel(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewModelCommand(testModelDeps())
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestModelCommand_Structure(t *testing.T) {
	cmd := NewModelCommand(nil)

	assert.Equal(t, "model", cmd.Use)
	assert.Contains(t, cmd.Aliases, "models")
	assert.NotNil(t, cmd.PersistentFlags().Lookup("output"))

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	assert.True(t, names["status"])
	assert.True(t, names["update"])
	assert.True(t, names["history"])

	upd, _, err := cmd.Find([]string{"update"})
	require.NoError(t, err)
	for _, flag := range []string{"model", "threshold", "target", "batch-size", "force", "skip-validation", "reason"} {
		assert.NotNil(t, upd.Flags().Lookup(flag), flag)
	}
}

func TestModelStatus_JSON(t *testing.T) {
	out, err := executeModel(t, "status", "-o", "json")
	require.NoError(t, err)

	var statuses []update.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, len(types.Stages))
	for i, s := range statuses {
		assert.Equal(t, types.Stages[i], s.Stage)
		assert.NotEmpty(t, s.Model)
		assert.Equal(t, int64(1), s.Version)
	}
}

func TestModelStatus_Text(t *testing.T) {
	out, err := executeModel(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "STAGE")
	for _, name := range types.Stages {
		assert.Contains(t, out, name)
	}
}

func TestModelUpdate_Commits(t *testing.T) {
	out, err := executeModel(t, "update", types.StageTopicDetection,
		"--model", "bert-large-uncased", "--skip-validation", "--reason", "upgrade", "-o", "json")
	require.NoError(t, err)

	var outcome update.Outcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.Equal(t, update.Committed, outcome.Result)
	assert.Equal(t, "bert-large-uncased", outcome.Model)
	assert.Equal(t, int64(2), outcome.Version)
	assert.Equal(t, "upgrade", outcome.Reason)
}

func TestModelUpdate_RolledBack(t *testing.T) {
	out, err := executeModel(t, "update", types.StageActionItemRecognition, "--threshold", "2", "-o", "text")
	require.Error(t, err)
	assert.Contains(t, out, "rolled_back")
	assert.Contains(t, out, "invalid configuration")
}

func TestModelUpdate_UnknownStage(t *testing.T) {
	_, err := executeModel(t, "update", "translation", "--model", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stage")
}

func TestModelHistory_Empty(t *testing.T) {
	out, err := executeModel(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No model updates recorded.")
}
