package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/config"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

type fakeUpdater struct {
	calls []string
	opts  []update.Options
	fail  map[string]bool
}

func (f *fakeUpdater) UpdateModel(ctx context.Context, name string, cfg stage.Config, opts update.Options) (update.Outcome, error) {
	f.calls = append(f.calls, name)
	f.opts = append(f.opts, opts)
	if f.fail[name] {
		return update.Outcome{Stage: name, Result: update.RolledBack}, fmt.Errorf("load failed")
	}
	return update.Outcome{Stage: name, Result: update.Committed, Model: cfg.ModelName}, nil
}

func TestServeCommand_Structure(t *testing.T) {
	cmd := NewServeCommand(nil)

	assert.Equal(t, "serve", cmd.Use)
	assert.Contains(t, cmd.Long, "Examples:")
	for _, flag := range []string{"http-addr", "grpc-addr", "no-watch"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), flag)
	}
}

func TestServeCommand_ConfigError(t *testing.T) {
	deps := DefaultServeDeps()
	deps.LoadConfig = func() (*config.Config, error) { return nil, errors.New("bad yaml") }

	cmd := NewServeCommand(deps)
	cmd.SetArgs([]string{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading configuration")
}

func TestApplyStageChanges(t *testing.T) {
	cfg := testConfig()
	cfg.Stages.TopicDetection.ModelName = "bert-large-uncased"
	cfg.Stages.SummaryGeneration.ModelName = "t5-base"

	u := &fakeUpdater{fail: map[string]bool{types.StageSummaryGeneration: true}}
	change := config.Change{
		Config: cfg,
		Stages: []string{types.StageTopicDetection, types.StageSummaryGeneration},
	}

	outcomes := applyStageChanges(context.Background(), u, change, logging.NewNopLogger())

	require.Len(t, outcomes, 2)
	assert.Equal(t, []string{types.StageTopicDetection, types.StageSummaryGeneration}, u.calls)
	for _, o := range u.opts {
		assert.Equal(t, ReloadReason, o.Reason)
		assert.False(t, o.Force)
	}
	assert.Equal(t, update.Committed, outcomes[0].Result)
	assert.Equal(t, "bert-large-uncased", outcomes[0].Model)
	assert.Equal(t, update.RolledBack, outcomes[1].Result)
}

func TestApplyStageChanges_SkipsUnknownStage(t *testing.T) {
	u := &fakeUpdater{}
	outcomes := applyStageChanges(context.Background(), u, config.Change{
		Config: testConfig(),
		Stages: []string{"translation"},
	}, logging.NewNopLogger())

	assert.Empty(t, outcomes)
	assert.Empty(t, u.calls)
}

func TestWatchedPath(t *testing.T) {
	assert.Equal(t, "", watchedPath(nil))

	missing := filepath.Join(t.TempDir(), "config.yaml")
	assert.Equal(t, "", watchedPath(func() (string, error) { return missing, nil }))

	assert.Equal(t, "", watchedPath(func() (string, error) { return "", errors.New("no home") }))

	existing := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("{}\n"), 0o600))
	assert.Equal(t, existing, watchedPath(func() (string, error) { return existing, nil }))
}

func TestIgnoreCanceled(t *testing.T) {
	assert.NoError(t, ignoreCanceled(nil))
	assert.NoError(t, ignoreCanceled(context.Canceled))
	assert.NoError(t, ignoreCanceled(fmt.Errorf("watch: %w", context.Canceled)))

	err := errors.New("boom")
	assert.Equal(t, err, ignoreCanceled(err))
}
