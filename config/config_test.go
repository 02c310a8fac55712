package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// isolate points the config lookup at an empty directory and runs the test
// from there so no stray .env or config file is picked up.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MINUTES_CONFIG_DIR", dir)
	t.Setenv("MINUTES_CONFIG", "")
	t.Chdir(dir)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "bert-base-uncased", cfg.Stages.TopicDetection.ModelName)
	assert.Equal(t, "roberta-base", cfg.Stages.ActionItemRecognition.ModelName)
	assert.Equal(t, "facebook/bart-large-cnn", cfg.Stages.SummaryGeneration.ModelName)
	assert.Equal(t, 2048, cfg.Preprocessing.MaxChunkSize)
	assert.Equal(t, BackendLexical, cfg.Backend.Kind)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, DefaultStageTimeout, cfg.Engine.StageTimeout)
	assert.Equal(t, DefaultChunkTimeout, cfg.Engine.ChunkTimeout)
	assert.False(t, cfg.Redis.Enabled())
}

func TestStagesConfig_Map(t *testing.T) {
	cfg := DefaultConfig()
	m := cfg.Stages.Map()

	require.Len(t, m, 3)
	for _, name := range types.Stages {
		got, ok := cfg.Stages.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, m[name], got)
	}
	_, ok := cfg.Stages.Get("transcription")
	assert.False(t, ok)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, DefaultConfigFile)
	writeFile(t, path, `
stages:
  topic_detection:
    model_name: bert-large-uncased
    max_topics: 5
  summary_generation:
    min_length: 64
    max_length: 512
preprocessing:
  remove_filler_words: false
  max_chunk_size: 1024
cache:
  ttl: 10m
engine:
  stage_timeout: 5s
  chunk_timeout: 2s
redis:
  addr: localhost:6379
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	topics := cfg.Stages.TopicDetection
	assert.Equal(t, "bert-large-uncased", topics.ModelName)
	assert.Equal(t, 5, topics.MaxTopics)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 0.85, topics.ConfidenceThreshold)
	assert.Equal(t, 0.95, topics.PerformanceTarget)

	assert.Equal(t, 64, cfg.Stages.SummaryGeneration.MinLength)
	assert.Equal(t, 512, cfg.Stages.SummaryGeneration.MaxLength)
	assert.False(t, cfg.Preprocessing.RemoveFillerWords)
	assert.True(t, cfg.Preprocessing.NormalizeText)
	assert.Equal(t, 1024, cfg.Preprocessing.MaxChunkSize)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 5*time.Second, cfg.Engine.StageTimeout)
	assert.Equal(t, 2*time.Second, cfg.Engine.ChunkTimeout)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, DefaultQueueName, cfg.Redis.Queue)
}

func TestLoad_DefaultPath(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Stages, cfg.Stages)

	writeFile(t, filepath.Join(dir, DefaultConfigFile), "engine:\n  stage_timeout: 2s\n")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Engine.StageTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	dir := isolate(t)

	_, err := Load(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := isolate(t)

	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			name:    "malformed yaml",
			content: "stages: [",
			errPart: "parsing config file",
		},
		{
			name:    "confidence out of range",
			content: "stages:\n  topic_detection:\n    confidence_threshold: 1.5\n",
			errPart: "confidence_threshold 1.5",
		},
		{
			name:    "missing performance target",
			content: "stages:\n  action_item_recognition:\n    performance_target: 0\n",
			errPart: "missing required key performance_target",
		},
		{
			name:    "summary lengths inverted",
			content: "stages:\n  summary_generation:\n    min_length: 600\n    max_length: 500\n",
			errPart: "min_length 600 must be below max_length 500",
		},
		{
			name:    "remote backend without url",
			content: "backend:\n  kind: remote\n",
			errPart: "backend.url is required",
		},
		{
			name:    "unknown backend",
			content: "backend:\n  kind: gpu-cluster\n",
			errPart: "invalid backend.kind",
		},
		{
			name:    "unknown store",
			content: "store:\n  driver: sqlite\n",
			errPart: "invalid store.driver",
		},
		{
			name:    "postgres without host",
			content: "store:\n  driver: postgres\ndatabase:\n  host: \"\"\n",
			errPart: "database host is required",
		},
		{
			name:    "candidate for unknown stage",
			content: "update:\n  candidates:\n    transcription: whisper\n",
			errPart: "unknown stage \"transcription\"",
		},
		{
			name:    "non positive chunk timeout",
			content: "engine:\n  chunk_timeout: 0s\n",
			errPart: "engine.chunk_timeout must be positive",
		},
		{
			name:    "non positive chunk size",
			content: "preprocessing:\n  max_chunk_size: 0\n",
			errPart: "max_chunk_size must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "config.yaml")
			writeFile(t, path, tt.content)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestValidate_ZeroMaxDegradation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Update.MaxDegradation = 0
	assert.NoError(t, cfg.Validate())

	cfg.Update.MaxDegradation = -0.1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update.max_degradation")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cache.Capacity = 0
	cfg.Engine.StageTimeout = 0
	cfg.Engine.ChunkTimeout = -time.Second
	cfg.Server.HTTPAddr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache.capacity")
	assert.Contains(t, err.Error(), "engine.stage_timeout")
	assert.Contains(t, err.Error(), "engine.chunk_timeout")
	assert.Contains(t, err.Error(), "server.http_addr")
}

func TestLoad_Env(t *testing.T) {
	isolate(t)
	t.Setenv("TOPIC_DETECTION_MODEL", "legacy-topics")
	t.Setenv("ACTION_ITEM_MODEL", "legacy-actions")
	t.Setenv("MINUTES_ACTION_ITEM_MODEL", "prefixed-actions")
	t.Setenv("SUMMARY_MODEL", "t5-small")
	t.Setenv("DEVICE", "cuda")
	t.Setenv("MAX_TOPICS", "4")
	t.Setenv("MAX_ACTION_ITEMS", "7")
	t.Setenv("PREPROCESSING_CHUNK_SIZE", "1000")
	t.Setenv("MINUTES_STAGE_TIMEOUT", "3s")
	t.Setenv("MINUTES_CHUNK_TIMEOUT", "750ms")
	t.Setenv("MINUTES_REDIS_ADDR", "redis:6379")
	t.Setenv("MINUTES_LOG_LEVEL", "warn")
	t.Setenv("MINUTES_CACHE_CAPACITY", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)

	s := cfg.Stages
	assert.Equal(t, "legacy-topics", s.TopicDetection.ModelName)
	assert.Equal(t, "prefixed-actions", s.ActionItemRecognition.ModelName)
	assert.Equal(t, "t5-small", s.SummaryGeneration.ModelName)
	assert.Equal(t, "cuda", s.TopicDetection.Device)
	assert.Equal(t, "cuda", s.ActionItemRecognition.Device)
	assert.Equal(t, "cuda", s.SummaryGeneration.Device)
	assert.Equal(t, 4, s.TopicDetection.MaxTopics)
	assert.Equal(t, 7, s.ActionItemRecognition.MaxItems)
	assert.Equal(t, 1000, cfg.Preprocessing.MaxChunkSize)
	assert.Equal(t, 3*time.Second, cfg.Engine.StageTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.ChunkTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Logging.Level)
	// Unparseable numbers keep the previous value.
	assert.Equal(t, DefaultConfig().Cache.Capacity, cfg.Cache.Capacity)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, DefaultConfigFile)
	writeFile(t, path, "stages:\n  topic_detection:\n    model_name: from-file\n")
	t.Setenv("MINUTES_TOPIC_DETECTION_MODEL", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Stages.TopicDetection.ModelName)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	const name = "MINUTES_SUMMARY_MODEL"
	t.Cleanup(func() { os.Unsetenv(name) })
	writeFile(t, filepath.Join(dir, DefaultEnvFile), name+"=pegasus-xsum\n")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "pegasus-xsum", cfg.Stages.SummaryGeneration.ModelName)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte("stages:\n  topic_detection:\n    batch_size: 64\n"))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Stages.TopicDetection.BatchSize)

	_, err = Parse([]byte("stages:\n  topic_detection:\n    batch_size: 0\n"))
	assert.Error(t, err)
}

func TestChangedStages(t *testing.T) {
	old := DefaultConfig()
	next := DefaultConfig()
	assert.Empty(t, ChangedStages(old, next))

	next.Stages.SummaryGeneration.NumBeams = 2
	next.Stages.TopicDetection.ModelName = "bert-large-uncased"
	next.Cache.Capacity = 10

	assert.Equal(t, []string{types.StageTopicDetection, types.StageSummaryGeneration}, ChangedStages(old, next))
}

func TestRedacted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Password = "redis-secret"
	cfg.Database.Password = "db-secret"
	cfg.Database.URL = "postgres://minutes:db-secret@db:5432/minutes"

	r := cfg.Redacted()
	assert.Equal(t, "****", r.Redis.Password)
	assert.Equal(t, "****", r.Database.Password)
	assert.Equal(t, "postgres://minutes:****@db:5432/minutes", r.Database.URL)
	// The original is untouched.
	assert.Equal(t, "redis-secret", cfg.Redis.Password)

	data, err := r.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
	assert.Contains(t, string(data), "stage_timeout: 1m0s")
}

func TestRedactURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@h/db", "postgres://u:****@h/db"},
		{"postgres://u@h/db", "postgres://u@h/db"},
		{"host=h user=u", "host=h user=u"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactURL(tt.in), tt.in)
	}
}

func TestLoggingConfig(t *testing.T) {
	lc := LoggingConfig{Level: "debug", JSON: true, Environment: "production"}.Logger()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.True(t, lc.JSONFormat)
	assert.Equal(t, "production", lc.Environment)

	assert.Equal(t, logging.LevelInfo, LoggingConfig{Level: "chatty"}.Logger().Level)
}

func TestWatcher_ReportsStageChanges(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, DefaultConfigFile)
	writeFile(t, path, "stages:\n  topic_detection:\n    model_name: bert-base-uncased\n")
	current, err := Load(path)
	require.NoError(t, err)

	w := NewWatcher(path, current, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan Change, 16)
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func(c Change) { changes <- c }) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, path, "stages:\n  topic_detection:\n    model_name: bert-large-uncased\n")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changes:
			if c.Config.Stages.TopicDetection.ModelName != "bert-large-uncased" {
				continue
			}
			assert.Contains(t, c.Stages, types.StageTopicDetection)
			assert.NotContains(t, c.Stages, types.StageSummaryGeneration)
			cancel()
			assert.ErrorIs(t, <-done, context.Canceled)
			return
		case <-deadline:
			t.Fatal("no configuration change reported")
		}
	}
}

func TestWatcher_IgnoresInvalidFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, DefaultConfigFile)
	current := DefaultConfig()

	w := NewWatcher(path, current, nil)
	writeFile(t, path, "stages:\n  topic_detection:\n    confidence_threshold: 7\n")

	called := false
	w.reload(func(Change) { called = true })
	assert.False(t, called)
	assert.Same(t, current, w.current)

	writeFile(t, path, "stages:\n  summary_generation:\n    num_beams: 2\n")
	var got Change
	w.reload(func(c Change) { got = c })
	assert.Equal(t, []string{types.StageSummaryGeneration}, got.Stages)
	assert.Same(t, got.Config, w.current)
}
