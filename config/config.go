// Package config provides configuration management for the minutes engine.
// It supports loading configuration from YAML files, .env files and
// environment variables, and watching the file for stage changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/db"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/preprocess"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/resilience"
)

// Default configuration values.
const (
	DefaultConfigDir    = ".minutes"
	DefaultConfigFile   = "config.yaml"
	DefaultEnvFile      = ".env"
	DefaultHTTPAddr     = ":8080"
	DefaultGRPCAddr     = ":9090"
	DefaultStageTimeout = 60 * time.Second
	DefaultChunkTimeout = 30 * time.Second
	DefaultQueueName    = "minutes:jobs"
)

// Backend kinds.
const (
	BackendLexical = "lexical"
	BackendRemote  = "remote"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StagesConfig holds the configuration of the three analysis stages.
type StagesConfig struct {
	TopicDetection        stage.Config `yaml:"topic_detection"`
	ActionItemRecognition stage.Config `yaml:"action_item_recognition"`
	SummaryGeneration     stage.Config `yaml:"summary_generation"`
}

// Map returns the stage configs keyed by stage name.
func (s StagesConfig) Map() map[string]stage.Config {
	return map[string]stage.Config{
		types.StageTopicDetection:        s.TopicDetection,
		types.StageActionItemRecognition: s.ActionItemRecognition,
		types.StageSummaryGeneration:     s.SummaryGeneration,
	}
}

// Get returns the config of one stage.
func (s StagesConfig) Get(name string) (stage.Config, bool) {
	cfg, ok := s.Map()[name]
	return cfg, ok
}

// CacheConfig holds pattern cache settings.
type CacheConfig struct {
	Capacity int           `yaml:"capacity"`
	TTL      time.Duration `yaml:"ttl"`
}

// EngineConfig holds orchestrator settings.
type EngineConfig struct {
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// ChunkTimeout bounds each backend call made by a stage.
	ChunkTimeout time.Duration `yaml:"chunk_timeout"`
}

// UpdateConfig holds model update and drift settings.
type UpdateConfig struct {
	LoadTimeout    time.Duration `yaml:"load_timeout"`
	MaxDegradation float64       `yaml:"max_degradation"`

	DriftThreshold  float64 `yaml:"drift_threshold"`
	DriftQueueSize  int     `yaml:"drift_queue_size"`
	DriftMinSamples int64   `yaml:"drift_min_samples"`

	// Candidates maps a stage to the model it is switched to on drift.
	Candidates map[string]string `yaml:"candidates,omitempty"`
}

// BackendConfig selects the inference backend.
type BackendConfig struct {
	Kind    string                 `yaml:"kind"`
	URL     string                 `yaml:"url,omitempty"`
	Timeout time.Duration          `yaml:"timeout"`
	Retry   resilience.RetryConfig `yaml:"retry"`
}

// RedisConfig holds event publishing and job queue settings. An empty
// address disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Queue    string `yaml:"queue"`
	Workers  int    `yaml:"workers"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// StoreConfig selects where results are persisted.
type StoreConfig struct {
	Driver string `yaml:"driver"`
}

// ServerConfig holds the listen addresses of the serve command.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	JSON        bool   `yaml:"json"`
	Environment string `yaml:"environment,omitempty"`
}

// Logger returns the logger configuration.
func (l LoggingConfig) Logger() *logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(l.Level)
	cfg.JSONFormat = l.JSON
	if l.Environment != "" {
		cfg.Environment = l.Environment
	}
	return cfg
}

// Config is the complete engine configuration.
type Config struct {
	Stages        StagesConfig      `yaml:"stages"`
	Preprocessing preprocess.Config `yaml:"preprocessing"`
	Cache         CacheConfig       `yaml:"cache"`
	Engine        EngineConfig      `yaml:"engine"`
	Update        UpdateConfig      `yaml:"update"`
	Backend       BackendConfig     `yaml:"backend"`
	Redis         RedisConfig       `yaml:"redis"`
	Store         StoreConfig       `yaml:"store"`
	Database      db.Config         `yaml:"database"`
	Server        ServerConfig      `yaml:"server"`
	Logging       LoggingConfig     `yaml:"logging"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Stages: StagesConfig{
			TopicDetection:        stage.DefaultConfig(types.StageTopicDetection),
			ActionItemRecognition: stage.DefaultConfig(types.StageActionItemRecognition),
			SummaryGeneration:     stage.DefaultConfig(types.StageSummaryGeneration),
		},
		Preprocessing: preprocess.DefaultConfig(),
		Cache: CacheConfig{
			Capacity: cache.DefaultCapacity,
			TTL:      cache.DefaultTTL,
		},
		Engine: EngineConfig{
			StageTimeout: DefaultStageTimeout,
			ChunkTimeout: DefaultChunkTimeout,
		},
		Update: UpdateConfig{
			LoadTimeout:     update.DefaultLoadTimeout,
			MaxDegradation:  update.DefaultMaxDegradation,
			DriftThreshold:  update.DefaultDriftThreshold,
			DriftQueueSize:  update.DefaultDriftQueueSize,
			DriftMinSamples: update.DefaultMinSamples,
		},
		Backend: BackendConfig{
			Kind:    BackendLexical,
			Timeout: 30 * time.Second,
			Retry:   resilience.DefaultRetryConfig(),
		},
		Redis: RedisConfig{
			Queue:   DefaultQueueName,
			Workers: 2,
		},
		Store:    StoreConfig{Driver: StoreMemory},
		Database: *db.DefaultConfig(),
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			GRPCAddr:        DefaultGRPCAddr,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{Level: string(logging.LevelInfo)},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MINUTES_CONFIG_DIR if set, otherwise ~/.minutes
func ConfigDir() (string, error) {
	if dir := os.Getenv("MINUTES_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
// $MINUTES_CONFIG names the file directly.
func ConfigPath() (string, error) {
	if path := os.Getenv("MINUTES_CONFIG"); path != "" {
		return path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// Load loads the configuration.
// Configuration is loaded in this order (later sources override earlier):
// 1. Default values
// 2. Config file (path, or ConfigPath when path is empty); a missing default file is skipped
// 3. .env in the working directory (never overrides variables already set)
// 4. Environment variables
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err != nil {
			return nil, fmt.Errorf("getting config path: %w", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	} else if explicit {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	if _, err := os.Stat(DefaultEnvFile); err == nil {
		if err := godotenv.Load(DefaultEnvFile); err != nil {
			return nil, fmt.Errorf("loading %s: %w", DefaultEnvFile, err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

// loadFromEnv overlays environment variables onto the configuration. The
// unprefixed names are accepted for compatibility with existing
// deployments; MINUTES_* names win when both are set.
func loadFromEnv(cfg *Config) {
	s := &cfg.Stages

	envString("TOPIC_DETECTION_MODEL", &s.TopicDetection.ModelName)
	envString("MINUTES_TOPIC_DETECTION_MODEL", &s.TopicDetection.ModelName)
	envString("ACTION_ITEM_MODEL", &s.ActionItemRecognition.ModelName)
	envString("MINUTES_ACTION_ITEM_MODEL", &s.ActionItemRecognition.ModelName)
	envString("SUMMARY_MODEL", &s.SummaryGeneration.ModelName)
	envString("MINUTES_SUMMARY_MODEL", &s.SummaryGeneration.ModelName)

	for _, name := range []string{"DEVICE", "MINUTES_DEVICE"} {
		if v := os.Getenv(name); v != "" {
			s.TopicDetection.Device = v
			s.ActionItemRecognition.Device = v
			s.SummaryGeneration.Device = v
		}
	}

	envInt("MAX_TOPICS", &s.TopicDetection.MaxTopics)
	envInt("MINUTES_MAX_TOPICS", &s.TopicDetection.MaxTopics)
	envInt("MAX_ACTION_ITEMS", &s.ActionItemRecognition.MaxItems)
	envInt("MINUTES_MAX_ACTION_ITEMS", &s.ActionItemRecognition.MaxItems)
	envInt("PREPROCESSING_CHUNK_SIZE", &cfg.Preprocessing.MaxChunkSize)
	envInt("MINUTES_PREPROCESSING_CHUNK_SIZE", &cfg.Preprocessing.MaxChunkSize)

	envInt("MINUTES_CACHE_CAPACITY", &cfg.Cache.Capacity)
	envDuration("MINUTES_CACHE_TTL", &cfg.Cache.TTL)
	envDuration("MINUTES_STAGE_TIMEOUT", &cfg.Engine.StageTimeout)
	envDuration("MINUTES_CHUNK_TIMEOUT", &cfg.Engine.ChunkTimeout)

	envString("MINUTES_BACKEND", &cfg.Backend.Kind)
	envString("MINUTES_BACKEND_URL", &cfg.Backend.URL)
	envDuration("MINUTES_BACKEND_TIMEOUT", &cfg.Backend.Timeout)

	envString("MINUTES_REDIS_ADDR", &cfg.Redis.Addr)
	envString("MINUTES_REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("MINUTES_REDIS_DB", &cfg.Redis.DB)
	envString("MINUTES_REDIS_QUEUE", &cfg.Redis.Queue)
	envInt("MINUTES_WORKERS", &cfg.Redis.Workers)

	envString("MINUTES_STORE", &cfg.Store.Driver)
	cfg.Database.ApplyEnv()

	envString("MINUTES_HTTP_ADDR", &cfg.Server.HTTPAddr)
	envString("MINUTES_GRPC_ADDR", &cfg.Server.GRPCAddr)

	envString("MINUTES_LOG_LEVEL", &cfg.Logging.Level)
	if v := os.Getenv("MINUTES_LOG_JSON"); v == "true" || v == "1" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("MINUTES_DEBUG"); v == "true" || v == "1" {
		cfg.Logging.Level = string(logging.LevelDebug)
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// Validate checks that the configuration is valid. Every problem is
// reported.
func (c *Config) Validate() error {
	var problems []string

	for _, name := range types.Stages {
		cfg, _ := c.Stages.Get(name)
		if err := cfg.Validate(name); err != nil {
			problems = append(problems, err.Error())
		}
	}

	if c.Preprocessing.MaxChunkSize < 1 {
		problems = append(problems, "preprocessing.max_chunk_size must be positive")
	}
	if c.Cache.Capacity < 1 {
		problems = append(problems, "cache.capacity must be positive")
	}
	if c.Cache.TTL <= 0 {
		problems = append(problems, "cache.ttl must be positive")
	}
	if c.Engine.StageTimeout <= 0 {
		problems = append(problems, "engine.stage_timeout must be positive")
	}
	if c.Engine.ChunkTimeout <= 0 {
		problems = append(problems, "engine.chunk_timeout must be positive")
	}
	if c.Update.MaxDegradation < 0 || c.Update.MaxDegradation > 1 {
		problems = append(problems, fmt.Sprintf("update.max_degradation %v outside [0,1]", c.Update.MaxDegradation))
	}
	for name := range c.Update.Candidates {
		if !isStage(name) {
			problems = append(problems, fmt.Sprintf("update.candidates: unknown stage %q", name))
		}
	}

	switch c.Backend.Kind {
	case BackendLexical:
	case BackendRemote:
		if c.Backend.URL == "" {
			problems = append(problems, "backend.url is required for the remote backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid backend.kind: %q (must be lexical or remote)", c.Backend.Kind))
	}

	if c.Redis.Enabled() && c.Redis.Workers < 0 {
		problems = append(problems, "redis.workers must not be negative")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if err := c.Database.Validate(); err != nil {
			problems = append(problems, "database: "+err.Error())
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid store.driver: %q (must be memory or postgres)", c.Store.Driver))
	}

	if c.Server.HTTPAddr == "" {
		problems = append(problems, "server.http_addr is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func isStage(name string) bool {
	for _, s := range types.Stages {
		if s == name {
			return true
		}
	}
	return false
}

// ChangedStages returns the stages whose configuration differs between
// old and next, in stage order.
func ChangedStages(old, next *Config) []string {
	var changed []string
	for _, name := range types.Stages {
		a, _ := old.Stages.Get(name)
		b, _ := next.Stages.Get(name)
		if a != b {
			changed = append(changed, name)
		}
	}
	return changed
}

// Redacted returns a copy with secrets masked, suitable for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Redis.Password != "" {
		out.Redis.Password = "****"
	}
	if out.Database.Password != "" {
		out.Database.Password = "****"
	}
	if out.Database.URL != "" {
		out.Database.URL = redactURL(out.Database.URL)
	}
	return &out
}

// redactURL masks the password of a postgres:// URL.
func redactURL(u string) string {
	at := strings.LastIndex(u, "@")
	scheme := strings.Index(u, "://")
	if at < 0 || scheme < 0 {
		return u
	}
	creds := u[scheme+3 : at]
	colon := strings.Index(creds, ":")
	if colon < 0 {
		return u
	}
	return u[:scheme+3] + creds[:colon] + ":****" + u[at:]
}

// Marshal encodes the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}
