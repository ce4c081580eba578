// Package config loads the engine's single declarative YAML document
// (spec.md section 6) and applies the same read-unmarshal-default
// pattern the teacher repository uses for its own configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RetentionConfig carries the layer TTLs that modulate lifecycle thresholds.
type RetentionConfig struct {
	ShortTermHours int `yaml:"short_term_hours"`
	MidTermDays    int `yaml:"mid_term_days"`
	LongTermDays   int `yaml:"long_term_days"`
}

// LifecycleConfig controls the LifecycleManager sweep cadence.
type LifecycleConfig struct {
	SweepIntervalHours int `yaml:"sweep_interval_hours"`
}

// PPRConfig carries Personalized PageRank parameters.
type PPRConfig struct {
	Alpha   float64 `yaml:"alpha"`
	MaxIter int     `yaml:"max_iter"`
	Tol     float64 `yaml:"tol"`
}

// ModeOverride allows a single mode profile field to be tuned.
type ModeOverride struct {
	Name             string `yaml:"name"`
	TokenBudget      int    `yaml:"token_budget"`
	CoreSize         int    `yaml:"core_size"`
	ExtendedSize     int    `yaml:"extended_size"`
	Verification     string `yaml:"verification"`
	LatencyBudgetMs  int    `yaml:"latency_budget_ms"`
}

// TraceConfig controls trace retention.
type TraceConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// RedisConfig describes the access-accounting write-behind buffer's
// backing store. When Enabled is false the LifecycleManager falls back
// to an in-process buffer.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	FlushIntervalSeconds int `yaml:"flush_interval_seconds"`
}

// EmbeddingConfig describes the external embedding capability, when used.
// Headers takes precedence over the legacy APIHeader/APIKey pair entry by
// entry: a header name present in both is satisfied from Headers.
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"api_key"`
	APIHeader string            `yaml:"api_header"`
	Headers   map[string]string `yaml:"headers"`
	Dim       int               `yaml:"dim"`
	TimeoutS  int               `yaml:"timeout_seconds"`
}

// OTelConfig controls OpenTelemetry export.
type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig controls the ambient logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Config is the single declarative document recognized by the engine (spec §6).
type Config struct {
	DataDir string `yaml:"data_dir"`

	Embedding struct {
		Dim int `yaml:"dim"`
	} `yaml:"embedding"`

	EmbeddingClient EmbeddingConfig `yaml:"embedding_client"`

	VectorBackend    string `yaml:"vector_backend"` // "memory" | "qdrant"
	QdrantHost       string `yaml:"qdrant_host"`
	QdrantPort       int    `yaml:"qdrant_port"`
	QdrantCollection string `yaml:"qdrant_collection"`

	TraceBackend string `yaml:"trace_backend"` // "memory" | "postgres"
	TraceDSN     string `yaml:"trace_dsn"`

	Kafka KafkaConfig `yaml:"kafka"`

	Retention RetentionConfig `yaml:"retention"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	PPR       PPRConfig       `yaml:"ppr"`
	Modes     []ModeOverride  `yaml:"modes"`
	Trace     TraceConfig     `yaml:"trace"`
	Redis     RedisConfig     `yaml:"redis"`
	OTel      OTelConfig      `yaml:"otel"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// KafkaConfig describes the optional lifecycle-transition event sink.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Default returns the documented defaults for every recognized key.
func Default() *Config {
	cfg := &Config{
		DataDir:          "./data",
		VectorBackend:    "memory",
		QdrantHost:       "localhost",
		QdrantPort:       6334,
		QdrantCollection: "mnemosyne_chunks",
		TraceBackend:     "memory",
		Kafka:            KafkaConfig{Topic: "lifecycle.transitions"},
		Retention: RetentionConfig{
			ShortTermHours: 24,
			MidTermDays:    7,
			LongTermDays:   30,
		},
		Lifecycle: LifecycleConfig{SweepIntervalHours: 6},
		Redis:     RedisConfig{FlushIntervalSeconds: 30},
		PPR:       PPRConfig{Alpha: 0.85, MaxIter: 100, Tol: 1e-6},
		Trace:     TraceConfig{RetentionDays: 30},
		OTel:      OTelConfig{ServiceName: "mnemosyne"},
		Logging:   LoggingConfig{Level: "info"},
	}
	cfg.Embedding.Dim = 384
	return cfg
}

// Load reads the configuration from a YAML file and unmarshals it on top
// of Default(); an explicit zero embedding.dim or empty logging.level is
// reset to its default. Load keeps no record of the embedding.dim used by
// an earlier run, so a changed dim is accepted as given, not refused.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Embedding.Dim == 0 {
		cfg.Embedding.Dim = 384
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	return cfg, nil
}
