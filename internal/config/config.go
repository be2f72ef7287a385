// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/pcapscan/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `pcapscan:` root key in YAML.
type GlobalConfig struct {
	Scan    ScanConfig    `mapstructure:"scan"`
	Output  OutputConfig  `mapstructure:"output"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// ─── Scan ───

// ScanConfig holds defaults for scan sessions.
type ScanConfig struct {
	BatchSize int  `mapstructure:"batch_size"`
	Pushdown  bool `mapstructure:"pushdown"` // false forces client-side filtering
}

// ─── Output ───

// OutputConfig selects how batches are written.
type OutputConfig struct {
	Format string `mapstructure:"format"` // table | jsonl | csv | arrow | kafka
}

// KafkaConfig configures the kafka sink.
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	Compression  string   `mapstructure:"compression"` // none | gzip | snappy | lz4
	BatchSize    int      `mapstructure:"batch_size"`
	BatchTimeout string   `mapstructure:"batch_timeout"`
}

// ─── Stats ───

// StatsConfig configures multi-file statistics.
type StatsConfig struct {
	Workers int `mapstructure:"workers"` // 0 = GOMAXPROCS
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level"`  // debug / info / warn / error
	Format     string           `mapstructure:"format"` // json / text
	Pattern    string           `mapstructure:"pattern"`
	TimeFormat string           `mapstructure:"time_format"`
	Outputs    LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains log output destinations besides stderr.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `pcapscan: ...`.
type configRoot struct {
	Pcapscan GlobalConfig `mapstructure:"pcapscan"`
}

// Load loads configuration from file. An empty path yields the defaults
// with environment overrides applied.
// The YAML file uses `pcapscan:` as root key; env vars use the PCAPSCAN_ prefix
// (e.g., PCAPSCAN_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// key "pcapscan.log.level" → env "PCAPSCAN_LOG_LEVEL"
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Pcapscan

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "pcapscan." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Scan defaults
	v.SetDefault("pcapscan.scan.batch_size", DefaultBatchSize)
	v.SetDefault("pcapscan.scan.pushdown", true)

	// Output defaults
	v.SetDefault("pcapscan.output.format", "table")
	v.SetDefault("pcapscan.kafka.brokers", []string{})
	v.SetDefault("pcapscan.kafka.topic", "")
	v.SetDefault("pcapscan.kafka.compression", "snappy")
	v.SetDefault("pcapscan.kafka.batch_size", 100)
	v.SetDefault("pcapscan.kafka.batch_timeout", "1s")

	// Stats defaults
	v.SetDefault("pcapscan.stats.workers", 0)

	// Log defaults
	v.SetDefault("pcapscan.log.level", "info")
	v.SetDefault("pcapscan.log.format", "text")
	v.SetDefault("pcapscan.log.pattern", DefaultLogPattern)
	v.SetDefault("pcapscan.log.time_format", "2006-01-02 15:04:05.000")
	v.SetDefault("pcapscan.log.outputs.file.enabled", false)
	v.SetDefault("pcapscan.log.outputs.file.path", "pcapscan.log")
	v.SetDefault("pcapscan.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("pcapscan.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("pcapscan.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("pcapscan.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("pcapscan.metrics.enabled", false)
	v.SetDefault("pcapscan.metrics.listen", ":9091")
	v.SetDefault("pcapscan.metrics.path", "/metrics")
}

const (
	// DefaultBatchSize is the number of rows per batch when none is requested.
	DefaultBatchSize = 8192

	// DefaultLogPattern is the text log layout.
	DefaultLogPattern = "%time [%level] %field %msg\n"
)

var (
	validFormats     = map[string]bool{"table": true, "jsonl": true, "csv": true, "arrow": true, "kafka": true}
	validCompression = map[string]bool{"none": true, "gzip": true, "snappy": true, "lz4": true}
)

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: invalid log level: %s (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: invalid log format: %s (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}
	if cfg.Log.Outputs.File.Enabled && cfg.Log.Outputs.File.Path == "" {
		return fmt.Errorf("%w: log.outputs.file.path is required when file output is enabled", core.ErrConfigInvalid)
	}

	// ── Scan ──
	if cfg.Scan.BatchSize < 0 {
		return fmt.Errorf("%w: scan.batch_size must be positive, got %d", core.ErrConfigInvalid, cfg.Scan.BatchSize)
	}
	if cfg.Scan.BatchSize == 0 {
		cfg.Scan.BatchSize = DefaultBatchSize
	}

	// ── Output ──
	if !validFormats[cfg.Output.Format] {
		return fmt.Errorf("%w: invalid output format: %s (must be table/jsonl/csv/arrow/kafka)", core.ErrConfigInvalid, cfg.Output.Format)
	}
	if err := cfg.Kafka.validate(cfg.Output.Format == "kafka"); err != nil {
		return err
	}

	if cfg.Stats.Workers < 0 {
		return fmt.Errorf("%w: stats.workers must not be negative", core.ErrConfigInvalid)
	}

	return nil
}

func (k *KafkaConfig) validate(required bool) error {
	if k.Compression == "" {
		k.Compression = "none"
	}
	if !validCompression[k.Compression] {
		return fmt.Errorf("%w: invalid kafka compression: %s (must be none/gzip/snappy/lz4)", core.ErrConfigInvalid, k.Compression)
	}
	if !required {
		return nil
	}
	if len(k.Brokers) == 0 {
		return fmt.Errorf("%w: kafka.brokers is required when output.format=kafka", core.ErrConfigInvalid)
	}
	if k.Topic == "" {
		return fmt.Errorf("%w: kafka.topic is required when output.format=kafka", core.ErrConfigInvalid)
	}
	return nil
}

// Validate checks that the kafka sink can be built from k.
func (k *KafkaConfig) Validate() error {
	return k.validate(true)
}
