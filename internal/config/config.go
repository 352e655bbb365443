/*
Package config handles loading and saving flowlearn configuration.

Configuration is read from ~/.flowlearn/config.yaml (or an explicit path),
overridden by FLOWLEARN_* environment variables, layered over built-in
defaults and validated before use.

Schema:

	learning:
	  learning_threshold: 3
	  confidence_threshold: 0.8
	  similarity_threshold: 0.8
	  suggestion_min_confidence: 0.5
	  initial_confidence: 0.3
	  recent_window: 168h
	analytics:
	  preference_window: 10
	  recent_window: 24h
	  max_combination_tools: 5
	storage:
	  enabled: true
	  path: ""
	  retention: 720h
	  journal: true
	logging:
	  level: info
	  format: console
	metrics:
	  enabled: false
	  address: "127.0.0.1:9464"
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "FLOWLEARN_"

// Config represents the root configuration structure.
type Config struct {
	Learning  LearningConfig  `koanf:"learning"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Storage   StorageConfig   `koanf:"storage"`
	Logging   LoggingConfig   `koanf:"logging"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// LearningConfig holds the pattern learner thresholds.
type LearningConfig struct {
	// LearningThreshold is the execution count from which confidence
	// follows the success rate.
	LearningThreshold int `koanf:"learning_threshold" validate:"gte=1"`

	// ConfidenceThreshold is the confidence a pattern needs to be suggested.
	ConfidenceThreshold float64 `koanf:"confidence_threshold" validate:"gte=0,lte=1"`

	// SimilarityThreshold is the minimum tool-sequence similarity for a match.
	SimilarityThreshold float64 `koanf:"similarity_threshold" validate:"gt=0,lte=1"`

	SuggestionMinConfidence float64       `koanf:"suggestion_min_confidence" validate:"gte=0,lte=1"`
	InitialConfidence       float64       `koanf:"initial_confidence" validate:"gte=0,lte=1"`
	RecentWindow            time.Duration `koanf:"recent_window" validate:"gt=0"`
}

// AnalyticsConfig holds the tool analytics parameters.
type AnalyticsConfig struct {
	PreferenceWindow    int           `koanf:"preference_window" validate:"gte=1"`
	RecentWindow        time.Duration `koanf:"recent_window" validate:"gt=0"`
	MaxCombinationTools int           `koanf:"max_combination_tools" validate:"gte=1"`
}

// StorageConfig controls persistence.
type StorageConfig struct {
	// Enabled turns the SQLite store on.
	Enabled bool `koanf:"enabled"`

	// Path of the database; empty uses ~/.flowlearn/flowlearn.db.
	Path string `koanf:"path"`

	// Retention bounds raw history kept by cleanup. Zero keeps everything.
	Retention time.Duration `koanf:"retention" validate:"gte=0"`

	// Journal writes state changes in the background as they happen.
	Journal bool `koanf:"journal"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
}

// MetricsConfig controls the Prometheus endpoint served by `serve`.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address" validate:"required_if=Enabled true"`
}

// defaultYAML is loaded first so every key has a value before the file and
// environment overrides.
const defaultYAML = `
learning:
  learning_threshold: 3
  confidence_threshold: 0.8
  similarity_threshold: 0.8
  suggestion_min_confidence: 0.5
  initial_confidence: 0.3
  recent_window: 168h
analytics:
  preference_window: 10
  recent_window: 24h
  max_combination_tools: 5
storage:
  enabled: true
  path: ""
  retention: 720h
  journal: true
logging:
  level: info
  format: console
metrics:
  enabled: false
  address: "127.0.0.1:9464"
`

// DefaultYAML returns the default configuration document.
func DefaultYAML() []byte {
	return []byte(defaultYAML[1:])
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(nil, false)
	if err != nil {
		// The embedded document is static; failing to parse it is a bug.
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// GetDefaultConfigPath returns the path to ~/.flowlearn/config.yaml
func GetDefaultConfigPath() (string, error) {
	dir, err := HomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// HomeDir returns ~/.flowlearn.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".flowlearn"), nil
}
