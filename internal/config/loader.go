package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// Load reads configuration from path, or from the default location when
// path is empty. A missing file at the default location is not an error:
// defaults and environment overrides apply.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFrom(path)
	}

	defaultPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFrom(defaultPath)
	var notFound *ConfigNotFoundError
	if errors.As(err, &notFound) {
		return load(nil, true)
	}
	return cfg, err
}

// LoadFrom reads config from a specific path with enhanced error handling.
func LoadFrom(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &ConfigNotFoundError{
				Path: path,
				Hint: "Run 'flowlearn config init' to create configuration",
			}
		}
		return nil, fmt.Errorf("failed to access config: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, &InvalidConfigError{
			Path:    path,
			Message: fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), maxConfigFileSize),
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, &PermissionError{
				Path:    path,
				Op:      "read",
				Fix:     getReadPermissionFix(path),
				Details: getPermissionDetails(path),
			}
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := load(data, true)
	if err != nil {
		var invalid *InvalidConfigError
		if errors.As(err, &invalid) {
			invalid.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

// load layers defaults, the YAML document and (optionally) the environment.
func load(content []byte, withEnv bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(DefaultYAML()), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, &InvalidConfigError{
				Message: fmt.Sprintf("YAML parse error: %v", err),
				Hint:    "Restore from .bak file if available",
			}
		}
	}

	// FLOWLEARN_LEARNING_CONFIDENCE_THRESHOLD -> learning.confidence_threshold
	if withEnv {
		if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, &InvalidConfigError{
			Message: err.Error(),
			Hint:    "Check value types (durations like 24h, numbers without quotes)",
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, &InvalidConfigError{Message: err.Error()}
	}
	return &cfg, nil
}

// envKey maps an environment variable to a config key: the first
// underscore after the prefix separates section and field.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (got %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if c.Learning.InitialConfidence > c.Learning.ConfidenceThreshold {
		return fmt.Errorf("learning.initial_confidence %.2f exceeds confidence_threshold %.2f",
			c.Learning.InitialConfidence, c.Learning.ConfidenceThreshold)
	}
	return nil
}

// getReadPermissionFix returns platform-specific fix command
func getReadPermissionFix(path string) string {
	switch runtime.GOOS {
	case "windows":
		return fmt.Sprintf("Right-click %s → Properties → Security → Edit permissions", path)
	default:
		return fmt.Sprintf("Run: chmod 600 %s", path)
	}
}

// getPermissionDetails checks file ownership and permissions
func getPermissionDetails(path string) string {
	if runtime.GOOS == "windows" {
		return ""
	}

	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("Current permissions: %04o", info.Mode().Perm())
}
