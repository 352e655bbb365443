/*
Package cli provides shared setup for the flowlearn commands.

These helpers load configuration, build the logger and open the learning
engine over the configured store.
*/
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/khanglvm/flowlearn/internal/config"
	"github.com/khanglvm/flowlearn/internal/engine"
	"github.com/khanglvm/flowlearn/internal/logging"
	"github.com/khanglvm/flowlearn/internal/metrics"
	"github.com/khanglvm/flowlearn/internal/storage"
)

// GlobalOptions holds the persistent root flags.
type GlobalOptions struct {
	// ConfigPath overrides ~/.flowlearn/config.yaml.
	ConfigPath string

	// DBPath overrides storage.path.
	DBPath string
}

// app is a loaded configuration with its logger and engine.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *storage.SQLiteStorage
	engine *engine.Engine
}

func (r *app) Close() {
	if r.engine != nil {
		if err := r.engine.Close(); err != nil {
			r.logger.Warn("failed to close engine", zap.Error(err))
		}
	}
	_ = r.logger.Sync()
}

// loadConfig loads the configuration and applies the flag overrides.
func loadConfig(opts *GlobalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.DBPath != "" {
		cfg.Storage.Path = opts.DBPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore returns the configured store, or nil when storage is disabled.
func openStore(cfg *config.Config, logger *zap.Logger) *storage.SQLiteStorage {
	if !cfg.Storage.Enabled {
		return nil
	}
	return storage.NewStorage(cfg.Storage.Path, logger)
}

// openEngine builds the engine from configuration. persist false keeps the
// engine in memory even when storage is enabled.
func openEngine(ctx context.Context, opts *GlobalOptions, persist bool, m *metrics.Metrics) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	eopts := engine.OptionsFromConfig(cfg)
	eopts.Logger = logger
	eopts.Metrics = m

	rt := &app{cfg: cfg, logger: logger}
	if persist {
		rt.store = openStore(cfg, logger)
		if rt.store != nil {
			eopts.Store = rt.store
		}
	}

	rt.engine, err = engine.New(ctx, eopts)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}
	return rt, nil
}

// formatJSON pretty-prints JSON for export.
func formatJSON(data any) (string, error) {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// writeJSON writes data to path, or to w when path is empty.
func writeJSON(w io.Writer, path string, data any) error {
	out, err := formatJSON(data)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if path == "" {
		_, err = fmt.Fprintln(w, out)
		return err
	}
	if err := os.WriteFile(path, []byte(out+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
