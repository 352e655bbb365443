package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanglvm/flowlearn/internal/config"
)

// NewConfigCmd creates the 'config' command group.
func NewConfigCmd(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigValidateCmd(opts))
	return cmd
}

// newConfigInitCmd writes the default configuration.
func newConfigInitCmd(opts *GlobalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Long: `Write the default configuration to ~/.flowlearn/config.yaml (or --config).

An existing file is only replaced with --force; it is kept as a .bak file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath(opts)
			if err != nil {
				return err
			}

			if err := config.WriteDefault(path, force); err != nil {
				if errors.Is(err, config.ErrConfigExists) {
					return fmt.Errorf("%w (use --force to overwrite)", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")
	return cmd
}

// newConfigValidateCmd loads and validates the configuration.
func newConfigValidateCmd(opts *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, "✓ Configuration is valid")
			fmt.Fprintf(w, "  storage: enabled=%v journal=%v retention=%s\n",
				cfg.Storage.Enabled, cfg.Storage.Journal, cfg.Storage.Retention)
			fmt.Fprintf(w, "  logging: level=%s format=%s\n", cfg.Logging.Level, cfg.Logging.Format)
			if cfg.Metrics.Enabled {
				fmt.Fprintf(w, "  metrics: %s\n", cfg.Metrics.Address)
			}
			return nil
		},
	}
}

func configPath(opts *GlobalOptions) (string, error) {
	if opts.ConfigPath != "" {
		return opts.ConfigPath, nil
	}
	return config.GetDefaultConfigPath()
}
