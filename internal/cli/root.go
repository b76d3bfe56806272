// Package cli implements the weathercat command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chaz8081/weathercat-logger/internal/config"
)

var (
	configPath string
	verbose    bool
	cfg        *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "weathercat",
	Short: "Read one WeatherCat BLE sensor reading into a JSON ledger",
	Long: `weathercat scans for a BLE peripheral advertising as WeatherCat, connects,
reads the telemetry characteristic once, decodes the reading, and appends it
to a JSON ledger file.

Running weathercat without a subcommand is the same as "weathercat read".`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runRead,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.config/weathercat/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
}

// setup loads and validates the config and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	cfg = loaded
	setupLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	return nil
}

// setupLogger configures the default logger from the config level and the
// verbose flag.
func setupLogger(w io.Writer, level string) {
	lvl := config.ParseLogLevel(level)
	if verbose {
		lvl = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return c, nil
	}

	return config.Default(), nil
}
