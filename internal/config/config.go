package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	BLE      BLEConfig   `yaml:"ble"`
	Codec    CodecConfig `yaml:"codec"`
	Store    StoreConfig `yaml:"store"`
	LogLevel string      `yaml:"log_level"`
}

// BLEConfig holds discovery and session settings.
type BLEConfig struct {
	DeviceName         string        `yaml:"device_name"`
	CharacteristicUUID string        `yaml:"characteristic_uuid"`
	ScanSettle         time.Duration `yaml:"scan_settle"`
	ReadSettle         time.Duration `yaml:"read_settle"`
	ScanAttempts       int           `yaml:"scan_attempts"` // 0 = unbounded
	ScanTimeout        time.Duration `yaml:"scan_timeout"`  // 0 = none
	BackoffInitial     time.Duration `yaml:"backoff_initial"`
	BackoffMax         time.Duration `yaml:"backoff_max"`
	ConnectTimeout     time.Duration `yaml:"connect_timeout"`
}

// CodecConfig selects how characteristic bytes are decoded.
type CodecConfig struct {
	Mode                    string `yaml:"mode"` // "plain", "hex", or "encrypted"
	PrivateKeyPath          string `yaml:"private_key_path"`
	PrivateKeyPassphraseEnv string `yaml:"private_key_passphrase_env"`
}

// StoreConfig locates the reading ledger.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "weathercat")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		BLE: BLEConfig{
			DeviceName:         "WeatherCat",
			CharacteristicUUID: "00002a6e-0000-1000-8000-00805f9b34fb",
			ScanSettle:         2 * time.Second,
			ReadSettle:         1 * time.Second,
			ScanAttempts:       10,
			ScanTimeout:        2 * time.Minute,
			BackoffInitial:     1 * time.Second,
			BackoffMax:         30 * time.Second,
			ConnectTimeout:     15 * time.Second,
		},
		Codec: CodecConfig{
			Mode: "plain",
		},
		Store: StoreConfig{
			Path: "./temp_store.json",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Store.Path = expandTilde(cfg.Store.Path)
	cfg.Codec.PrivateKeyPath = expandTilde(cfg.Codec.PrivateKeyPath)

	return cfg, nil
}

// WriteDefault writes the default config to path unless a file already
// exists there. Returns true when a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return false, fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("writing config file: %w", err)
	}
	return true, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.BLE.DeviceName == "" {
		return fmt.Errorf("ble.device_name must not be empty")
	}
	if _, err := uuid.Parse(c.BLE.CharacteristicUUID); err != nil {
		return fmt.Errorf("ble.characteristic_uuid %q is not a UUID: %w", c.BLE.CharacteristicUUID, err)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"ble.scan_settle", c.BLE.ScanSettle},
		{"ble.read_settle", c.BLE.ReadSettle},
		{"ble.scan_timeout", c.BLE.ScanTimeout},
		{"ble.backoff_initial", c.BLE.BackoffInitial},
		{"ble.backoff_max", c.BLE.BackoffMax},
		{"ble.connect_timeout", c.BLE.ConnectTimeout},
	}
	for _, d := range durations {
		if d.d < 0 {
			return fmt.Errorf("%s must be >= 0, got %s", d.name, d.d)
		}
	}
	if c.BLE.ScanAttempts < 0 {
		return fmt.Errorf("ble.scan_attempts must be >= 0, got %d", c.BLE.ScanAttempts)
	}

	switch c.Codec.Mode {
	case "plain", "hex":
	case "encrypted":
		if c.Codec.PrivateKeyPath == "" {
			return errors.New("codec.private_key_path is required when codec.mode is \"encrypted\"")
		}
	default:
		return fmt.Errorf("codec.mode must be \"plain\", \"hex\", or \"encrypted\", got %q", c.Codec.Mode)
	}

	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Passphrase returns the private key passphrase from the configured
// environment variable, or nil when none is configured.
func (c *CodecConfig) Passphrase() []byte {
	if c.PrivateKeyPassphraseEnv == "" {
		return nil
	}
	v := os.Getenv(c.PrivateKeyPassphraseEnv)
	if v == "" {
		return nil
	}
	return []byte(v)
}

// ParseLogLevel maps a config log level to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
