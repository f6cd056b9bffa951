package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"centinela/utils"

	"github.com/spf13/viper"
)

type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Scanning    ScanningConfig    `mapstructure:"scanning"`
	Reports     ReportsConfig     `mapstructure:"reports"`
	Remediation RemediationConfig `mapstructure:"remediation"`

	// Source is the file the configuration was read from, empty when only
	// built-in defaults apply.
	Source string `mapstructure:"-"`
}

type LoggingConfig struct {
	Directory   string `mapstructure:"directory"`
	Filename    string `mapstructure:"filename"`
	MaxBytes    int64  `mapstructure:"max_bytes"`
	BackupCount int    `mapstructure:"backup_count"`
	Level       string `mapstructure:"level"`
}

type ScanningConfig struct {
	BlockSize      int      `mapstructure:"block_size"`
	FollowSymlinks bool     `mapstructure:"follow_symlinks"`
	Paths          []string `mapstructure:"paths"`
	Include        []string `mapstructure:"include"`
	Exclude        []string `mapstructure:"exclude"`
	IgnoreFile     string   `mapstructure:"ignore_file"`
	MaxIOPerSecond int      `mapstructure:"max_io_per_second"`
	FuzzyHash      bool     `mapstructure:"fuzzy_hash"`
	StartupDirs    []string `mapstructure:"startup_dirs"`
}

type ReportsConfig struct {
	Directory       string            `mapstructure:"directory"`
	Format          string            `mapstructure:"format"`
	OtelEndpoint    string            `mapstructure:"otel_endpoint"`
	OtelHeaders     map[string]string `mapstructure:"otel_headers"`
	OtelServiceName string            `mapstructure:"otel_service_name"`
	OtelTimeout     time.Duration     `mapstructure:"otel_timeout"`
	OtelExportPaths bool              `mapstructure:"otel_export_paths"`
}

type RemediationConfig struct {
	QuarantineDir       string `mapstructure:"quarantine_dir"`
	RequireConfirmation bool   `mapstructure:"require_confirmation"`
}

const envPrefix = "CENTINELA"

// DefaultStartupDirs are the autostart locations checked for running
// executables, across macOS, Windows and XDG desktops.
var DefaultStartupDirs = []string{
	"~/Library/LaunchAgents",
	"~/Library/LaunchDaemons",
	"~/Library/StartupItems",
	"~/AppData/Roaming/Microsoft/Windows/Start Menu/Programs/Startup",
	"/etc/xdg/autostart",
	"~/.config/autostart",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.filename", "antivirus.log")
	v.SetDefault("logging.max_bytes", 1048576)
	v.SetDefault("logging.backup_count", 5)
	v.SetDefault("logging.level", "info")

	v.SetDefault("scanning.block_size", 65536)
	v.SetDefault("scanning.follow_symlinks", false)
	v.SetDefault("scanning.paths", []string{})
	v.SetDefault("scanning.include", []string{})
	v.SetDefault("scanning.exclude", []string{})
	v.SetDefault("scanning.ignore_file", "")
	v.SetDefault("scanning.max_io_per_second", 0)
	v.SetDefault("scanning.fuzzy_hash", false)
	v.SetDefault("scanning.startup_dirs", DefaultStartupDirs)

	v.SetDefault("reports.directory", "reports")
	v.SetDefault("reports.format", "json")
	v.SetDefault("reports.otel_endpoint", "")
	v.SetDefault("reports.otel_headers", map[string]string{})
	v.SetDefault("reports.otel_service_name", "centinela")
	v.SetDefault("reports.otel_timeout", 5*time.Second)
	v.SetDefault("reports.otel_export_paths", false)

	v.SetDefault("remediation.quarantine_dir", "quarantine")
	v.SetDefault("remediation.require_confirmation", true)
}

// Default returns the built-in configuration, ignoring files and the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: built-in defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads configuration from path, or from the first default location
// that exists when path is empty. A missing explicit path, unparsable file
// or invalid value is an error; callers must not continue with a partial
// configuration.
func Load(path string) (*Config, error) {
	v := newViper()

	source, err := resolveConfigFile(path)
	if err != nil {
		return nil, err
	}
	if source != "" {
		v.SetConfigFile(source)
		if filepath.Ext(source) == "" {
			v.SetConfigType("json")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid config file format: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.Source = source
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid config file format: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

// DefaultConfigPaths lists the locations searched when no explicit file is
// given, in order.
func DefaultConfigPaths() []string {
	paths := []string{filepath.Join("config", "default_config.json")}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".centinela", "config.json"))
	}
	return paths
}

func resolveConfigFile(path string) (string, error) {
	if path = strings.TrimSpace(path); path != "" {
		path = utils.ExpandHome(path)
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("could not read config file: %w", err)
		}
		return path, nil
	}
	for _, candidate := range DefaultConfigPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("could not read config file: %w", err)
		}
	}
	return "", nil
}

func (cfg *Config) normalize() {
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Reports.Format = strings.ToLower(strings.TrimSpace(cfg.Reports.Format))
	cfg.Reports.OtelEndpoint = strings.TrimSpace(cfg.Reports.OtelEndpoint)
	cfg.Scanning.Paths = expandAll(parseList(cfg.Scanning.Paths))
	cfg.Scanning.Include = parseList(cfg.Scanning.Include)
	cfg.Scanning.Exclude = parseList(cfg.Scanning.Exclude)
	cfg.Scanning.StartupDirs = parseList(cfg.Scanning.StartupDirs)
	cfg.Scanning.IgnoreFile = utils.ExpandHome(strings.TrimSpace(cfg.Scanning.IgnoreFile))
	cfg.Reports.Directory = utils.ExpandHome(cfg.Reports.Directory)
	cfg.Remediation.QuarantineDir = utils.ExpandHome(cfg.Remediation.QuarantineDir)
	cfg.Logging.Directory = utils.ExpandHome(cfg.Logging.Directory)
	if cfg.Reports.OtelHeaders == nil {
		cfg.Reports.OtelHeaders = map[string]string{}
	}
}

func (cfg *Config) validate() error {
	if cfg.Scanning.BlockSize <= 0 {
		return fmt.Errorf("scanning.block_size must be positive")
	}
	if cfg.Scanning.MaxIOPerSecond < 0 {
		return fmt.Errorf("scanning.max_io_per_second must be zero or positive")
	}
	if cfg.Reports.Format != "json" && cfg.Reports.Format != "text" {
		return fmt.Errorf("invalid reports.format: %s (json or text)", cfg.Reports.Format)
	}
	if strings.TrimSpace(cfg.Reports.Directory) == "" {
		return fmt.Errorf("reports.directory must not be empty")
	}
	if strings.TrimSpace(cfg.Remediation.QuarantineDir) == "" {
		return fmt.Errorf("remediation.quarantine_dir must not be empty")
	}
	if cfg.Logging.MaxBytes < 0 {
		return fmt.Errorf("logging.max_bytes must be zero or positive")
	}
	if cfg.Logging.BackupCount < 0 {
		return fmt.Errorf("logging.backup_count must be zero or positive")
	}
	if !containsString([]string{"trace", "debug", "info", "warn", "warning", "error", "fatal", "panic"}, cfg.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}
	if cfg.Reports.OtelTimeout < 0 {
		return fmt.Errorf("reports.otel_timeout must be zero or positive")
	}
	if cfg.Reports.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.Reports.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.Reports.OtelEndpoint, "https://") {
			return fmt.Errorf("reports.otel_endpoint must include scheme (http or https)")
		}
	}
	return nil
}

// Validate re-checks a configuration after callers adjusted it in code.
func (cfg *Config) Validate() error {
	cfg.normalize()
	return cfg.validate()
}

// parseList trims entries and drops empty ones. Comma separated values
// from the environment are already split by viper's slice decode hook;
// entries from a config file are kept whole.
func parseList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func expandAll(items []string) []string {
	for i, item := range items {
		items[i] = utils.ExpandHome(item)
	}
	return items
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
