package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-packager/internal/domain/update"
	"github.com/oshokin/update-packager/internal/logger"
)

// Config holds the settings shared by every packager command.
type Config struct {
	// PackageFormat selects the artifact layout: "archive" or "directory".
	PackageFormat string `yaml:"package_format" mapstructure:"package_format"`
	// ExecutorProcess is the transport executor process name. While it runs the
	// packager refuses to replace an artifact. Empty disables the check.
	ExecutorProcess string `yaml:"executor_process" mapstructure:"executor_process"`
	// CompatibilityCheck enables device-name probing of application images.
	CompatibilityCheck bool `yaml:"compatibility_check" mapstructure:"compatibility_check"`
	// LogLevel is the minimum level of log messages.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
	// Eligibility decides which nodes take part in updates.
	Eligibility Eligibility `yaml:"eligibility" mapstructure:"eligibility"`
}

// Eligibility mirrors update.EligibilityPolicy in the settings file.
type Eligibility struct {
	AllowFileBased         bool `yaml:"allow_file_based" mapstructure:"allow_file_based"`
	AllowLegacyFlashloader bool `yaml:"allow_legacy_flashloader" mapstructure:"allow_legacy_flashloader"`
	RequireApplication     bool `yaml:"require_application" mapstructure:"require_application"`
}

const (
	// DefaultConfigFilename is the default filename for packager settings.
	DefaultConfigFilename = "update-packager-settings.yaml"

	// FormatArchive writes a single compressed file.
	FormatArchive = "archive"
	// FormatDirectory writes a directory tree.
	FormatDirectory = "directory"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// envPrefix is prepended to upper-cased keys for environment overrides.
	envPrefix = "UPDATE_PACKAGER"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownFormat is returned for an unsupported package format.
	errUnknownFormat = errors.New("unknown package format")
	// errUnknownLogLevel is returned for an unsupported log level.
	errUnknownLogLevel = errors.New("unknown log level")
)

// Default returns the settings used when no file exists.
func Default() *Config {
	policy := update.DefaultEligibilityPolicy()

	return &Config{
		PackageFormat:      FormatArchive,
		CompatibilityCheck: true,
		LogLevel:           "info",
		Eligibility: Eligibility{
			AllowFileBased:         policy.AllowFileBased,
			AllowLegacyFlashloader: policy.AllowLegacyFlashloader,
			RequireApplication:     policy.RequireApplication,
		},
	}
}

// Load reads configuration from the provided path, applies environment
// overrides and validates the result. A missing file yields the defaults.
// Every failure wraps update.ErrInvalidSettings.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path = filepath.Clean(path)

	_, err := os.Stat(path)

	switch {
	case err == nil:
		v.SetConfigFile(path)

		if err = v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", update.ErrInvalidSettings, path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		logger.Logger().Debugw("Settings file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("%w: stat %s: %w", update.ErrInvalidSettings, path, err)
	}

	var cfg Config
	if err = v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal %s: %w", update.ErrInvalidSettings, path, err)
	}

	if err = Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", update.ErrInvalidSettings, path, err)
	}

	return &cfg, nil
}

// Save writes Config to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	cfg.PackageFormat = strings.ToLower(strings.TrimSpace(cfg.PackageFormat))
	if cfg.PackageFormat == "" {
		cfg.PackageFormat = FormatArchive
	}

	if cfg.PackageFormat != FormatArchive && cfg.PackageFormat != FormatDirectory {
		return fmt.Errorf("%q: %w", cfg.PackageFormat, errUnknownFormat)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if _, ok := logger.ParseLogLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%q: %w", cfg.LogLevel, errUnknownLogLevel)
	}

	cfg.ExecutorProcess = strings.TrimSpace(cfg.ExecutorProcess)

	return nil
}

// Policy converts the eligibility settings into the domain policy.
func (c *Config) Policy() update.EligibilityPolicy {
	return update.EligibilityPolicy{
		AllowFileBased:         c.Eligibility.AllowFileBased,
		AllowLegacyFlashloader: c.Eligibility.AllowLegacyFlashloader,
		RequireApplication:     c.Eligibility.RequireApplication,
	}
}

// setDefaults registers every key so environment overrides apply even without a file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("package_format", cfg.PackageFormat)
	v.SetDefault("executor_process", cfg.ExecutorProcess)
	v.SetDefault("compatibility_check", cfg.CompatibilityCheck)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("eligibility.allow_file_based", cfg.Eligibility.AllowFileBased)
	v.SetDefault("eligibility.allow_legacy_flashloader", cfg.Eligibility.AllowLegacyFlashloader)
	v.SetDefault("eligibility.require_application", cfg.Eligibility.RequireApplication)
}
