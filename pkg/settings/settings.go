// Package settings loads process-wide result defaults with viper.
//
// Values come, in increasing precedence, from built-in defaults, an optional
// config file and RESULTDOCK_* environment variables (e.g.
// RESULTDOCK_RESULTS_DEFAULT_SERIALIZER=compressed/json).
package settings

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "RESULTDOCK"

// Settings holds process-wide defaults.
type Settings struct {
	Results ResultsSettings `mapstructure:"results"`
	Tasks   TasksSettings   `mapstructure:"tasks"`
	Locking LockingSettings `mapstructure:"locking"`
	Logging LoggingSettings `mapstructure:"logging"`

	// Blocks maps storage block names to locations understood by
	// storage.Open, e.g. {"archive": "s3://bucket/results"}.
	Blocks map[string]string `mapstructure:"blocks"`
}

// ResultsSettings configures default storage and serialization of results.
type ResultsSettings struct {
	// DefaultStorageBlock names a registered backend used when no storage
	// is configured. Empty falls back to LocalStoragePath.
	DefaultStorageBlock string `mapstructure:"default_storage_block"`
	LocalStoragePath    string `mapstructure:"local_storage_path"`
	DefaultSerializer   string `mapstructure:"default_serializer"`
	PersistByDefault    bool   `mapstructure:"persist_by_default"`
}

// TasksSettings configures deferred task execution.
type TasksSettings struct {
	SchedulingDefaultStorageBlock string `mapstructure:"scheduling_default_storage_block"`
}

// LockingSettings configures the lock manager.
type LockingSettings struct {
	// RedisURL selects a Redis lock manager; empty uses in-process locks.
	RedisURL string `mapstructure:"redis_url"`
}

// LoggingSettings configures the process logger.
type LoggingSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("results.default_storage_block", "")
	v.SetDefault("results.local_storage_path", "~/.resultdock/storage")
	v.SetDefault("results.default_serializer", "json")
	v.SetDefault("results.persist_by_default", false)
	v.SetDefault("tasks.scheduling_default_storage_block", "")
	v.SetDefault("locking.redis_url", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads settings. An empty path skips the config file; otherwise the
// file must exist.
func Load(path string) (*Settings, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes settings from an already-configured viper instance.
func FromViper(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Default returns the built-in defaults merged with the environment.
func Default() *Settings {
	s, err := FromViper(NewViper())
	if err != nil {
		// Environment overrides were invalid; ignore them
		v := viper.New()
		SetDefaults(v)
		s, _ = FromViper(v)
	}
	return s
}

// Validate checks settings for values no component could use.
func (s *Settings) Validate() error {
	if s.Results.LocalStoragePath == "" && s.Results.DefaultStorageBlock == "" {
		return errors.New("results.local_storage_path must be set when no default storage block is configured")
	}
	if s.Results.DefaultSerializer == "" {
		return errors.New("results.default_serializer must not be empty")
	}
	if _, err := parseLevel(s.Logging.Level); err != nil {
		return err
	}
	switch s.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported logging.format %q (want text or json)", s.Logging.Format)
	}
	return nil
}

// NewLogger builds a slog logger writing to w per the logging settings.
// A nil w writes to stderr.
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := parseLevel(s.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported logging.level %q", level)
	}
}
