// Package config loads flowlock settings from defaults, an optional YAML
// file and FLOWLOCK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/sudo-0-AM/ArcheTYPE/internal/domain"
	"github.com/sudo-0-AM/ArcheTYPE/internal/infra"
)

// Store backends.
const (
	BackendFile      = "file"
	BackendEncrypted = "encrypted"
)

// Config holds application configuration.
type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Store        StoreConfig        `mapstructure:"store"`
	Profiles     ProfilesConfig     `mapstructure:"profiles"`
	Loop         LoopConfig         `mapstructure:"loop"`
	Collaborator CollaboratorConfig `mapstructure:"collaborator"`
	Prepare      PrepareConfig      `mapstructure:"prepare"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Idle         IdleConfig         `mapstructure:"idle"`
	Log          LogConfig          `mapstructure:"log"`
}

// StoreConfig selects the state backend. Path is the directory holding
// the state record; empty means DataDir.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ProfilesConfig locates user profile files. Empty means <DataDir>/profiles.
type ProfilesConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoopConfig holds the enforcement cadence.
type LoopConfig struct {
	CheckInterval           time.Duration `mapstructure:"check_interval"`
	IdleBackoff             time.Duration `mapstructure:"idle_backoff"`
	ViolationBackoff        time.Duration `mapstructure:"violation_backoff"`
	StatusInterval          time.Duration `mapstructure:"status_interval"`
	PersistenceFailureLimit int           `mapstructure:"persistence_failure_limit"`
}

// CollaboratorConfig configures the correction responder command.
type CollaboratorConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PrepareConfig configures the profile-prepare hook.
type PrepareConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// NotifyConfig configures desktop notifications.
type NotifyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Command string `mapstructure:"command"`
}

// IdleConfig lists idle probes in the order they are tried.
type IdleConfig struct {
	Probes []string `mapstructure:"probes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", infra.DetectExecMode().DataDir)
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "")
	v.SetDefault("profiles.dir", "")
	v.SetDefault("loop.check_interval", "3s")
	v.SetDefault("loop.idle_backoff", "20s")
	v.SetDefault("loop.violation_backoff", "1s")
	v.SetDefault("loop.status_interval", "20m")
	v.SetDefault("loop.persistence_failure_limit", 10)
	v.SetDefault("collaborator.command", "")
	v.SetDefault("collaborator.timeout", "30s")
	v.SetDefault("prepare.command", "")
	v.SetDefault("prepare.timeout", "30s")
	v.SetDefault("prepare.retries", 2)
	v.SetDefault("notify.enabled", true)
	v.SetDefault("notify.command", infra.DefaultNotifyCommand)
	v.SetDefault("idle.probes", infra.DefaultIdleProbes)
	v.SetDefault("log.level", "info")
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() Config {
	c, err := decode(newViper())
	if err != nil {
		// Defaults always decode.
		panic(err)
	}
	return c
}

// Path returns the config file location: $FLOWLOCK_CONFIG, else
// ~/.config/flowlock/config.yaml.
func Path() string {
	if p := os.Getenv("FLOWLOCK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(infra.GetRealUserHome(), ".config", "flowlock", "config.yaml")
}

// Load reads configuration from file and env. Env var overrides use prefix FLOWLOCK_.
func Load() (Config, error) {
	v := newViper()
	v.SetConfigType("yaml")

	explicit := os.Getenv("FLOWLOCK_CONFIG") != ""
	v.SetConfigFile(Path())

	v.SetEnvPrefix("FLOWLOCK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return Config{}, fmt.Errorf("config file %s: %w", Path(), domain.ErrConfigMissing)
			}
		default:
			return Config{}, fmt.Errorf("read config %s: %v: %w", Path(), err, domain.ErrConfigCorrupt)
		}
	}

	c, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func decode(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %v: %w", err, domain.ErrConfigCorrupt)
	}
	c.resolvePaths()
	return c, nil
}

// resolvePaths expands ~ and fills directories derived from DataDir.
func (c *Config) resolvePaths() {
	c.DataDir = infra.ExpandHome(c.DataDir)
	if c.Store.Path == "" {
		c.Store.Path = c.DataDir
	}
	c.Store.Path = infra.ExpandHome(c.Store.Path)
	if c.Profiles.Dir == "" {
		c.Profiles.Dir = filepath.Join(c.DataDir, "profiles")
	}
	c.Profiles.Dir = infra.ExpandHome(c.Profiles.Dir)
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is empty"))
	}
	if c.Store.Backend != BackendFile && c.Store.Backend != BackendEncrypted {
		errs = append(errs, fmt.Errorf("store.backend %q: want %q or %q", c.Store.Backend, BackendFile, BackendEncrypted))
	}
	for key, d := range map[string]time.Duration{
		"loop.check_interval":     c.Loop.CheckInterval,
		"loop.idle_backoff":       c.Loop.IdleBackoff,
		"loop.violation_backoff":  c.Loop.ViolationBackoff,
		"loop.status_interval":    c.Loop.StatusInterval,
		"collaborator.timeout":    c.Collaborator.Timeout,
		"prepare.timeout":         c.Prepare.Timeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Loop.PersistenceFailureLimit < 1 {
		errs = append(errs, fmt.Errorf("loop.persistence_failure_limit must be at least 1, got %d", c.Loop.PersistenceFailureLimit))
	}
	if c.Prepare.Retries < 0 {
		errs = append(errs, fmt.Errorf("prepare.retries must not be negative, got %d", c.Prepare.Retries))
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w: %w", errors.Join(errs...), domain.ErrConfigCorrupt)
	}
	return nil
}

// LogLevel returns the parsed log level, falling back to info.
func (c Config) LogLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}
