package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all operator configuration.
type Config struct {
	Remote   RemoteConfig   `mapstructure:"remote"`
	Source   SourceConfig   `mapstructure:"source"`
	Deploy   DeployConfig   `mapstructure:"deploy"`
	Proxy    ProxyConfig    `mapstructure:"proxy"`
	Health   HealthConfig   `mapstructure:"health"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Log      LogConfig      `mapstructure:"log"`
}

// RemoteConfig holds the SSH connection parameters.
type RemoteConfig struct {
	Host           string        `mapstructure:"host"`
	User           string        `mapstructure:"user"`
	KeyPath        string        `mapstructure:"key_path"`
	Port           int           `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`
}

// SourceConfig holds source retrieval parameters. Either Repo (a git URL to
// clone) or LocalDir (an existing checkout) must be set.
type SourceConfig struct {
	Repo     string `mapstructure:"repo"`
	Branch   string `mapstructure:"branch"`
	WorkDir  string `mapstructure:"work_dir"`
	LocalDir string `mapstructure:"local_dir"`
}

// DeployConfig holds workload placement parameters.
type DeployConfig struct {
	// AppDirBase is the parent of per-workload application directories.
	AppDirBase string `mapstructure:"app_dir_base"`

	// InternalPort is the port the workload listens on.
	InternalPort int `mapstructure:"internal_port"`

	// PublicHost is the hostname the proxy serves; defaults to the remote
	// host address when empty.
	PublicHost string `mapstructure:"public_host"`
}

// ProxyConfig holds the reverse proxy directory layout.
type ProxyConfig struct {
	AvailableDir string `mapstructure:"available_dir"`
	EnabledDir   string `mapstructure:"enabled_dir"`
}

// HealthConfig tunes the health polling loop.
type HealthConfig struct {
	SettleDelay time.Duration `mapstructure:"settle_delay"`
	Interval    time.Duration `mapstructure:"interval"`
	MaxSamples  int           `mapstructure:"max_samples"`
}

// TransferConfig holds extra rsync exclude patterns.
type TransferConfig struct {
	Excludes []string `mapstructure:"excludes"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("remote.port", 22)
	v.SetDefault("remote.connect_timeout", "10s")
	v.SetDefault("remote.command_timeout", "10m")
	v.SetDefault("source.work_dir", "./data/checkouts")
	v.SetDefault("deploy.app_dir_base", "/srv/apps")
	v.SetDefault("deploy.internal_port", 3000)
	v.SetDefault("proxy.available_dir", "/etc/nginx/sites-available")
	v.SetDefault("proxy.enabled_dir", "/etc/nginx/sites-enabled")
	v.SetDefault("health.settle_delay", "5s")
	v.SetDefault("health.interval", "2s")
	v.SetDefault("health.max_samples", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	v.SetEnvPrefix("DOCKHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the parameters the pipeline cannot run without.
func (c *Config) Validate() error {
	var problems []string
	if c.Remote.Host == "" {
		problems = append(problems, "remote.host is required")
	}
	if c.Remote.User == "" {
		problems = append(problems, "remote.user is required")
	}
	if c.Remote.KeyPath == "" {
		problems = append(problems, "remote.key_path is required")
	}
	if c.Source.Repo == "" && c.Source.LocalDir == "" {
		problems = append(problems, "one of source.repo or source.local_dir is required")
	}
	if c.Deploy.InternalPort < 1 || c.Deploy.InternalPort > 65535 {
		problems = append(problems, fmt.Sprintf("deploy.internal_port %d out of range", c.Deploy.InternalPort))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid parameters: %s", strings.Join(problems, "; "))
	}
	return nil
}

// =============================================================================
// Per-Repository Parameters
// =============================================================================

// RepoParams is the optional deploy.yml at the repository root. Values set
// here override the operator config for this repository only.
type RepoParams struct {
	PublicHost   string `yaml:"public_host"`
	InternalPort int    `yaml:"internal_port"`
}

// LoadRepoParams reads deploy.yml from the source tree. A missing file
// returns zero params; a broken file is an error.
func LoadRepoParams(sourceDir string) (RepoParams, error) {
	var params RepoParams
	data, err := os.ReadFile(filepath.Join(sourceDir, "deploy.yml"))
	if os.IsNotExist(err) {
		return params, nil
	}
	if err != nil {
		return params, fmt.Errorf("read deploy.yml: %w", err)
	}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("parse deploy.yml: %w", err)
	}
	return params, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// DefaultLogFile returns the timestamped default log path.
func DefaultLogFile(now time.Time) string {
	return fmt.Sprintf("dockhand-%s.log", now.Format("20060102-150405"))
}

// SetupLogger creates a logger at the configured level and format, teeing
// output to the log file. The returned closer owns the file handle.
func SetupLogger(cfg *Config, logFile string) (*slog.Logger, io.Closer, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	out := io.MultiWriter(os.Stdout, file)

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), file, nil
}
