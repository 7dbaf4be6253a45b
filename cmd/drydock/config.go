package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Store      StoreConfig      `mapstructure:"store"`
	Docker     DockerConfig     `mapstructure:"docker"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Probe      ProbeConfig      `mapstructure:"probe"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Secret     SecretConfig     `mapstructure:"secret"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StoreConfig holds the SQLite store configuration.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// DockerConfig holds container runtime configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// CatalogConfig points at an optional profile catalog file merged over
// the built-in profiles.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig holds installation engine tuning.
type EngineConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	HealthTimeout time.Duration `mapstructure:"health_timeout"`
	PollBase      time.Duration `mapstructure:"poll_base"`
	PollCap       time.Duration `mapstructure:"poll_cap"`
	StopTimeout   time.Duration `mapstructure:"stop_timeout"`
	Network       string        `mapstructure:"network"`
	FeedCapacity  int           `mapstructure:"feed_capacity"`
}

// ProbeConfig overrides host capacity detection. When every field is
// zero the runtime is probed instead.
type ProbeConfig struct {
	CPUCores float64 `mapstructure:"cpu_cores"`
	MemoryGB float64 `mapstructure:"memory_gb"`
	DiskGB   float64 `mapstructure:"disk_gb"`
}

// Static reports whether a manual capacity override is configured.
func (c ProbeConfig) Static() bool {
	return c.CPUCores > 0 || c.MemoryGB > 0 || c.DiskGB > 0
}

// CheckpointConfig holds checkpoint history settings. Retention 0 keeps
// every checkpoint.
type CheckpointConfig struct {
	Retention int `mapstructure:"retention"`
}

// SecretConfig holds the master secret used to seal sensitive values in
// persisted checkpoints. Set via DRYDOCK_SECRET_MASTER; values stay in
// plaintext when empty.
type SecretConfig struct {
	Master string `mapstructure:"master"`
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

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("store.path", "data/drydock.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("catalog.path", "")
	v.SetDefault("engine.max_concurrent", 4)
	v.SetDefault("engine.health_timeout", "2m")
	v.SetDefault("engine.poll_base", "500ms")
	v.SetDefault("engine.poll_cap", "5s")
	v.SetDefault("engine.stop_timeout", "15s")
	v.SetDefault("engine.network", "drydock")
	v.SetDefault("engine.feed_capacity", 512)
	v.SetDefault("probe.cpu_cores", 0)
	v.SetDefault("probe.memory_gb", 0)
	v.SetDefault("probe.disk_gb", 0)
	v.SetDefault("checkpoint.retention", 0)
	v.SetDefault("secret.master", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Load from file if provided
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

	// Enable environment variable overrides
	v.SetEnvPrefix("DRYDOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// DRYDOCK_DATA_DIR relocates the store without spelling the full
	// path. An explicit store.path, from file or environment, wins.
	if dataDir := v.GetString("data_dir"); dataDir != "" {
		if os.Getenv("DRYDOCK_STORE_PATH") == "" && !v.InConfig("store.path") {
			v.Set("store.path", filepath.Join(dataDir, "drydock.db"))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Engine.MaxConcurrent < 1 {
		return fmt.Errorf("engine.max_concurrent must be at least 1, got %d", c.Engine.MaxConcurrent)
	}
	if c.Checkpoint.Retention < 0 {
		return fmt.Errorf("checkpoint.retention cannot be negative, got %d", c.Checkpoint.Retention)
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
