// Package config handles loading and validating the htsbridge configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the root configuration for the htsbridge daemon.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Transports TransportsConfig `mapstructure:"transports"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Voices     VoicesConfig     `mapstructure:"voices"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	v *viper.Viper
}

// ServerConfig holds the health check server and request policy settings.
type ServerConfig struct {
	HealthPort int `mapstructure:"health_port"`

	// AllowFilePaths lets requests name server-side label and output files.
	AllowFilePaths bool `mapstructure:"allow_file_paths"`
}

// TransportsConfig holds the configuration for each transport layer.
type TransportsConfig struct {
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
}

// GRPCConfig configures the gRPC transport.
type GRPCConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HTTPConfig configures the HTTP/WebSocket transport.
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// EngineConfig selects the engine backend.
type EngineConfig struct {
	Backend string       `mapstructure:"backend"` // "remote" or "mock"
	Remote  RemoteConfig `mapstructure:"remote"`
	Mock    MockConfig   `mapstructure:"mock"`
}

// RemoteConfig points at an engine host speaking the Wyoming-framed engine protocol.
type RemoteConfig struct {
	Endpoint    string `mapstructure:"endpoint"`     // host:port
	DialTimeout string `mapstructure:"dial_timeout"` // Go duration, e.g. "10s"
	CallTimeout string `mapstructure:"call_timeout"` // per engine operation
}

// MockConfig tunes the in-process mock engine.
type MockConfig struct {
	FramesPerLabel int `mapstructure:"frames_per_label"`
}

// Options returns the backend options passed to the engine registry.
func (c EngineConfig) Options() map[string]string {
	switch c.Backend {
	case "remote":
		return map[string]string{
			"endpoint":     c.Remote.Endpoint,
			"dial_timeout": c.Remote.DialTimeout,
			"call_timeout": c.Remote.CallTimeout,
		}
	case "mock":
		if c.Mock.FramesPerLabel > 0 {
			return map[string]string{"frames_per_label": fmt.Sprint(c.Mock.FramesPerLabel)}
		}
	}
	return map[string]string{}
}

// VoicesConfig locates the voice definitions.
type VoicesConfig struct {
	Dir     string `mapstructure:"dir"`
	Default string `mapstructure:"default"`
	Watch   bool   `mapstructure:"watch"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text

	// File additionally writes logs to a rotated file when set.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.health_port", 8081)
	v.SetDefault("server.allow_file_paths", false)
	v.SetDefault("transports.grpc.enabled", true)
	v.SetDefault("transports.grpc.port", 50051)
	v.SetDefault("transports.http.enabled", true)
	v.SetDefault("transports.http.port", 8080)
	v.SetDefault("engine.backend", "remote")
	v.SetDefault("engine.remote.endpoint", "localhost:10300")
	v.SetDefault("engine.remote.dial_timeout", "10s")
	v.SetDefault("engine.remote.call_timeout", "60s")
	v.SetDefault("engine.mock.frames_per_label", 10)
	v.SetDefault("voices.dir", "./voices")
	v.SetDefault("voices.default", "")
	v.SetDefault("voices.watch", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 64)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("logging.compress", false)
}

// Load reads the configuration from file, environment variables, and defaults.
// If configFile is non-empty it is used directly; otherwise the standard
// search order applies: ./htsbridge.yaml, ./configs/htsbridge.yaml, /etc/htsbridge/htsbridge.yaml.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("htsbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/htsbridge")
	}

	// Environment variables: HTSBRIDGE_SERVER_HEALTH_PORT, HTSBRIDGE_ENGINE_BACKEND, etc.
	v.SetEnvPrefix("HTSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional: env vars and defaults are sufficient)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Info("no config file found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.v = v

	// Resolve env var references (e.g., "${ENGINE_HOST}")
	cfg.Engine.Remote.Endpoint = resolveEnvRef(cfg.Engine.Remote.Endpoint)
	cfg.Voices.Dir = resolveEnvRef(cfg.Voices.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail later and less clearly.
func (c *Config) Validate() error {
	switch c.Engine.Backend {
	case "remote":
		if c.Engine.Remote.Endpoint == "" {
			return fmt.Errorf("engine.remote.endpoint is required for the remote backend")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown engine backend %q", c.Engine.Backend)
	}
	if c.Voices.Dir == "" {
		return fmt.Errorf("voices.dir is required")
	}
	return nil
}

// File returns the config file in use, or "" when running on defaults.
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch calls onChange with the re-read configuration whenever the config
// file changes. Invalid edits are logged and skipped. It does nothing when no
// config file was loaded.
func (c *Config) Watch(onChange func(*Config)) {
	if c.File() == "" {
		return
	}
	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		next, err := decode(c.v)
		if err != nil {
			slog.Warn("ignoring invalid config change", "path", e.Name, "error", err)
			return
		}
		slog.Info("config file changed", "path", e.Name, "op", e.Op.String())
		onChange(next)
	})
	c.v.WatchConfig()
}

// resolveEnvRef replaces "${VAR_NAME}" patterns with the corresponding env var value.
func resolveEnvRef(val string) string {
	if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
		envKey := val[2 : len(val)-1]
		if envVal := os.Getenv(envKey); envVal != "" {
			return envVal
		}
	}
	return val
}

// logLevel is shared by every handler SetupLogging installs so that a config
// reload can change the level in place.
var logLevel = new(slog.LevelVar)

// logFile is the rotating file writer of the current logger, if any.
var logFile *lumberjack.Logger

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// SetupLogging configures the global slog logger based on config.
func SetupLogging(cfg LoggingConfig) error {
	logLevel.Set(parseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		if logFile != nil {
			_ = logFile.Close()
		}
		logFile = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, logFile)
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// SetLogLevel changes the level of the installed logger.
func SetLogLevel(level string) {
	logLevel.Set(parseLevel(level))
}

// CloseLogging flushes and closes the log file, if any.
func CloseLogging() error {
	if logFile == nil {
		return nil
	}
	return logFile.Close()
}
