// Package config assembles the tinyretro runtime configuration from
// defaults, an optional YAML file, TINYRETRO_* environment variables and
// command-line flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Storage drivers understood by the server.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

const envPrefix = "TINYRETRO_"

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// StorageConfig selects and configures the persistence gateway.
type StorageConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
	RedisKey string `yaml:"redis_key"`
	BoardID  string `yaml:"board_id"`
}

// Config holds every runtime setting of the server.
type Config struct {
	Addr           string          `yaml:"addr"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	// BroadcastBuffer is the number of snapshots the hub will hold before
	// publishers wait. SendBuffer is the per-session outbound backlog.
	BroadcastBuffer int `yaml:"broadcast_buffer"`
	SendBuffer      int `yaml:"send_buffer"`

	PingPeriod time.Duration `yaml:"ping_period"`
	PongWait   time.Duration `yaml:"pong_wait"`
	WriteWait  time.Duration `yaml:"write_wait"`

	// SendRejections makes the server tell a session when one of its
	// actions was refused.
	SendRejections bool `yaml:"send_rejections"`

	Storage        StorageConfig `yaml:"storage"`
	SaveRetries    int           `yaml:"save_retries"`
	SaveRetryDelay time.Duration `yaml:"save_retry_delay"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Addr: ":3000",
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		MaxMessageSize: 64 * 1024,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		BroadcastBuffer: 100,
		SendBuffer:      100,
		PingPeriod:      54 * time.Second,
		PongWait:        60 * time.Second,
		WriteWait:       10 * time.Second,
		Storage: StorageConfig{
			Driver:   DriverFile,
			Path:     "./retroboard.json",
			RedisURL: "redis://localhost:6379/0",
			RedisKey: "tinyretro:board",
			BoardID:  "default",
		},
		SaveRetries:     3,
		SaveRetryDelay:  200 * time.Millisecond,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Sanitize replaces invalid or missing values with their defaults.
func Sanitize(cfg Config) Config {
	def := Default()

	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = def.Storage.Driver
	}
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = def.Storage.Path
	}
	if cfg.Storage.RedisKey == "" {
		cfg.Storage.RedisKey = def.Storage.RedisKey
	}
	if cfg.Storage.BoardID == "" {
		cfg.Storage.BoardID = def.Storage.BoardID
	}
	if cfg.SaveRetries < 0 {
		cfg.SaveRetries = 0
	}
	if cfg.SaveRetryDelay <= 0 {
		cfg.SaveRetryDelay = def.SaveRetryDelay
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = def.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = def.LogFormat
	}
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports settings that cannot be repaired by Sanitize.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewFlagSet defines the command-line flags understood by Load.
func NewFlagSet(name string) *pflag.FlagSet {
	def := Default()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("addr", def.Addr, "address to listen on")
	fs.StringSlice("allowed-origins", def.AllowedOrigins, "origins allowed to open websockets (* for any)")
	fs.String("storage", def.Storage.Driver, "storage driver: file, sqlite or redis")
	fs.String("data", def.Storage.Path, "board file or sqlite database path")
	fs.String("redis-url", def.Storage.RedisURL, "redis connection url")
	fs.Bool("send-rejections", def.SendRejections, "tell sessions when their actions are refused")
	fs.String("log-level", def.LogLevel, "debug, info, warn or error")
	fs.String("log-format", def.LogFormat, "text or json")
	return fs
}

// Load builds a Config from args and the environment. lookup is usually
// os.LookupEnv.
func Load(args []string, lookup func(string) (string, bool)) (Config, error) {
	fs := NewFlagSet("tinyretro")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path, _ := fs.GetString("config")
	if path == "" {
		path, _ = lookup(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg, lookup)
	if err := applyFlags(&cfg, fs); err != nil {
		return Config{}, err
	}

	cfg = Sanitize(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg. Keys missing from the
// file leave cfg untouched.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	env := func(key string) string {
		value, ok := lookup(envPrefix + key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(value)
	}

	if v := env("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := env("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = parseOrigins(v)
	}
	if v := env("MAX_MESSAGE_SIZE"); v != "" {
		cfg.MaxMessageSize = parseInt64Value(v, cfg.MaxMessageSize)
	}
	if v := env("RATE_LIMIT_BURST"); v != "" {
		cfg.RateLimit.Burst = parseIntValue(v, cfg.RateLimit.Burst)
	}
	if v := env("RATE_LIMIT_REFILL_INTERVAL"); v != "" {
		cfg.RateLimit.RefillInterval = parseDuration(v, cfg.RateLimit.RefillInterval)
	}
	if v := env("BROADCAST_BUFFER"); v != "" {
		cfg.BroadcastBuffer = parseIntValue(v, cfg.BroadcastBuffer)
	}
	if v := env("SEND_BUFFER"); v != "" {
		cfg.SendBuffer = parseIntValue(v, cfg.SendBuffer)
	}
	if v := env("PING_PERIOD"); v != "" {
		cfg.PingPeriod = parseDuration(v, cfg.PingPeriod)
	}
	if v := env("PONG_WAIT"); v != "" {
		cfg.PongWait = parseDuration(v, cfg.PongWait)
	}
	if v := env("WRITE_WAIT"); v != "" {
		cfg.WriteWait = parseDuration(v, cfg.WriteWait)
	}
	if v := env("SEND_REJECTIONS"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.SendRejections = parsed
		}
	}
	if v := env("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := env("STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := env("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := env("REDIS_KEY"); v != "" {
		cfg.Storage.RedisKey = v
	}
	if v := env("BOARD_ID"); v != "" {
		cfg.Storage.BoardID = v
	}
	if v := env("SAVE_RETRIES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			cfg.SaveRetries = parsed
		}
	}
	if v := env("SAVE_RETRY_DELAY"); v != "" {
		cfg.SaveRetryDelay = parseDuration(v, cfg.SaveRetryDelay)
	}
	if v := env("SHUTDOWN_TIMEOUT"); v != "" {
		cfg.ShutdownTimeout = parseDuration(v, cfg.ShutdownTimeout)
	}
	if v := env("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// applyFlags copies only the flags that were set on the command line, so
// unset flags never clobber file or environment values.
func applyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var errs []error
	fs.Visit(func(f *pflag.Flag) {
		var err error
		switch f.Name {
		case "addr":
			cfg.Addr, err = fs.GetString(f.Name)
		case "allowed-origins":
			cfg.AllowedOrigins, err = fs.GetStringSlice(f.Name)
		case "storage":
			cfg.Storage.Driver, err = fs.GetString(f.Name)
		case "data":
			cfg.Storage.Path, err = fs.GetString(f.Name)
		case "redis-url":
			cfg.Storage.RedisURL, err = fs.GetString(f.Name)
		case "send-rejections":
			cfg.SendRejections, err = fs.GetBool(f.Name)
		case "log-level":
			cfg.LogLevel, err = fs.GetString(f.Name)
		case "log-format":
			cfg.LogFormat, err = fs.GetString(f.Name)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("flag --%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseInt64Value(value string, defaultValue int64) int64 {
	if parsed, err := strconv.ParseInt(value, 10, 64); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseDuration accepts Go duration strings ("750ms") or a bare number of
// seconds.
func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
		return defaultValue
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}
