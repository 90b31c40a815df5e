package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Sanitize(Default())) {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if cfg.Addr != ":3000" || cfg.Storage.Driver != DriverFile {
		t.Errorf("unexpected defaults: addr=%q driver=%q", cfg.Addr, cfg.Storage.Driver)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		in    Config
		check func(t *testing.T, cfg Config)
	}{
		{
			name: "zero config gets defaults",
			in:   Config{},
			check: func(t *testing.T, cfg Config) {
				def := Default()
				if cfg.MaxMessageSize != def.MaxMessageSize || cfg.RateLimit != def.RateLimit {
					t.Errorf("got %+v", cfg)
				}
				if cfg.PongWait != def.PongWait || cfg.PingPeriod >= cfg.PongWait {
					t.Errorf("ping %v pong %v", cfg.PingPeriod, cfg.PongWait)
				}
			},
		},
		{
			name: "ping period not shorter than pong wait",
			in:   Config{PingPeriod: time.Minute, PongWait: 10 * time.Second},
			check: func(t *testing.T, cfg Config) {
				if cfg.PingPeriod != 9*time.Second {
					t.Errorf("PingPeriod = %v, want 9s", cfg.PingPeriod)
				}
			},
		},
		{
			name: "negative retries clamp to zero",
			in:   Config{SaveRetries: -4},
			check: func(t *testing.T, cfg Config) {
				if cfg.SaveRetries != 0 {
					t.Errorf("SaveRetries = %d", cfg.SaveRetries)
				}
			},
		},
		{
			name: "driver is lower cased",
			in:   Config{Storage: StorageConfig{Driver: "SQLite"}},
			check: func(t *testing.T, cfg Config) {
				if cfg.Storage.Driver != DriverSQLite {
					t.Errorf("Driver = %q", cfg.Storage.Driver)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Sanitize(tt.in))
		})
	}
}

func TestSanitizeCopiesOrigins(t *testing.T) {
	origins := []string{"http://a"}
	cfg := Sanitize(Config{AllowedOrigins: origins})
	cfg.AllowedOrigins[0] = "http://b"
	if origins[0] != "http://a" {
		t.Error("Sanitize aliased the caller's origin slice")
	}
}

func TestLoadFromEnv(t *testing.T) {
	cfg, err := Load(nil, envMap(map[string]string{
		"TINYRETRO_ADDR":                       ":8080",
		"TINYRETRO_ALLOWED_ORIGINS":            "http://a.example, http://b.example",
		"TINYRETRO_MAX_MESSAGE_SIZE":           "2048",
		"TINYRETRO_RATE_LIMIT_BURST":           "5",
		"TINYRETRO_RATE_LIMIT_REFILL_INTERVAL": "2",
		"TINYRETRO_SEND_REJECTIONS":            "true",
		"TINYRETRO_STORAGE_DRIVER":             "redis",
		"TINYRETRO_REDIS_URL":                  "redis://cache:6379/2",
		"TINYRETRO_SAVE_RETRY_DELAY":           "750ms",
		"TINYRETRO_SEND_BUFFER":                "not-a-number",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if want := []string{"http://a.example", "http://b.example"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if cfg.MaxMessageSize != 2048 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if !cfg.SendRejections {
		t.Error("SendRejections not set")
	}
	if cfg.Storage.Driver != DriverRedis || cfg.Storage.RedisURL != "redis://cache:6379/2" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.SaveRetryDelay != 750*time.Millisecond {
		t.Errorf("SaveRetryDelay = %v", cfg.SaveRetryDelay)
	}
	if cfg.SendBuffer != Default().SendBuffer {
		t.Errorf("SendBuffer = %d, want default for bad input", cfg.SendBuffer)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tinyretro.yaml")
	doc := []byte(`
addr: ":4000"
log_level: debug
storage:
  driver: sqlite
  path: /var/lib/tinyretro/board.sqlite3
rate_limit:
  burst: 7
`)
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}

	env := envMap(map[string]string{
		"TINYRETRO_CONFIG":    path,
		"TINYRETRO_ADDR":      ":5000",
		"TINYRETRO_LOG_LEVEL": "warn",
	})
	cfg, err := Load([]string{"--addr", ":6000"}, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Addr != ":6000" {
		t.Errorf("Addr = %q, flag should win", cfg.Addr)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, env should beat file", cfg.LogLevel)
	}
	if cfg.Storage.Driver != DriverSQLite || cfg.Storage.Path != "/var/lib/tinyretro/board.sqlite3" {
		t.Errorf("Storage = %+v, file values lost", cfg.Storage)
	}
	if cfg.RateLimit.Burst != 7 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
}

func TestLoadConfigFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("send_rejections: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load([]string{"--config", path, "--storage", "redis"}, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.SendRejections || cfg.Storage.Driver != DriverRedis {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{name: "unknown flag", args: []string{"--nope"}},
		{name: "unknown driver", args: []string{"--storage", "floppy"}},
		{name: "unknown log format", env: map[string]string{"TINYRETRO_LOG_FORMAT": "xml"}},
		{name: "missing config file", args: []string{"--config", "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args, envMap(tt.env)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]string{
		"debug": "DEBUG",
		"WARN":  "WARN",
		"error": "ERROR",
		"bogus": "INFO",
	}
	for in, want := range cases {
		if got := (Config{LogLevel: in}).SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
