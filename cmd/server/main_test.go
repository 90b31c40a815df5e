package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/powens/tinyretro/internal/config"
)

func TestOpenGateway(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.StorageConfig
		want    string
		wantErr bool
	}{
		{
			name: "file",
			cfg:  config.StorageConfig{Driver: config.DriverFile, Path: filepath.Join(dir, "b.json")},
			want: "*store.FileGateway",
		},
		{
			name: "sqlite",
			cfg:  config.StorageConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "b.sqlite3"), BoardID: "default"},
			want: "*store.SQLiteGateway",
		},
		{
			name: "redis",
			cfg:  config.StorageConfig{Driver: config.DriverRedis, RedisURL: "redis://" + mr.Addr() + "/0", RedisKey: "k"},
			want: "*store.RedisGateway",
		},
		{
			name:    "unknown",
			cfg:     config.StorageConfig{Driver: "tape"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, err := openGateway(ctx, tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("openGateway: %v", err)
			}
			defer gw.Close()

			if got := fmt.Sprintf("%T", gw); got != tt.want {
				t.Errorf("gateway = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.Config{LogFormat: "json", LogLevel: "warn"})

	logger.Info("hidden")
	logger.Warn("shown", "lane", "went-well")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log output is not a single json line: %v (%s)", err, buf.String())
	}
	if line["msg"] != "shown" || line["lane"] != "went-well" {
		t.Errorf("log line = %v", line)
	}
}
