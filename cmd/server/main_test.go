package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"relayloader/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     3306,
			Database: "blog",
			Pool:     config.PoolConfig{MaxOpen: 5, MaxIdle: 2, MaxLifetime: time.Minute},
		},
		Server: config.ServerConfig{
			Port:         8080,
			MaxLimit:     100,
			NestingLimit: 5,
			LoadersKey:   "loaders",
		},
		Observability: config.ObservabilityConfig{
			TraceSampleRatio: 1,
			Logging:          config.LoggingConfig{Level: "info", Format: "json"},
		},
	}
}

func TestCheckConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*config.Config)
		expectErr string
		expectLog string
	}{
		{
			name: "valid",
		},
		{
			name:      "warning only",
			mutate:    func(c *config.Config) { c.Server.NestingLimit = 0 },
			expectLog: "server.nesting_limit",
		},
		{
			name:      "missing host",
			mutate:    func(c *config.Config) { c.Database.Host = "" },
			expectErr: "database.host",
			expectLog: "configuration error",
		},
		{
			name:      "bad max limit",
			mutate:    func(c *config.Config) { c.Server.MaxLimit = 0 },
			expectErr: "server.max_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			err := checkConfig(cfg, logger)
			if tt.expectErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Fatalf("expected error containing %q, got none", tt.expectErr)
				}
				if !strings.Contains(err.Error(), tt.expectErr) {
					t.Fatalf("error %q does not mention %q", err.Error(), tt.expectErr)
				}
			}
			if tt.expectLog != "" && !strings.Contains(buf.String(), tt.expectLog) {
				t.Fatalf("log output %q does not contain %q", buf.String(), tt.expectLog)
			}
		})
	}
}
