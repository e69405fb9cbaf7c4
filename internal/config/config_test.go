package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Sync.DocumentType != "text" {
		t.Errorf("Sync.DocumentType = %q, want text", cfg.Sync.DocumentType)
	}
	if cfg.Sync.MatchThreshold != 0.5 || cfg.Sync.MatchDistance != 1000 || cfg.Sync.PatchMargin != 4 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.JWT.Required {
		t.Error("JWT.Required should default to false")
	}
	if cfg.Redis.Enabled || cfg.Discovery.Enabled {
		t.Error("relay and discovery should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "bolt")
	t.Setenv("SYNC_DOCUMENT_TYPE", "json")
	t.Setenv("SYNC_DIFF_TIMEOUT", "250ms")
	t.Setenv("SYNC_MATCH_THRESHOLD", "0.8")
	t.Setenv("WS_MAX_CONNECTIONS", "3")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("JWT_REQUIRED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "bolt" {
		t.Errorf("Store.Driver = %q", cfg.Store.Driver)
	}
	if cfg.Sync.DocumentType != "json" {
		t.Errorf("Sync.DocumentType = %q", cfg.Sync.DocumentType)
	}
	if cfg.Sync.DiffTimeout != 250*time.Millisecond {
		t.Errorf("Sync.DiffTimeout = %v", cfg.Sync.DiffTimeout)
	}
	if cfg.Sync.MatchThreshold != 0.8 {
		t.Errorf("Sync.MatchThreshold = %v", cfg.Sync.MatchThreshold)
	}
	if cfg.WebSocket.MaxConnections != 3 {
		t.Errorf("WebSocket.MaxConnections = %d", cfg.WebSocket.MaxConnections)
	}
	if !cfg.Redis.Enabled || !cfg.JWT.Required {
		t.Errorf("Redis.Enabled = %v, JWT.Required = %v", cfg.Redis.Enabled, cfg.JWT.Required)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown driver", key: "STORE_DRIVER", value: "mongo"},
		{name: "unknown document type", key: "SYNC_DOCUMENT_TYPE", value: "xml"},
		{name: "threshold out of range", key: "SYNC_MATCH_THRESHOLD", value: "1.5"},
		{name: "ping slower than pong", key: "WS_PING_PERIOD", value: "2m"},
		{name: "bad jwt expiration", key: "JWT_EXPIRATION", value: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s should fail", tt.key, tt.value)
			}
		})
	}
}
