package main

import (
	"testing"
	"time"
)

func TestConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PERSPECTIVE_LISTEN_ADDR",
		"PERSPECTIVE_METRICS_ADDR",
		"PERSPECTIVE_LOG_LEVEL",
		"PERSPECTIVE_LOG_FORMAT",
		"PERSPECTIVE_SHUTDOWN_GRACE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want :8080", cfg.ListenAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("ShutdownGrace = %v, want 10s", cfg.ShutdownGrace)
	}
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("PERSPECTIVE_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("PERSPECTIVE_LOG_LEVEL", "debug")
	t.Setenv("PERSPECTIVE_LOG_FORMAT", "json")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if _, err := cfg.logger(); err != nil {
		t.Errorf("logger: %v", err)
	}
}

func TestConfigRejectsBadLogSettings(t *testing.T) {
	cfg := Config{LogLevel: "loud", LogFormat: "text"}
	if _, err := cfg.logger(); err == nil {
		t.Errorf("bad log level accepted")
	}

	cfg = Config{LogLevel: "info", LogFormat: "xml"}
	if _, err := cfg.logger(); err == nil {
		t.Errorf("bad log format accepted")
	}
}
