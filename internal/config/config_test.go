package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Downloads.Concurrency != 4 {
		t.Errorf("expected default concurrency 4, got %d", cfg.Downloads.Concurrency)
	}
	if cfg.Downloads.MaxAttempts != 3 {
		t.Errorf("expected default max attempts 3, got %d", cfg.Downloads.MaxAttempts)
	}
	if cfg.Downloads.RetryExponent <= 1.0 {
		t.Errorf("retry exponent must grow the cooldown, got %f", cfg.Downloads.RetryExponent)
	}
	if cfg.Cache.MaxBytes != 2<<30 {
		t.Errorf("expected 2 GiB cache budget, got %d", cfg.Cache.MaxBytes)
	}
	if cfg.Playback.Prebuffer != 200*time.Millisecond {
		t.Errorf("expected 200ms prebuffer, got %v", cfg.Playback.Prebuffer)
	}
	if cfg.Playback.Volume < 0 || cfg.Playback.Volume > 1 {
		t.Errorf("default volume out of range: %f", cfg.Playback.Volume)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected INFO default log level, got %q", cfg.Logging.Level)
	}
}

func TestIsConfigured(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.IsConfigured() {
		t.Error("empty catalog URL should not count as configured")
	}
	cfg.Catalog.URL = "http://localhost:8080"
	if !cfg.IsConfigured() {
		t.Error("expected configured once catalog URL is set")
	}
}
