package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	os.Unsetenv("API_BASE_URL")
	os.Unsetenv("SILENCE_DURATION")
	os.Unsetenv("SAMPLE_RATE")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL == "" {
		t.Fatalf("expected default api base url")
	}
	if cfg.SilenceDuration != 1200*time.Millisecond {
		t.Fatalf("expected 1.2s silence duration, got %s", cfg.SilenceDuration)
	}
	if cfg.MaxRecordDuration != 30*time.Second {
		t.Fatalf("expected 30s max record duration, got %s", cfg.MaxRecordDuration)
	}
	if cfg.CacheEntries != 10 {
		t.Fatalf("expected 10 cache entries, got %d", cfg.CacheEntries)
	}
}

func TestLoad_Overrides(t *testing.T) {
	os.Setenv("SILENCE_DURATION", "2s")
	os.Setenv("SILENCE_THRESHOLD", "45")
	defer os.Unsetenv("SILENCE_DURATION")
	defer os.Unsetenv("SILENCE_THRESHOLD")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SilenceDuration != 2*time.Second {
		t.Fatalf("expected 2s, got %s", cfg.SilenceDuration)
	}
	if cfg.SilenceThreshold != 45 {
		t.Fatalf("expected threshold 45, got %v", cfg.SilenceThreshold)
	}
}

func TestLoad_RejectsTooShortSilence(t *testing.T) {
	os.Setenv("SILENCE_DURATION", "50ms")
	defer os.Unsetenv("SILENCE_DURATION")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for too-short silence duration")
	}
}
