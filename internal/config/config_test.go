package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Errorf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.MetricsNamespace != "voiceloop" {
		t.Errorf("MetricsNamespace = %q, want voiceloop", cfg.MetricsNamespace)
	}
	if cfg.ToolTimeout != 8*time.Second {
		t.Errorf("ToolTimeout = %v, want 8s", cfg.ToolTimeout)
	}
	if cfg.FillerDelay != 250*time.Millisecond {
		t.Errorf("FillerDelay = %v, want 250ms", cfg.FillerDelay)
	}
	if cfg.SpeechQueueDepth != 32 {
		t.Errorf("SpeechQueueDepth = %d, want 32", cfg.SpeechQueueDepth)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s"},
		{"APP_SESSION_INACTIVITY_TIMEOUT", "not-a-duration"},
		{"TOOL_TIMEOUT", "-2s"},
		{"FILLER_DELAY", "-10ms"},
		{"SPEECH_QUEUE_DEPTH", "0"},
		{"SPEECH_QUEUE_DEPTH", "abc"},
		{"FILLER_SEED", "not-a-number"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe"},
	}
	for _, tc := range cases {
		t.Setenv(tc.key, tc.value)
		if _, err := Load(); err == nil {
			t.Errorf("Load() with %s=%q: expected error", tc.key, tc.value)
		}
		t.Setenv(tc.key, "")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOOL_TIMEOUT", "3s")
	t.Setenv("FILLER_SEED", "42")
	t.Setenv("MODEL_PROVIDER", "mock")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ToolTimeout != 3*time.Second {
		t.Errorf("ToolTimeout = %v, want 3s", cfg.ToolTimeout)
	}
	if cfg.FillerSeed != 42 {
		t.Errorf("FillerSeed = %d, want 42", cfg.FillerSeed)
	}
	if cfg.ModelProvider != "mock" {
		t.Errorf("ModelProvider = %q, want mock", cfg.ModelProvider)
	}
}
