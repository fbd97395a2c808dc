package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voiceloop service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	// Model stream provider: "sse" talks to an OpenAI-compatible endpoint,
	// "mock" is a scripted in-process stream for local runs and tests.
	ModelProvider string
	ModelBaseURL  string
	ModelAPIKey   string
	ModelName     string

	// Voice output provider: "elevenlabs" or "mock".
	VoiceProvider       string
	ElevenLabsAPIKey    string
	ElevenLabsWSBaseURL string
	ElevenLabsVoiceID   string
	ElevenLabsModelID   string

	// Tool execution.
	ToolTimeout time.Duration

	// Filler injection. Delay is the gap between the flush signal and the
	// commit re-check; zero disables fillers entirely.
	FillerDelay time.Duration
	FillerSeed  int64

	// Cost accounting. When PriceTablePath is empty the built-in defaults apply.
	PriceTablePath string

	// Speech queue capacity before enqueue blocks (backpressure).
	SpeechQueueDepth int

	// Interruptions allowed per session before it shuts down.
	BargeInLimit int

	Greeting string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "voiceloop"),
		AllowAnyOrigin:           false,
		ModelProvider:            envOrDefault("MODEL_PROVIDER", "auto"),
		ModelBaseURL:             envOrDefault("MODEL_BASE_URL", "http://localhost:8080"),
		ModelAPIKey:              envTrimmed("MODEL_API_KEY"),
		ModelName:                envOrDefault("MODEL_NAME", "gpt-4o"),
		VoiceProvider:            envOrDefault("VOICE_PROVIDER", "auto"),
		ElevenLabsAPIKey:         envTrimmed("ELEVENLABS_API_KEY"),
		ElevenLabsWSBaseURL:      envOrDefault("ELEVENLABS_WS_BASE_URL", "wss://api.elevenlabs.io"),
		ElevenLabsVoiceID:        envOrDefault("ELEVENLABS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
		ElevenLabsModelID:        envOrDefault("ELEVENLABS_MODEL_ID", "eleven_flash_v2_5"),
		PriceTablePath:           envTrimmed("PRICE_TABLE_PATH"),
		DatabaseURL:              envTrimmed("DATABASE_URL"),
		Greeting:                 envOrDefault("APP_GREETING", "Hey! I'm your assistant. Ask me about the weather, the time, a calculation, or a reminder."),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		ToolTimeout:              8 * time.Second,
		FillerDelay:              250 * time.Millisecond,
		FillerSeed:               1,
		SpeechQueueDepth:         32,
		BargeInLimit:             5,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolTimeout, err = durationFromEnv("TOOL_TIMEOUT", cfg.ToolTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FillerDelay, err = durationFromEnv("FILLER_DELAY", cfg.FillerDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.FillerSeed, err = int64FromEnv("FILLER_SEED", cfg.FillerSeed)
	if err != nil {
		return Config{}, err
	}
	cfg.SpeechQueueDepth, err = intFromEnv("SPEECH_QUEUE_DEPTH", cfg.SpeechQueueDepth)
	if err != nil {
		return Config{}, err
	}
	cfg.BargeInLimit, err = intFromEnv("SESSION_BARGE_IN_LIMIT", cfg.BargeInLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.ToolTimeout <= 0 {
		return Config{}, fmt.Errorf("TOOL_TIMEOUT must be positive")
	}
	if cfg.FillerDelay < 0 {
		return Config{}, fmt.Errorf("FILLER_DELAY must not be negative")
	}
	if cfg.SpeechQueueDepth <= 0 {
		return Config{}, fmt.Errorf("SPEECH_QUEUE_DEPTH must be positive")
	}
	if cfg.BargeInLimit <= 0 {
		return Config{}, fmt.Errorf("SESSION_BARGE_IN_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func int64FromEnv(key string, fallback int64) (int64, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
