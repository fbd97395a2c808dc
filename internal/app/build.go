package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/dmaggi/voiceloop/internal/config"
	"github.com/dmaggi/voiceloop/internal/httpapi"
	"github.com/dmaggi/voiceloop/internal/model"
	"github.com/dmaggi/voiceloop/internal/observability"
	"github.com/dmaggi/voiceloop/internal/persist"
	"github.com/dmaggi/voiceloop/internal/session"
	"github.com/dmaggi/voiceloop/internal/telemetry"
	"github.com/dmaggi/voiceloop/internal/tools"
	"github.com/dmaggi/voiceloop/internal/voice"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Orchestrator *voice.Orchestrator
	Metrics      *observability.Metrics
	Store        persist.Store

	// Cleanup releases external resources (DB pool, etc) on shutdown.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	costs, err := telemetry.LoadCostModel(cfg.PriceTablePath)
	if err != nil {
		return nil, fmt.Errorf("cost model init failed: %w", err)
	}

	store, err := persist.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("summary store init failed: %w", err)
	}

	provider, modelName := resolveModelProvider(cfg)
	tts, ttsName := resolveTTSProvider(cfg)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
	})

	registry := tools.NewRegistry(tools.Builtin(nil)...)

	orchestrator := voice.NewOrchestrator(
		sessions,
		provider,
		registry,
		tts,
		metrics,
		costs,
		store,
		voice.Config{
			ToolTimeout:   cfg.ToolTimeout,
			FillerDelay:   cfg.FillerDelay,
			FillerSeed:    cfg.FillerSeed,
			Greeting:      cfg.Greeting,
			QueueDepth:    cfg.SpeechQueueDepth,
			ModelProvider: modelName,
			STTProvider:   "deepgram",
			TTSProvider:   ttsName,
			VoiceID:       cfg.ElevenLabsVoiceID,
			TTSModelID:    cfg.ElevenLabsModelID,
			BargeInLimit:  cfg.BargeInLimit,
		},
	)

	api := httpapi.New(cfg, sessions, orchestrator, store, metrics)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Metrics:      metrics,
		Store:        store,
		Cleanup:      store.Close,
	}, nil
}

// resolveModelProvider picks the stream backend. "auto" uses the SSE endpoint
// when an API key is configured and falls back to the scripted mock.
func resolveModelProvider(cfg config.Config) (model.Provider, string) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ModelProvider))
	switch mode {
	case "sse":
		return model.NewSSEProvider(cfg.ModelBaseURL, cfg.ModelAPIKey, cfg.ModelName), "openai"
	case "mock":
		return model.NewMockProvider(), "mock"
	default:
		if strings.TrimSpace(cfg.ModelAPIKey) != "" {
			log.Printf("model provider: sse (%s)", cfg.ModelName)
			return model.NewSSEProvider(cfg.ModelBaseURL, cfg.ModelAPIKey, cfg.ModelName), "openai"
		}
		log.Printf("model provider: mock (no MODEL_API_KEY)")
		return model.NewMockProvider(), "mock"
	}
}

// resolveTTSProvider picks the speech backend the same way.
func resolveTTSProvider(cfg config.Config) (voice.TTSProvider, string) {
	mode := strings.ToLower(strings.TrimSpace(cfg.VoiceProvider))
	switch mode {
	case "elevenlabs":
		return voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
			APIKey:    cfg.ElevenLabsAPIKey,
			WSBaseURL: cfg.ElevenLabsWSBaseURL,
		}), "elevenlabs"
	case "mock":
		return voice.NewMockTTSProvider(), "mock"
	case "none":
		return nil, "none"
	default:
		if strings.TrimSpace(cfg.ElevenLabsAPIKey) != "" {
			log.Printf("voice provider: elevenlabs realtime")
			return voice.NewElevenLabsProvider(voice.ElevenLabsConfig{
				APIKey:    cfg.ElevenLabsAPIKey,
				WSBaseURL: cfg.ElevenLabsWSBaseURL,
			}), "elevenlabs"
		}
		log.Printf("voice provider: mock (no ELEVENLABS_API_KEY)")
		return voice.NewMockTTSProvider(), "mock"
	}
}
