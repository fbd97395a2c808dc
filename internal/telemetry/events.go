package telemetry

import "time"

// Stage identifies which pipeline leg emitted a metrics event.
type Stage string

const (
	StageSTT Stage = "stt"
	StageLLM Stage = "llm"
	StageTTS Stage = "tts"
)

// TagFiller marks TTS events for injected stand-in phrases. Events with any
// other tag count as response speech.
const TagFiller = "filler"

// MetricsEvent is one usage observation. Events are append-only: emitted by
// the pipeline legs, consumed by the aggregator, never mutated afterwards.
// Only the fields relevant to the stage are set.
type MetricsEvent struct {
	Stage     Stage
	Provider  string
	SessionID string
	TurnID    string
	At        time.Time

	// LLM
	InputTokens  int64
	OutputTokens int64
	TTFT         time.Duration

	// TTS. Tag distinguishes injected stand-in phrases from model-generated
	// response speech; see TagFiller.
	Characters int64
	Tag        string
	TTFB       time.Duration
	Streamed   bool

	// STT
	AudioSeconds float64

	Duration time.Duration
}

// TranscriptLine is one role-tagged utterance kept for the session summary.
type TranscriptLine struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
