package voice

import "context"

type TTSEventType string

const (
	TTSEventAudio TTSEventType = "audio"
	TTSEventFinal TTSEventType = "final"
	TTSEventError TTSEventType = "error"
)

type TTSEvent struct {
	Type        TTSEventType
	AudioBase64 string
	Format      string
	Code        string
	Detail      string
	Retryable   bool
}

type TTSSettings struct {
	Stability       float64
	SimilarityBoost float64
	Speed           float64
}

type TTSStream interface {
	SendText(ctx context.Context, text string, tryTrigger bool) error
	CloseInput(ctx context.Context) error
	Events() <-chan TTSEvent
	Close() error
}

type TTSProvider interface {
	StartStream(ctx context.Context, voiceID, modelID string, settings TTSSettings) (TTSStream, error)
}

// Client is the per-session transport the orchestrator speaks through. The
// production implementation wraps a websocket connection; tests use channels.
type Client interface {
	// Receive returns the next parsed inbound message, blocking until one
	// arrives, the context ends, or the transport fails.
	Receive(ctx context.Context) (any, error)

	// Send delivers one outbound message. A send failure is treated as
	// transport loss.
	Send(ctx context.Context, msg any) error
}
