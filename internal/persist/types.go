package persist

import (
	"context"

	"github.com/dmaggi/voiceloop/internal/telemetry"
)

// Store persists session summaries and serves them back to the HTTP API.
type Store interface {
	telemetry.Sink
	GetSummary(ctx context.Context, sessionID string) (telemetry.Summary, bool, error)
	RecentSummaries(ctx context.Context, limit int) ([]telemetry.Summary, error)
	Close() error
}
