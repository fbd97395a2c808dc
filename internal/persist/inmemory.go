package persist

import (
	"context"
	"sort"
	"sync"

	"github.com/dmaggi/voiceloop/internal/telemetry"
)

// InMemoryStore is a simple in-process summary store for local/dev use.
type InMemoryStore struct {
	mu        sync.RWMutex
	summaries map[string]telemetry.Summary
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{summaries: make(map[string]telemetry.Summary)}
}

func (s *InMemoryStore) SaveSummary(_ context.Context, sum telemetry.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[sum.SessionID] = sum
	return nil
}

func (s *InMemoryStore) GetSummary(_ context.Context, sessionID string) (telemetry.Summary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.summaries[sessionID]
	return sum, ok, nil
}

func (s *InMemoryStore) RecentSummaries(_ context.Context, limit int) ([]telemetry.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]telemetry.Summary, 0, len(s.summaries))
	for _, sum := range s.summaries {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
