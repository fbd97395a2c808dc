package model

import (
	"context"
	"strings"
)

// MockProvider is a scripted in-process provider used when no model endpoint is
// configured. It answers in short text deltas and issues a weather tool call
// when the user mentions weather, so the full tool/filler path is exercisable
// without network access.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Stream(_ context.Context, req Request) (<-chan StreamUnit, <-chan error, error) {
	units := make(chan StreamUnit, 16)
	errs := make(chan error, 1)

	lastUser := ""
	lastRole := ""
	for _, m := range req.Messages {
		if m.Role == "user" {
			lastUser = m.Content
		}
		lastRole = m.Role
	}

	go func() {
		defer close(units)
		defer close(errs)

		switch {
		case lastRole == "tool":
			units <- StreamUnit{Kind: UnitText, Text: "Here is what I found: "}
			units <- StreamUnit{Kind: UnitText, Text: lastToolContent(req.Messages)}
		case strings.Contains(strings.ToLower(lastUser), "weather"):
			units <- StreamUnit{Kind: UnitToolDelta, Index: 0, ID: "mock-call-0", Name: "get_weather", Args: `{"city":`}
			units <- StreamUnit{Kind: UnitToolDelta, Index: 0, Args: `"Tokyo"}`}
		default:
			units <- StreamUnit{Kind: UnitText, Text: "I heard you say: "}
			units <- StreamUnit{Kind: UnitText, Text: lastUser}
		}
		units <- StreamUnit{Kind: UnitEnd, Usage: &Usage{InputTokens: len(strings.Fields(lastUser)), OutputTokens: 8}}
	}()

	return units, errs, nil
}

func lastToolContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "tool" {
			return messages[i].Content
		}
	}
	return ""
}
