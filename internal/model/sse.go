package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmaggi/voiceloop/internal/reliability"
)

const (
	sseConnectAttempts = 3
	sseBackoffBase     = 200 * time.Millisecond
	sseBackoffCap      = 2 * time.Second
)

// SSEProvider streams chat completions from an OpenAI-compatible endpoint.
// Tool-call deltas arrive as indexed argument fragments, exactly the shape the
// demultiplexer consumes.
type SSEProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewSSEProvider(baseURL, apiKey, modelName string) *SSEProvider {
	return &SSEProvider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type sseChatRequest struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	Tools         []sseTool      `json:"tools,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions map[string]any `json:"stream_options,omitempty"`
}

type sseTool struct {
	Type     string      `json:"type"`
	Function sseFunction `json:"function"`
}

type sseFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *SSEProvider) Stream(ctx context.Context, req Request) (<-chan StreamUnit, <-chan error, error) {
	body, err := json.Marshal(sseChatRequest{
		Model:         p.model,
		Messages:      req.Messages,
		Tools:         toolSpecsToWire(req.Tools),
		Stream:        true,
		StreamOptions: map[string]any{"include_usage": true},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal chat request: %w", err)
	}

	resp, err := p.connect(ctx, body)
	if err != nil {
		return nil, nil, err
	}

	units := make(chan StreamUnit, 64)
	errs := make(chan error, 1)
	go func() {
		defer close(units)
		defer close(errs)
		defer resp.Body.Close()
		if err := consumeSSE(ctx, resp.Body, units); err != nil {
			errs <- err
		}
	}()
	return units, errs, nil
}

// connect retries transient HTTP failures before the stream starts. Once bytes
// are flowing there is no replay, so mid-stream errors surface to the caller.
func (p *SSEProvider) connect(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < sseConnectAttempts; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, sseBackoffBase, sseBackoffCap)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create chat request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			lastErr = fmt.Errorf("chat request: %w", err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		lastErr = fmt.Errorf("chat status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		if !reliability.IsRetryableHTTPStatus(resp.StatusCode) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func consumeSSE(ctx context.Context, body io.Reader, units chan<- StreamUnit) error {
	var usage *Usage
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	emit := func(u StreamUnit) error {
		select {
		case units <- u:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return emit(StreamUnit{Kind: UnitEnd, Usage: usage})
		}
		var chunk sseChunk
		if json.Unmarshal([]byte(data), &chunk) != nil {
			continue
		}
		if chunk.Usage != nil {
			usage = &Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			if err := emit(StreamUnit{Kind: UnitText, Text: delta.Content}); err != nil {
				return err
			}
		}
		for _, tc := range delta.ToolCalls {
			if err := emit(StreamUnit{
				Kind:  UnitToolDelta,
				Index: tc.Index,
				ID:    tc.ID,
				Name:  tc.Function.Name,
				Args:  tc.Function.Arguments,
			}); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	// Upstream closed without [DONE]; report end so the turn can close.
	return emit(StreamUnit{Kind: UnitEnd, Usage: usage})
}

func toolSpecsToWire(specs []ToolSpec) []sseTool {
	if len(specs) == 0 {
		return nil
	}
	out := make([]sseTool, 0, len(specs))
	for _, s := range specs {
		out = append(out, sseTool{
			Type: "function",
			Function: sseFunction{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}
