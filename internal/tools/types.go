package tools

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmaggi/voiceloop/internal/model"
)

// Tool is a function the model can invoke during a conversation.
type Tool struct {
	// Name is the unique identifier for the tool (e.g. "get_weather").
	Name string

	// Description helps the model decide when to use the tool.
	Description string

	// Parameters is the JSON schema for the tool's arguments.
	Parameters map[string]any

	// Handler executes the call. The returned string is folded back into the
	// model context to continue the turn.
	Handler func(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the tool set for a session.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns the registered tools as provider specs, sorted by name so the
// request payload is stable.
func (r *Registry) Specs() []model.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	specs := make([]model.ToolSpec, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		specs = append(specs, model.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return specs
}

// Outcome classifies how a tool invocation ended.
type Outcome string

const (
	OutcomeOK           Outcome = "ok"
	OutcomeError        Outcome = "error"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeBadArguments Outcome = "bad_arguments"
	OutcomeUnknownTool  Outcome = "unknown_tool"
)

// Invocation is the operational record of one tool call. This log is separate
// from the voice-cost metrics stream; it exists for latency and failure
// analysis per external API.
type Invocation struct {
	CallID    string        `json:"call_id"`
	Tool      string        `json:"tool"`
	Target    string        `json:"target,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   Outcome       `json:"outcome"`
	Detail    string        `json:"detail,omitempty"`
	Discarded bool          `json:"discarded,omitempty"`
	Tag       string        `json:"tag,omitempty"`
}

// Result is what gets folded back into the model context.
type Result struct {
	CallID  string
	Name    string
	Content string
	Failed  bool
}
