package model

import "context"

// UnitKind tags one unit of a model output stream.
type UnitKind string

const (
	UnitText      UnitKind = "text"
	UnitToolDelta UnitKind = "tool_call_delta"
	UnitEnd       UnitKind = "end"
)

// StreamUnit is the atomic item of a model stream for one turn. Text units carry
// a speakable delta; tool-call units carry an argument fragment for the call at
// Index (Name and ID usually arrive only on the first fragment); End closes the
// stream and may carry token usage.
type StreamUnit struct {
	Kind  UnitKind
	Text  string
	Index int
	ID    string
	Name  string
	Args  string
	Usage *Usage
}

// Usage reports token counts for a completed stream.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Message is one entry of the conversation context sent to the provider.
// Tool results are folded back as role "tool" messages referencing the call id.
type Message struct {
	Role       string              `json:"role"`
	Content    string              `json:"content,omitempty"`
	ToolCallID string              `json:"tool_call_id,omitempty"`
	ToolCalls  []AssistantToolCall `json:"tool_calls,omitempty"`
}

// AssistantToolCall echoes an issued tool call inside an assistant message so
// the provider can match the tool result that follows.
type AssistantToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes a callable tool to the provider.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request describes one stream request. Resuming a turn after tool execution is
// the same call with the tool results appended to Messages.
type Request struct {
	SessionID string
	TurnID    string
	Messages  []Message
	Tools     []ToolSpec
}

// Provider produces an ordered unit stream for a request. The units channel is
// closed when the stream ends; a stream-level failure is delivered on errs
// before the units channel closes.
type Provider interface {
	Stream(ctx context.Context, req Request) (units <-chan StreamUnit, errs <-chan error, err error)
}
