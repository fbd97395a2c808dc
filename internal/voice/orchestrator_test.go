package voice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmaggi/voiceloop/internal/model"
	"github.com/dmaggi/voiceloop/internal/observability"
	"github.com/dmaggi/voiceloop/internal/persist"
	"github.com/dmaggi/voiceloop/internal/protocol"
	"github.com/dmaggi/voiceloop/internal/session"
	"github.com/dmaggi/voiceloop/internal/telemetry"
	"github.com/dmaggi/voiceloop/internal/tools"
)

// Prometheus collectors register globally, so every test gets its own
// namespace.
var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("voiceloop_orch_test_%d", metricsSeq.Add(1)))
}

// fakeClient is a channel-backed transport. Closing the inbound channel reads
// as a clean disconnect.
type fakeClient struct {
	in   chan any
	mu   sync.Mutex
	sent []any
}

func newFakeClient() *fakeClient {
	return &fakeClient{in: make(chan any, 16)}
}

func (c *fakeClient) Receive(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-c.in:
		if !ok {
			return nil, context.Canceled
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeClient) Send(_ context.Context, msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeClient) snapshot() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.sent...)
}

func (c *fakeClient) waitFor(t *testing.T, timeout time.Duration, pred func([]any) bool) []any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		snap := c.snapshot()
		if pred(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %v; got %d messages: %#v", timeout, len(snap), snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type scriptHop struct {
	units []model.StreamUnit
	err   error
}

// scriptProvider plays back one scripted hop per Stream call and records every
// request it saw.
type scriptProvider struct {
	mu   sync.Mutex
	hops []scriptHop
	reqs []model.Request
}

func (p *scriptProvider) Stream(ctx context.Context, req model.Request) (<-chan model.StreamUnit, <-chan error, error) {
	p.mu.Lock()
	idx := len(p.reqs)
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if idx >= len(p.hops) {
		return nil, nil, errors.New("unscripted hop")
	}
	hop := p.hops[idx]

	units := make(chan model.StreamUnit, len(hop.units))
	errs := make(chan error, 1)
	go func() {
		defer close(units)
		defer close(errs)
		for _, u := range hop.units {
			select {
			case units <- u:
			case <-ctx.Done():
				return
			}
		}
		if hop.err != nil {
			errs <- hop.err
		}
	}()
	return units, errs, nil
}

func (p *scriptProvider) requests() []model.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Request(nil), p.reqs...)
}

func newTestOrchestrator(provider model.Provider, reg *tools.Registry, cfg Config) (*Orchestrator, *session.Manager) {
	if cfg.ModelProvider == "" {
		cfg.ModelProvider = "openai"
	}
	if cfg.STTProvider == "" {
		cfg.STTProvider = "deepgram"
	}
	if cfg.TTSProvider == "" {
		cfg.TTSProvider = "elevenlabs"
	}
	sessions := session.NewManager(time.Minute)
	o := NewOrchestrator(sessions, provider, reg, nil, newTestMetrics(),
		telemetry.DefaultCostModel(), persist.NewInMemoryStore(), cfg)
	return o, sessions
}

func startSession(o *Orchestrator, sessions *session.Manager, client Client) (*session.Session, <-chan string) {
	sess := sessions.Create("room-1", "job-1")
	reason := make(chan string, 1)
	go func() {
		reason <- o.RunSession(context.Background(), sess, client)
	}()
	return sess, reason
}

func transcript(sessionID, text string) protocol.TranscriptFinal {
	return protocol.TranscriptFinal{
		Type:      protocol.TypeTranscriptFinal,
		SessionID: sessionID,
		Text:      text,
	}
}

func speechUnits(msgs []any) []protocol.SpeechUnit {
	var out []protocol.SpeechUnit
	for _, m := range msgs {
		if u, ok := m.(protocol.SpeechUnit); ok {
			out = append(out, u)
		}
	}
	return out
}

func turnEnds(msgs []any) []protocol.AssistantTurnEnd {
	var out []protocol.AssistantTurnEnd
	for _, m := range msgs {
		if e, ok := m.(protocol.AssistantTurnEnd); ok {
			out = append(out, e)
		}
	}
	return out
}

func toolCallHop(name string) scriptHop {
	return scriptHop{units: []model.StreamUnit{
		{Kind: model.UnitToolDelta, Index: 0, ID: "call-0", Name: name, Args: `{"ci`},
		{Kind: model.UnitToolDelta, Index: 0, Args: `ty":"Rome"}`},
		{Kind: model.UnitEnd, Usage: &model.Usage{InputTokens: 20, OutputTokens: 5}},
	}}
}

func textHop(text string) scriptHop {
	return scriptHop{units: []model.StreamUnit{
		{Kind: model.UnitText, Text: text},
		{Kind: model.UnitEnd, Usage: &model.Usage{InputTokens: 30, OutputTokens: 10}},
	}}
}

func twoToolCallHop(name string) scriptHop {
	return scriptHop{units: []model.StreamUnit{
		{Kind: model.UnitToolDelta, Index: 0, ID: "call-0", Name: name, Args: `{"city":"Rome"}`},
		{Kind: model.UnitToolDelta, Index: 1, ID: "call-1", Name: name, Args: `{"city":"Oslo"}`},
		{Kind: model.UnitEnd, Usage: &model.Usage{InputTokens: 20, OutputTokens: 5}},
	}}
}

// slowSpeechClient delays speech delivery so that decisions made while a
// phrase is still on its way out are observable.
type slowSpeechClient struct {
	*fakeClient
	delay time.Duration
}

func (c *slowSpeechClient) Send(ctx context.Context, msg any) error {
	if _, ok := msg.(protocol.SpeechUnit); ok {
		time.Sleep(c.delay)
	}
	return c.fakeClient.Send(ctx, msg)
}

func TestPlainTextTurnCompletesWithSummary(t *testing.T) {
	provider := &scriptProvider{hops: []scriptHop{textHop("Hello there.")}}
	o, sessions := newTestOrchestrator(provider, tools.NewRegistry(), Config{
		FillerDelay: 20 * time.Millisecond,
		QueueDepth:  8,
		Greeting:    "Hi, how can I help?",
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "say hello")
	client.waitFor(t, 2*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)

	if got := <-reason; got != session.ReasonNormal {
		t.Fatalf("shutdown reason = %q, want %q", got, session.ReasonNormal)
	}

	snap := client.waitFor(t, 2*time.Second, func(msgs []any) bool {
		for _, m := range msgs {
			if _, ok := m.(protocol.SessionSummary); ok {
				return true
			}
		}
		return false
	})

	units := speechUnits(snap)
	if len(units) != 2 {
		t.Fatalf("speech units = %d, want greeting plus response: %#v", len(units), units)
	}
	if units[0].Text != "Hi, how can I help?" || units[0].Tag != protocol.SpeechTagResponse {
		t.Errorf("greeting unit = %+v", units[0])
	}
	if units[1].Text != "Hello there." {
		t.Errorf("response unit = %+v", units[1])
	}
	if ends := turnEnds(snap); ends[0].Reason != TurnCompleted {
		t.Errorf("turn end reason = %q, want %q", ends[0].Reason, TurnCompleted)
	}

	var summary protocol.SessionSummary
	for _, m := range snap {
		if s, ok := m.(protocol.SessionSummary); ok {
			summary = s
		}
	}
	if summary.Summary.ShutdownReason != session.ReasonNormal {
		t.Errorf("summary shutdown reason = %q", summary.Summary.ShutdownReason)
	}
	if summary.Summary.TurnCount != 1 {
		t.Errorf("summary turn count = %d, want 1", summary.Summary.TurnCount)
	}
	if summary.Summary.CostTotal <= 0 {
		t.Errorf("summary cost total = %v, want > 0", summary.Summary.CostTotal)
	}
}

func TestToolCallTurnSpeaksFillerBeforeResponse(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-time.After(250 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "result-text", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup"), textHop("All done.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: 20 * time.Millisecond,
		FillerSeed:  1,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "please look it up")
	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	units := speechUnits(snap)
	if len(units) < 2 {
		t.Fatalf("speech units = %#v, want filler then response", units)
	}
	if units[0].Tag != protocol.SpeechTagFiller || units[0].Text == "" {
		t.Errorf("first unit = %+v, want a filler phrase", units[0])
	}
	if units[1].Tag != protocol.SpeechTagResponse || units[1].Text != "All done." {
		t.Errorf("second unit = %+v, want the response", units[1])
	}
	if units[0].Seq >= units[1].Seq {
		t.Errorf("filler seq %d not before response seq %d", units[0].Seq, units[1].Seq)
	}
	if ends := turnEnds(snap); ends[0].Reason != TurnCompleted {
		t.Errorf("turn end reason = %q", ends[0].Reason)
	}

	reqs := provider.requests()
	if len(reqs) != 2 {
		t.Fatalf("provider requests = %d, want 2", len(reqs))
	}
	resume := reqs[1].Messages
	var sawAssistantCall, sawToolResult bool
	for _, m := range resume {
		if m.Role == "assistant" && len(m.ToolCalls) == 1 && m.ToolCalls[0].Function.Name == "lookup" {
			sawAssistantCall = true
		}
		if m.Role == "tool" && m.ToolCallID == "call-0" && m.Content == "result-text" {
			sawToolResult = true
		}
	}
	if !sawAssistantCall || !sawToolResult {
		t.Errorf("resume context missing tool fold: %#v", resume)
	}
}

func TestConcurrentToolCallsShareOneFiller(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-time.After(250 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "found", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{twoToolCallHop("lookup"), textHop("Rome and Oslo are both sunny.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: 20 * time.Millisecond,
		FillerSeed:  1,
		QueueDepth:  8,
	})
	client := &slowSpeechClient{fakeClient: newFakeClient(), delay: 75 * time.Millisecond}
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "check both cities")
	snap := client.waitFor(t, 5*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	fillers := 0
	for _, u := range speechUnits(snap) {
		if u.Tag == protocol.SpeechTagFiller {
			fillers++
		}
	}
	if fillers != 1 {
		t.Fatalf("filler units = %d, want 1; stand-in phrases must not stack", fillers)
	}
	if ends := turnEnds(snap); ends[0].Reason != TurnCompleted {
		t.Errorf("turn end reason = %q", ends[0].Reason)
	}

	reqs := provider.requests()
	if len(reqs) != 2 {
		t.Fatalf("provider requests = %d, want 2", len(reqs))
	}
	toolResults := 0
	for _, m := range reqs[1].Messages {
		if m.Role == "tool" && m.Content == "found" {
			toolResults++
		}
	}
	if toolResults != 2 {
		t.Errorf("resume context has %d tool results, want 2", toolResults)
	}
}

func TestFillerSpokenOnEachResumeHop(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(ctx context.Context, _ map[string]any) (string, error) {
			select {
			case <-time.After(150 * time.Millisecond):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			return "step-result", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup"), toolCallHop("lookup"), textHop("Both steps done.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: 20 * time.Millisecond,
		FillerSeed:  1,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "multi step job")
	client.waitFor(t, 5*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	snap := client.waitFor(t, 2*time.Second, func(msgs []any) bool {
		for _, m := range msgs {
			if _, ok := m.(protocol.SessionSummary); ok {
				return true
			}
		}
		return false
	})

	fillers := 0
	for _, u := range speechUnits(snap) {
		if u.Tag == protocol.SpeechTagFiller {
			fillers++
		}
	}
	if fillers != 2 {
		t.Fatalf("filler units = %d, want one per resume hop", fillers)
	}
	if got := len(provider.requests()); got != 3 {
		t.Fatalf("provider requests = %d, want 3", got)
	}

	var summary protocol.SessionSummary
	for _, m := range snap {
		if s, ok := m.(protocol.SessionSummary); ok {
			summary = s
		}
	}
	if summary.Summary.FillerCharacters <= 0 {
		t.Errorf("filler characters = %d, want > 0", summary.Summary.FillerCharacters)
	}
	if summary.Summary.ResponseCharacters <= 0 {
		t.Errorf("response characters = %d, want > 0", summary.Summary.ResponseCharacters)
	}
	if split := summary.Summary.FillerCharacters + summary.Summary.ResponseCharacters; split != summary.Summary.TTSCharacters {
		t.Errorf("character split %d does not add up to total %d", split, summary.Summary.TTSCharacters)
	}
}

func TestFastToolSuppressesFiller(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "instant", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup"), textHop("Quick answer.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: 150 * time.Millisecond,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "quick one")
	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	for _, u := range speechUnits(snap) {
		if u.Tag == protocol.SpeechTagFiller {
			t.Fatalf("filler spoken for a tool that finished under the delay: %+v", u)
		}
	}
	if ends := turnEnds(snap); ends[0].Reason != TurnCompleted {
		t.Errorf("turn end reason = %q", ends[0].Reason)
	}
}

func TestFailedToolResumesWithFallback(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(context.Context, map[string]any) (string, error) {
			return "", errors.New("upstream 500")
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup"), textHop("Sorry, I could not check that.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: 20 * time.Millisecond,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "look it up")
	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	if ends := turnEnds(snap); ends[0].Reason != TurnCompleted {
		t.Fatalf("turn end reason = %q, want %q; a tool failure must not fail the turn", ends[0].Reason, TurnCompleted)
	}
	reqs := provider.requests()
	if len(reqs) != 2 {
		t.Fatalf("provider requests = %d, want 2", len(reqs))
	}
	found := false
	for _, m := range reqs[1].Messages {
		if m.Role == "tool" && m.Content == tools.FallbackContent {
			found = true
		}
	}
	if !found {
		t.Errorf("resume context missing neutral fallback: %#v", reqs[1].Messages)
	}
}

func TestBargeInClosesTurnAfterToolResolves(t *testing.T) {
	toolStarted := make(chan struct{})
	var toolFinished atomic.Bool
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(context.Context, map[string]any) (string, error) {
			close(toolStarted)
			time.Sleep(150 * time.Millisecond)
			toolFinished.Store(true)
			return "late", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: time.Second,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "look it up")
	select {
	case <-toolStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never dispatched")
	}
	client.in <- protocol.SpeechStart{Type: protocol.TypeSpeechStart, SessionID: sess.ID}

	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	if !toolFinished.Load() {
		t.Error("turn closed while its tool call was still unresolved")
	}
	if ends := turnEnds(snap); ends[0].Reason != TurnBargeIn {
		t.Errorf("turn end reason = %q, want %q", ends[0].Reason, TurnBargeIn)
	}
	if got := len(provider.requests()); got != 1 {
		t.Errorf("provider requests = %d, want 1; a barged-in turn must not resume", got)
	}
	for _, u := range speechUnits(snap) {
		if u.TurnID == turnEnds(snap)[0].TurnID {
			t.Errorf("speech delivered for barged-in turn: %+v", u)
		}
	}

	close(client.in)
	<-reason
}

func TestBargeInLimitEndsSession(t *testing.T) {
	started := make(chan struct{})
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(context.Context, map[string]any) (string, error) {
			close(started)
			time.Sleep(100 * time.Millisecond)
			return "x", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay:  time.Second,
		QueueDepth:   8,
		BargeInLimit: 1,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "look it up")
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("tool never dispatched")
	}
	client.in <- protocol.SpeechStart{Type: protocol.TypeSpeechStart, SessionID: sess.ID}

	select {
	case got := <-reason:
		if got != session.ReasonBargeInExhausted {
			t.Fatalf("shutdown reason = %q, want %q", got, session.ReasonBargeInExhausted)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end after exhausting the barge-in limit")
	}

	snap := client.snapshot()
	var summary *protocol.SessionSummary
	for _, m := range snap {
		if s, ok := m.(protocol.SessionSummary); ok {
			summary = &s
		}
	}
	if summary == nil {
		t.Fatal("no session summary delivered")
	}
	if summary.Summary.ShutdownReason != session.ReasonBargeInExhausted {
		t.Errorf("summary shutdown reason = %q", summary.Summary.ShutdownReason)
	}
}

func TestStreamFailureClosesTurnFailed(t *testing.T) {
	provider := &scriptProvider{hops: []scriptHop{{
		units: []model.StreamUnit{{Kind: model.UnitText, Text: "partial "}},
		err:   errors.New("connection reset"),
	}}}
	o, sessions := newTestOrchestrator(provider, tools.NewRegistry(), Config{
		FillerDelay: 20 * time.Millisecond,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "talk to me")
	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 1
	})
	close(client.in)
	<-reason

	if ends := turnEnds(snap); ends[0].Reason != TurnFailed {
		t.Errorf("turn end reason = %q, want %q", ends[0].Reason, TurnFailed)
	}
	sawError := false
	for _, m := range snap {
		if e, ok := m.(protocol.ErrorEvent); ok && e.Code == "stream_failed" && e.Retryable {
			sawError = true
		}
	}
	if !sawError {
		t.Error("no retryable stream_failed error event delivered")
	}
}

func TestTTFBTrackerMeasuresEachTurn(t *testing.T) {
	tr := newTTFBTracker()

	tr.Arm("t1")
	if _, ok := tr.FirstByte("t1"); !ok {
		t.Fatal("first audio chunk of t1 not measured")
	}
	if _, ok := tr.FirstByte("t1"); ok {
		t.Fatal("t1 measured twice")
	}
	tr.Arm("t1")
	if _, ok := tr.FirstByte("t1"); ok {
		t.Fatal("re-arming a measured turn produced a second sample")
	}

	tr.Arm("t2")
	if _, ok := tr.FirstByte("t2"); !ok {
		t.Fatal("second turn not measured")
	}
	if _, ok := tr.FirstByte(""); ok {
		t.Fatal("audio without a speaking turn produced a sample")
	}
}

func TestNewTranscriptInterruptsOpenTurn(t *testing.T) {
	reg := tools.NewRegistry(tools.Tool{
		Name: "lookup",
		Handler: func(context.Context, map[string]any) (string, error) {
			time.Sleep(100 * time.Millisecond)
			return "slow", nil
		},
	})
	provider := &scriptProvider{hops: []scriptHop{toolCallHop("lookup"), textHop("Second answer.")}}
	o, sessions := newTestOrchestrator(provider, reg, Config{
		FillerDelay: time.Second,
		QueueDepth:  8,
	})
	client := newFakeClient()
	sess, reason := startSession(o, sessions, client)

	client.in <- transcript(sess.ID, "first question")
	client.in <- transcript(sess.ID, "second question")

	snap := client.waitFor(t, 3*time.Second, func(msgs []any) bool {
		return len(turnEnds(msgs)) == 2
	})
	close(client.in)
	<-reason

	ends := turnEnds(snap)
	if ends[0].Reason != TurnBargeIn {
		t.Errorf("first turn reason = %q, want %q", ends[0].Reason, TurnBargeIn)
	}
	if ends[1].Reason != TurnCompleted {
		t.Errorf("second turn reason = %q, want %q", ends[1].Reason, TurnCompleted)
	}

	got, err := sessions.Get(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.InterruptionCount != 1 {
		t.Errorf("interruption count = %d, want 1", got.InterruptionCount)
	}
}
