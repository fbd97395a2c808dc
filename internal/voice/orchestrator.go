package voice

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmaggi/voiceloop/internal/filler"
	"github.com/dmaggi/voiceloop/internal/model"
	"github.com/dmaggi/voiceloop/internal/observability"
	"github.com/dmaggi/voiceloop/internal/persist"
	"github.com/dmaggi/voiceloop/internal/protocol"
	"github.com/dmaggi/voiceloop/internal/session"
	"github.com/dmaggi/voiceloop/internal/telemetry"
	"github.com/dmaggi/voiceloop/internal/tools"
)

// Turn close reasons reported in assistant_turn_end.
const (
	TurnCompleted = "completed"
	TurnFailed    = "failed"
	TurnBargeIn   = "barge-in"
)

// Config carries the orchestrator knobs resolved from the environment.
type Config struct {
	ToolTimeout   time.Duration
	FillerDelay   time.Duration
	FillerSeed    int64
	Greeting      string
	QueueDepth    int
	ModelProvider string
	STTProvider   string
	TTSProvider   string
	VoiceID       string
	TTSModelID    string
	BargeInLimit  int
}

// Orchestrator runs one conversation per websocket connection: it demuxes the
// model stream, dispatches tools, injects fillers, and keeps speech strictly
// ordered. All turn-state transitions happen on the per-connection event loop
// goroutine; everything else communicates through channels and the queue.
type Orchestrator struct {
	sessions *session.Manager
	provider model.Provider
	registry *tools.Registry
	tts      TTSProvider
	metrics  *observability.Metrics
	costs    *telemetry.CostModel
	store    persist.Store
	cfg      Config
}

func NewOrchestrator(
	sessions *session.Manager,
	provider model.Provider,
	registry *tools.Registry,
	tts TTSProvider,
	metrics *observability.Metrics,
	costs *telemetry.CostModel,
	store persist.Store,
	cfg Config,
) *Orchestrator {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 32
	}
	if cfg.BargeInLimit <= 0 {
		cfg.BargeInLimit = 5
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 8 * time.Second
	}
	return &Orchestrator{
		sessions: sessions,
		provider: provider,
		registry: registry,
		tts:      tts,
		metrics:  metrics,
		costs:    costs,
		store:    store,
		cfg:      cfg,
	}
}

type sessionState struct {
	sess     *session.Session
	client   Client
	queue    *SpeechQueue
	agg      *telemetry.Aggregator
	selector *filler.Selector

	mu         sync.Mutex
	active     *turnState
	history    []model.Message
	turnStarts map[string]time.Time

	speakingTurn atomic.Value // string
}

type turnState struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	inj    *filler.Injector

	bargedIn      atomic.Bool
	spokeResponse atomic.Bool
	execDone      sync.Map // hop-scoped call key -> true once the tool resolved
}

func (ts *turnState) speaking() bool { return ts.spokeResponse.Load() }

// RunSession owns the connection until the client leaves, the session expires,
// or the transport dies. It returns the shutdown reason it recorded.
func (o *Orchestrator) RunSession(ctx context.Context, sess *session.Session, client Client) string {
	o.metrics.ActiveSessions.Inc()
	defer o.metrics.ActiveSessions.Dec()
	o.metrics.SessionEvents.WithLabelValues("started").Inc()

	sessCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()

	st := &sessionState{
		sess:       sess,
		client:     client,
		queue:      NewSpeechQueue(o.cfg.QueueDepth),
		agg:        telemetry.NewAggregator(o.costs, o.store, sess.ID, sess.RoomID, sess.JobID),
		selector:   filler.NewSelector(o.cfg.FillerSeed),
		turnStarts: make(map[string]time.Time),
	}
	st.speakingTurn.Store("")

	speakerDone := make(chan struct{})
	go func() {
		defer close(speakerDone)
		o.speak(sessCtx, st)
	}()

	o.greet(sessCtx, st)

	reason := o.eventLoop(sessCtx, st)

	// Close out: never leave a turn open behind us.
	if ts := st.activeTurn(); ts != nil {
		o.interruptTurn(st, ts)
		<-ts.done
	}
	st.queue.Close()
	<-speakerDone

	summary := st.agg.Close(context.Background(), reason)
	sendCtx, cancelSend := context.WithTimeout(context.Background(), 2*time.Second)
	if err := client.Send(sendCtx, protocol.SessionSummary{
		Type:      protocol.TypeSessionSummary,
		SessionID: sess.ID,
		Summary:   summary,
	}); err != nil {
		log.Printf("voice: session %s summary not delivered: %v", sess.ID, err)
	}
	cancelSend()

	if _, err := o.sessions.End(sess.ID, reason); err != nil && !errors.Is(err, session.ErrNotFound) {
		log.Printf("voice: end session %s: %v", sess.ID, err)
	}
	o.metrics.SessionEvents.WithLabelValues("ended_" + reason).Inc()
	return reason
}

// eventLoop is the single writer for turn-state transitions.
func (o *Orchestrator) eventLoop(ctx context.Context, st *sessionState) string {
	for {
		msg, err := st.client.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return session.ReasonTimeout
			}
			if errors.Is(err, context.Canceled) {
				return session.ReasonNormal
			}
			log.Printf("voice: session %s transport lost: %v", st.sess.ID, err)
			return session.ReasonError
		}
		_ = o.sessions.Touch(st.sess.ID)

		switch m := msg.(type) {
		case protocol.SpeechStart:
			if exhausted := o.handleBargeIn(st); exhausted {
				return session.ReasonBargeInExhausted
			}

		case protocol.TranscriptFinal:
			// A transcript lands while a turn is open when the client skipped
			// speech_start; treat it as an implicit barge-in so exactly one
			// turn is ever open.
			if ts := st.activeTurn(); ts != nil {
				if exhausted := o.handleBargeIn(st); exhausted {
					return session.ReasonBargeInExhausted
				}
				if prev := st.activeTurn(); prev != nil {
					<-prev.done
				}
			}
			if m.TSMs > 0 {
				if delay := time.Since(time.UnixMilli(m.TSMs)); delay > 0 && delay < 10*time.Second {
					st.agg.ObserveEOU("", delay)
				}
			}
			o.startTurn(ctx, st, m.Text, m.AudioSeconds)

		case protocol.ClientControl:
			switch m.Action {
			case protocol.ActionBargeIn:
				if exhausted := o.handleBargeIn(st); exhausted {
					return session.ReasonBargeInExhausted
				}
			case protocol.ActionEndSession:
				return session.ReasonNormal
			default:
				log.Printf("voice: session %s unknown control action %q", st.sess.ID, m.Action)
			}
		}
	}
}

func (o *Orchestrator) handleBargeIn(st *sessionState) (exhausted bool) {
	ts := st.activeTurn()
	if ts == nil {
		return false
	}
	o.interruptTurn(st, ts)
	count, err := o.sessions.Interrupt(st.sess.ID)
	if err != nil {
		return false
	}
	o.metrics.SessionEvents.WithLabelValues("barge_in").Inc()
	return count >= o.cfg.BargeInLimit
}

func (o *Orchestrator) interruptTurn(st *sessionState, ts *turnState) {
	ts.bargedIn.Store(true)
	st.queue.CancelTurn(ts.id)
	ts.cancel()
}

func (o *Orchestrator) greet(ctx context.Context, st *sessionState) {
	greeting := strings.TrimSpace(o.cfg.Greeting)
	if greeting == "" {
		return
	}
	turnID := "greet-" + uuid.NewString()
	st.markTurnStart(turnID)
	if _, err := st.queue.Enqueue(ctx, turnID, protocol.SpeechTagResponse, greeting); err != nil {
		return
	}
	st.agg.AppendTranscript("assistant", greeting)
	st.appendHistory(model.Message{Role: "assistant", Content: greeting})
}

func (o *Orchestrator) startTurn(ctx context.Context, st *sessionState, transcript string, audioSeconds float64) {
	turnCtx, cancel := context.WithCancel(ctx)
	ts := &turnState{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	st.setActive(ts)
	st.markTurnStart(ts.id)
	go o.runTurn(ctx, turnCtx, st, ts, transcript, audioSeconds)
}

// runTurn drives one turn: Thinking, zero or more ToolExecuting hops, then
// Speaking. Tool execution deliberately runs on the session context, not the
// turn context: barge-in abandons results but never orphans a dispatched call.
func (o *Orchestrator) runTurn(sessCtx, turnCtx context.Context, st *sessionState, ts *turnState, transcript string, audioSeconds float64) {
	defer close(ts.done)
	defer st.clearActive(ts)
	defer ts.cancel()
	started := time.Now()

	_ = o.sessions.StartTurn(st.sess.ID, ts.id)
	st.agg.AppendTranscript("user", transcript)
	if audioSeconds > 0 {
		st.agg.Observe(telemetry.MetricsEvent{
			Stage:        telemetry.StageSTT,
			Provider:     o.cfg.STTProvider,
			SessionID:    st.sess.ID,
			TurnID:       ts.id,
			AudioSeconds: audioSeconds,
		})
	}
	o.sendSystem(st, "thinking", "")

	coord := tools.NewCoordinator(o.registry, o.cfg.ToolTimeout, tools.WithObserver(func(tool string, outcome tools.Outcome, d time.Duration) {
		o.metrics.ObserveToolInvocation(tool, string(outcome), d)
	}))
	inj := filler.NewInjector(o.cfg.FillerDelay, st.selector,
		func(key string) bool {
			_, done := ts.execDone.Load(key)
			return done
		},
		ts.speaking,
		func(key, phrase string) {
			if _, err := st.queue.Enqueue(turnCtx, ts.id, protocol.SpeechTagFiller, phrase); err == nil {
				st.agg.AppendTranscript("assistant", phrase)
			}
		},
	)
	ts.inj = inj

	messages := st.historySnapshot()
	messages = append(messages, model.Message{Role: "user", Content: transcript})

	var spokenText strings.Builder
	result := TurnCompleted

hops:
	for hop := 0; ; hop++ {
		hopStarted := time.Now()
		units, errs, err := o.provider.Stream(turnCtx, model.Request{
			SessionID: st.sess.ID,
			TurnID:    ts.id,
			Messages:  messages,
			Tools:     o.registry.Specs(),
		})
		if err != nil {
			if turnCtx.Err() == nil {
				log.Printf("voice: turn %s stream open failed: %v", ts.id, err)
				o.metrics.ProviderErrors.WithLabelValues(o.cfg.ModelProvider, "stream_open").Inc()
				result = TurnFailed
			}
			break hops
		}

		demux := model.NewDemux()
		var (
			pending    strings.Builder
			firstUnit  time.Time
			firstOnce  sync.Once
			consumeWG  sync.WaitGroup
			fillerWG   sync.WaitGroup
			execWG     sync.WaitGroup
			execMu     sync.Mutex
			dispatched []model.CompletedCall
			results    = make(map[string]tools.Result)
		)

		consumeWG.Add(3)
		go func() {
			defer consumeWG.Done()
			for delta := range demux.Text() {
				firstOnce.Do(func() {
					firstUnit = time.Now()
					if hop == 0 {
						o.metrics.ObserveTurnStage("transcript_to_first_unit", firstUnit.Sub(started))
					} else {
						o.metrics.ObserveTurnStage("resume_to_first_unit", firstUnit.Sub(hopStarted))
					}
				})
				spokenText.WriteString(delta)
				o.send(st, protocol.AssistantTextDelta{
					Type:      protocol.TypeAssistantTextDelta,
					SessionID: st.sess.ID,
					TurnID:    ts.id,
					TextDelta: delta,
				})
				pending.WriteString(delta)
				if speak, rest := splitSpeakable(pending.String()); speak != "" {
					pending.Reset()
					pending.WriteString(rest)
					o.enqueueResponse(turnCtx, st, ts, speak)
				}
			}
		}()
		go func() {
			defer consumeWG.Done()
			for f := range demux.Flush() {
				firstOnce.Do(func() {
					firstUnit = time.Now()
					if hop == 0 {
						o.metrics.ObserveTurnStage("transcript_to_first_unit", firstUnit.Sub(started))
					}
				})
				fillerWG.Add(1)
				go func(f model.Flush) {
					defer fillerWG.Done()
					decided := time.Now()
					d := inj.Inject(turnCtx, f.Name, hopCallKey(hop, f.Index))
					o.metrics.ObserveFillerDecision(string(d.Outcome))
					o.metrics.ObserveTurnStage("flush_to_filler_decision", time.Since(decided))
					if d.Outcome == filler.OutcomeSpoken {
						o.metrics.ObserveTurnIndicator("filler_spoken")
					}
				}(f)
			}
		}()
		go func() {
			defer consumeWG.Done()
			for call := range demux.Calls() {
				execMu.Lock()
				dispatched = append(dispatched, call)
				execMu.Unlock()
				execWG.Add(1)
				go func(call model.CompletedCall) {
					defer execWG.Done()
					dispatchedAt := time.Now()
					res := coord.Execute(sessCtx, []model.CompletedCall{call})[0]
					o.metrics.ObserveTurnStage("tool_dispatch_to_result", time.Since(dispatchedAt))
					execMu.Lock()
					results[call.ID] = res
					execMu.Unlock()
					ts.execDone.Store(hopCallKey(hop, call.Index), true)
				}(call)
			}
		}()

		usage, runErr := demux.Run(turnCtx, units)
		consumeWG.Wait()
		// A turn never closes with unresolved calls; barge-in included. Filler
		// decisions settle too, so no phrase can land after the turn ends.
		execWG.Wait()
		fillerWG.Wait()

		var streamErr error
		select {
		case streamErr = <-errs:
		default:
		}

		if usage != nil {
			ev := telemetry.MetricsEvent{
				Stage:        telemetry.StageLLM,
				Provider:     o.cfg.ModelProvider,
				SessionID:    st.sess.ID,
				TurnID:       ts.id,
				InputTokens:  int64(usage.InputTokens),
				OutputTokens: int64(usage.OutputTokens),
			}
			if hop == 0 && !firstUnit.IsZero() {
				ev.TTFT = firstUnit.Sub(hopStarted)
			}
			st.agg.Observe(ev)
		}

		if turnCtx.Err() != nil {
			execMu.Lock()
			ids := make([]string, 0, len(dispatched))
			for _, c := range dispatched {
				ids = append(ids, c.ID)
			}
			execMu.Unlock()
			coord.MarkDiscarded(ids, "discarded-barge-in")
			result = TurnBargeIn
			break hops
		}
		if runErr != nil || streamErr != nil {
			log.Printf("voice: turn %s stream failed mid-turn: %v / %v", ts.id, runErr, streamErr)
			o.metrics.ProviderErrors.WithLabelValues(o.cfg.ModelProvider, "stream").Inc()
			o.send(st, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: st.sess.ID,
				Code:      "stream_failed",
				Source:    o.cfg.ModelProvider,
				Retryable: true,
				Detail:    "model stream interrupted; turn closed",
			})
			result = TurnFailed
			break hops
		}

		if len(dispatched) == 0 {
			if rest := strings.TrimSpace(pending.String()); rest != "" {
				o.enqueueResponse(turnCtx, st, ts, rest)
			}
			break hops
		}

		// Fold tool results into context and resume the stream.
		sort.Slice(dispatched, func(i, j int) bool { return dispatched[i].Index < dispatched[j].Index })
		assistant := model.Message{Role: "assistant"}
		for _, c := range dispatched {
			assistant.ToolCalls = append(assistant.ToolCalls, model.AssistantToolCall{
				ID:   c.ID,
				Type: "function",
				Function: model.FunctionCall{
					Name:      c.Name,
					Arguments: c.Args,
				},
			})
		}
		messages = append(messages, assistant)
		names := make([]string, 0, len(dispatched))
		for _, c := range dispatched {
			messages = append(messages, model.Message{
				Role:       "tool",
				ToolCallID: c.ID,
				Content:    results[c.ID].Content,
			})
			names = append(names, c.Name)
		}
		o.sendSystem(st, "tool_executing", strings.Join(names, ","))
	}

	if result == TurnCompleted {
		// Speaking: hold the turn open until its queued speech is delivered.
		select {
		case <-st.queue.Drained(ts.id):
		case <-turnCtx.Done():
			result = TurnBargeIn
		}
	}

	if text := strings.TrimSpace(spokenText.String()); text != "" {
		st.agg.AppendTranscript("assistant", text)
		if result == TurnCompleted {
			st.appendHistory(
				model.Message{Role: "user", Content: transcript},
				model.Message{Role: "assistant", Content: text},
			)
		}
	}

	st.agg.TurnClosed(ts.id)
	_ = o.sessions.EndTurn(st.sess.ID, ts.id)
	o.metrics.TurnsClosed.WithLabelValues(result).Inc()
	o.metrics.ObserveTurnStage("turn_total", time.Since(started))
	o.send(st, protocol.AssistantTurnEnd{
		Type:      protocol.TypeAssistantTurnEnd,
		SessionID: st.sess.ID,
		TurnID:    ts.id,
		Reason:    result,
	})
}

// hopCallKey scopes a call's filler claim and completion flag to its hop;
// stream indices restart at zero on every resume.
func hopCallKey(hop, index int) string {
	return strconv.Itoa(hop) + ":" + strconv.Itoa(index)
}

func (o *Orchestrator) enqueueResponse(ctx context.Context, st *sessionState, ts *turnState, text string) {
	ts.spokeResponse.Store(true)
	if _, err := st.queue.Enqueue(ctx, ts.id, protocol.SpeechTagResponse, text); err != nil && !errors.Is(err, ErrTurnCancelled) && ctx.Err() == nil {
		log.Printf("voice: turn %s speech enqueue failed: %v", ts.id, err)
	}
}

// speak is the single consumer of the speech queue; it preserves enqueue
// order on the wire and feeds the TTS stream when one is configured.
func (o *Orchestrator) speak(ctx context.Context, st *sessionState) {
	var stream TTSStream
	if o.tts != nil {
		var err error
		stream, err = o.tts.StartStream(ctx, o.cfg.VoiceID, o.cfg.TTSModelID, TTSSettings{})
		if err != nil {
			log.Printf("voice: session %s tts unavailable, text-only speech: %v", st.sess.ID, err)
			o.metrics.ProviderErrors.WithLabelValues(o.cfg.TTSProvider, "stream_open").Inc()
			stream = nil
		}
	}
	tracker := newTTFBTracker()
	if stream != nil {
		defer stream.Close()
		go o.forwardAudio(st, stream, tracker)
	}

	firstSpoken := make(map[string]bool)
	for {
		item, ok := st.queue.Next(ctx)
		if !ok {
			return
		}
		text := sanitizeSpeechText(item.Text)
		if text == "" {
			continue
		}
		o.send(st, protocol.SpeechUnit{
			Type:      protocol.TypeSpeechUnit,
			SessionID: st.sess.ID,
			TurnID:    item.TurnID,
			Seq:       item.Seq,
			Tag:       item.Tag,
			Text:      text,
		})
		// A delivered filler frees the injector slot for later calls in the
		// same turn.
		if item.Tag == protocol.SpeechTagFiller {
			if ts := st.activeTurn(); ts != nil && ts.id == item.TurnID && ts.inj != nil {
				ts.inj.Settle()
			}
		}
		if !firstSpoken[item.TurnID] {
			firstSpoken[item.TurnID] = true
			if startedAt, ok := st.turnStart(item.TurnID); ok {
				d := time.Since(startedAt)
				o.metrics.ObserveFirstSpeechLatency(d)
				o.metrics.ObserveTurnStage("transcript_to_first_speech", d)
			}
		}
		if stream != nil {
			st.speakingTurn.Store(item.TurnID)
			tracker.Arm(item.TurnID)
			if err := stream.SendText(ctx, text+" ", true); err != nil {
				log.Printf("voice: session %s tts send failed: %v", st.sess.ID, err)
				o.metrics.ProviderErrors.WithLabelValues(o.cfg.TTSProvider, "send").Inc()
			}
		}
		st.agg.Observe(telemetry.MetricsEvent{
			Stage:      telemetry.StageTTS,
			Provider:   o.cfg.TTSProvider,
			SessionID:  st.sess.ID,
			TurnID:     item.TurnID,
			Characters: int64(len(text)),
			Tag:        item.Tag,
			Streamed:   stream != nil,
		})
	}
}

// ttfbTracker measures time-to-first-byte once per turn: armed by the first
// text sent to the TTS stream for a turn, resolved by the first audio chunk
// that arrives while that turn is speaking.
type ttfbTracker struct {
	mu       sync.Mutex
	turn     string
	armedAt  time.Time
	reported map[string]bool
}

func newTTFBTracker() *ttfbTracker {
	return &ttfbTracker{reported: make(map[string]bool)}
}

// Arm starts the measurement for turnID unless one is already pending or the
// turn has been measured before.
func (t *ttfbTracker) Arm(turnID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.turn != turnID {
		t.turn = turnID
		t.armedAt = time.Time{}
	}
	if t.armedAt.IsZero() && !t.reported[turnID] {
		t.armedAt = time.Now()
	}
}

// FirstByte resolves the pending measurement for turnID. ok is false when
// nothing is armed or the turn was already measured.
func (t *ttfbTracker) FirstByte(turnID string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if turnID == "" || t.turn != turnID || t.armedAt.IsZero() || t.reported[turnID] {
		return 0, false
	}
	t.reported[turnID] = true
	elapsed := time.Since(t.armedAt)
	t.armedAt = time.Time{}
	return elapsed, true
}

// forwardAudio relays synthesized audio chunks to the client and reports
// time-to-first-byte for each turn's speech.
func (o *Orchestrator) forwardAudio(st *sessionState, stream TTSStream, tracker *ttfbTracker) {
	seq := 0
	for ev := range stream.Events() {
		switch ev.Type {
		case TTSEventAudio:
			turnID, _ := st.speakingTurn.Load().(string)
			if d, ok := tracker.FirstByte(turnID); ok {
				st.agg.Observe(telemetry.MetricsEvent{
					Stage:     telemetry.StageTTS,
					Provider:  o.cfg.TTSProvider,
					SessionID: st.sess.ID,
					TurnID:    turnID,
					TTFB:      d,
					Streamed:  true,
				})
			}
			seq++
			o.send(st, protocol.AssistantAudioChunk{
				Type:        protocol.TypeAssistantAudio,
				SessionID:   st.sess.ID,
				TurnID:      turnID,
				Seq:         seq,
				Format:      ev.Format,
				AudioBase64: ev.AudioBase64,
			})
		case TTSEventError:
			o.metrics.ProviderErrors.WithLabelValues(o.cfg.TTSProvider, ev.Code).Inc()
		}
	}
}

func (o *Orchestrator) sendSystem(st *sessionState, code, detail string) {
	o.send(st, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: st.sess.ID,
		Code:      code,
		Detail:    detail,
	})
}

func (o *Orchestrator) send(st *sessionState, msg any) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.client.Send(ctx, msg); err != nil {
		log.Printf("voice: session %s send failed: %v", st.sess.ID, err)
		return
	}
	o.metrics.WSMessages.WithLabelValues("out", outboundType(msg)).Inc()
}

func outboundType(msg any) string {
	switch msg.(type) {
	case protocol.AssistantTextDelta:
		return string(protocol.TypeAssistantTextDelta)
	case protocol.SpeechUnit:
		return string(protocol.TypeSpeechUnit)
	case protocol.AssistantAudioChunk:
		return string(protocol.TypeAssistantAudio)
	case protocol.AssistantTurnEnd:
		return string(protocol.TypeAssistantTurnEnd)
	case protocol.SystemEvent:
		return string(protocol.TypeSystemEvent)
	case protocol.ErrorEvent:
		return string(protocol.TypeErrorEvent)
	case protocol.SessionSummary:
		return string(protocol.TypeSessionSummary)
	default:
		return "unknown"
	}
}

func (st *sessionState) activeTurn() *turnState {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.active
}

func (st *sessionState) setActive(ts *turnState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.active = ts
}

func (st *sessionState) clearActive(ts *turnState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active == ts {
		st.active = nil
	}
}

func (st *sessionState) appendHistory(msgs ...model.Message) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.history = append(st.history, msgs...)
}

func (st *sessionState) historySnapshot() []model.Message {
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.Message, len(st.history))
	copy(out, st.history)
	return out
}

func (st *sessionState) markTurnStart(turnID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.turnStarts[turnID] = time.Now()
}

func (st *sessionState) turnStart(turnID string) (time.Time, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	at, ok := st.turnStarts[turnID]
	return at, ok
}
