package telemetry

import (
	"context"
	"log"
	"sort"
	"time"
)

// Sink receives the immutable session summary at shutdown. Implementations
// live in internal/persist.
type Sink interface {
	SaveSummary(ctx context.Context, s Summary) error
}

// Summary is the one immutable record produced when a session ends.
type Summary struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id,omitempty"`
	JobID     string `json:"job_id,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds float64   `json:"duration_seconds"`

	TurnCount    int `json:"turn_count"`
	RequestCount int `json:"request_count"`

	InputTokens        int64   `json:"input_tokens"`
	OutputTokens       int64   `json:"output_tokens"`
	TTSCharacters      int64   `json:"tts_characters"`
	FillerCharacters   int64   `json:"filler_characters"`
	ResponseCharacters int64   `json:"response_characters"`
	STTAudioSeconds    float64 `json:"stt_audio_seconds"`

	AvgTTFTSeconds float64 `json:"avg_ttft_seconds"`
	AvgTTFBSeconds float64 `json:"avg_ttfb_seconds"`
	AvgEOUSeconds  float64 `json:"avg_eou_seconds"`

	CostSTT   float64 `json:"cost_stt"`
	CostLLM   float64 `json:"cost_llm"`
	CostTTS   float64 `json:"cost_tts"`
	CostTotal float64 `json:"cost_total"`

	// MissingPrices lists "provider/unit" pairs that were observed but had no
	// configured price. Their events are counted in the usage totals above and
	// excluded from the cost totals.
	MissingPrices []string `json:"missing_prices,omitempty"`

	ShutdownReason string           `json:"shutdown_reason"`
	Transcript     []TranscriptLine `json:"transcript,omitempty"`
}

// TurnTotals is the per-turn contribution that rolls into session totals.
type TurnTotals struct {
	TurnID          string
	InputTokens     int64
	OutputTokens    int64
	TTSCharacters   int64
	STTAudioSeconds float64
	Cost            float64
}

// Totals is a read-only snapshot of the aggregator's running state.
type Totals struct {
	InputTokens        int64
	OutputTokens       int64
	TTSCharacters      int64
	FillerCharacters   int64
	ResponseCharacters int64
	STTAudioSeconds    float64
	RequestCount       int
	TurnCount          int
	CostSTT            float64
	CostLLM            float64
	CostTTS            float64
	CostTotal          float64
	Turns              []TurnTotals
}

type aggCommand interface{ isAggCommand() }

type observeCmd struct{ ev MetricsEvent }
type eouCmd struct {
	turnID string
	delay  time.Duration
}
type transcriptCmd struct{ line TranscriptLine }
type turnClosedCmd struct{ turnID string }
type snapshotCmd struct{ reply chan Totals }
type closeCmd struct {
	reason string
	endAt  time.Time
	reply  chan Summary
}

func (observeCmd) isAggCommand()    {}
func (eouCmd) isAggCommand()        {}
func (transcriptCmd) isAggCommand() {}
func (turnClosedCmd) isAggCommand() {}
func (snapshotCmd) isAggCommand()   {}
func (closeCmd) isAggCommand()      {}

// Aggregator consumes interleaved MetricsEvents from the stt/llm/tts legs of
// one session and keeps running totals. All state lives inside a single
// goroutine; every external touch goes through the command channel, so events
// may be produced from any number of goroutines without a lock on the totals.
type Aggregator struct {
	costs *CostModel
	sink  Sink

	sessionID string
	roomID    string
	jobID     string
	startedAt time.Time

	cmds chan aggCommand
	done chan struct{}
}

// NewAggregator starts the aggregation goroutine. sink may be nil when
// persistence is disabled.
func NewAggregator(costs *CostModel, sink Sink, sessionID, roomID, jobID string) *Aggregator {
	a := &Aggregator{
		costs:     costs,
		sink:      sink,
		sessionID: sessionID,
		roomID:    roomID,
		jobID:     jobID,
		startedAt: time.Now(),
		cmds:      make(chan aggCommand, 256),
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

// Observe submits one event. It never blocks the conversation: if the buffer
// is full the event is dropped with a log line.
func (a *Aggregator) Observe(ev MetricsEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	a.submit(observeCmd{ev: ev})
}

// ObserveEOU records the end-of-utterance delay for a turn: the gap between
// the user finishing speaking and the turn starting to process.
func (a *Aggregator) ObserveEOU(turnID string, delay time.Duration) {
	a.submit(eouCmd{turnID: turnID, delay: delay})
}

// AppendTranscript adds a role-tagged line to the session transcript.
func (a *Aggregator) AppendTranscript(role, text string) {
	if text == "" {
		return
	}
	a.submit(transcriptCmd{line: TranscriptLine{Role: role, Text: text}})
}

// TurnClosed rolls the turn into the session turn count.
func (a *Aggregator) TurnClosed(turnID string) {
	a.submit(turnClosedCmd{turnID: turnID})
}

func (a *Aggregator) submit(cmd aggCommand) {
	select {
	case a.cmds <- cmd:
	case <-a.done:
	default:
		log.Printf("telemetry: aggregator buffer full, dropping %T", cmd)
	}
}

// Snapshot returns the current totals. Used by tests and the latency/summary
// HTTP endpoints; the live conversation never needs it.
func (a *Aggregator) Snapshot() Totals {
	reply := make(chan Totals, 1)
	select {
	case a.cmds <- snapshotCmd{reply: reply}:
		return <-reply
	case <-a.done:
		return Totals{}
	}
}

// Close drains pending commands, builds the immutable summary, flushes it to
// the sink, and stops the goroutine. Safe to call once; the flush failure path
// only logs.
func (a *Aggregator) Close(ctx context.Context, reason string) Summary {
	reply := make(chan Summary, 1)
	select {
	case a.cmds <- closeCmd{reason: reason, endAt: time.Now(), reply: reply}:
	case <-a.done:
		return Summary{}
	}
	s := <-reply

	if a.sink != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.sink.SaveSummary(flushCtx, s); err != nil {
			log.Printf("telemetry: summary flush for session %s failed: %v", a.sessionID, err)
		}
	}
	return s
}

type aggState struct {
	totals      Totals
	turns       map[string]*TurnTotals
	turnOrder   []string
	ttftSum     time.Duration
	ttftCount   int
	ttfbSum     time.Duration
	ttfbCount   int
	eouSum      time.Duration
	eouCount    int
	missing     map[string]bool
	transcript  []TranscriptLine
	closedTurns map[string]bool
}

func (a *Aggregator) run() {
	st := &aggState{
		turns:       make(map[string]*TurnTotals),
		missing:     make(map[string]bool),
		closedTurns: make(map[string]bool),
	}
	for cmd := range a.cmds {
		switch c := cmd.(type) {
		case observeCmd:
			a.apply(st, c.ev)
		case eouCmd:
			st.eouSum += c.delay
			st.eouCount++
		case transcriptCmd:
			st.transcript = append(st.transcript, c.line)
		case turnClosedCmd:
			if !st.closedTurns[c.turnID] {
				st.closedTurns[c.turnID] = true
				st.totals.TurnCount++
			}
		case snapshotCmd:
			c.reply <- a.snapshot(st)
		case closeCmd:
			c.reply <- a.buildSummary(st, c.reason, c.endAt)
			close(a.done)
			return
		}
	}
}

func (a *Aggregator) turn(st *aggState, turnID string) *TurnTotals {
	t, ok := st.turns[turnID]
	if !ok {
		t = &TurnTotals{TurnID: turnID}
		st.turns[turnID] = t
		st.turnOrder = append(st.turnOrder, turnID)
	}
	return t
}

// apply folds one event into the turn and session totals. Cost arithmetic is
// strictly unit price times quantity; an unknown price excludes that event's
// contribution and records the provider/unit pair for the summary.
func (a *Aggregator) apply(st *aggState, ev MetricsEvent) {
	turn := a.turn(st, ev.TurnID)
	cost := 0.0
	charge := func(unit Unit, qty float64) {
		if qty == 0 {
			return
		}
		price, ok := a.costs.Price(ev.Provider, unit)
		if !ok {
			st.missing[ev.Provider+"/"+string(unit)] = true
			return
		}
		cost += price * qty
	}

	switch ev.Stage {
	case StageLLM:
		st.totals.InputTokens += ev.InputTokens
		st.totals.OutputTokens += ev.OutputTokens
		st.totals.RequestCount++
		turn.InputTokens += ev.InputTokens
		turn.OutputTokens += ev.OutputTokens
		if ev.TTFT > 0 {
			st.ttftSum += ev.TTFT
			st.ttftCount++
		}
		charge(UnitInputToken, float64(ev.InputTokens))
		charge(UnitOutputToken, float64(ev.OutputTokens))
		st.totals.CostLLM += cost
	case StageTTS:
		st.totals.TTSCharacters += ev.Characters
		if ev.Tag == TagFiller {
			st.totals.FillerCharacters += ev.Characters
		} else {
			st.totals.ResponseCharacters += ev.Characters
		}
		turn.TTSCharacters += ev.Characters
		if ev.TTFB > 0 {
			st.ttfbSum += ev.TTFB
			st.ttfbCount++
		}
		charge(UnitCharacter, float64(ev.Characters))
		st.totals.CostTTS += cost
	case StageSTT:
		st.totals.STTAudioSeconds += ev.AudioSeconds
		turn.STTAudioSeconds += ev.AudioSeconds
		charge(UnitAudioSecond, ev.AudioSeconds)
		st.totals.CostSTT += cost
	default:
		log.Printf("telemetry: dropping event with unknown stage %q", ev.Stage)
		return
	}
	turn.Cost += cost
	st.totals.CostTotal += cost
}

func (a *Aggregator) snapshot(st *aggState) Totals {
	t := st.totals
	t.Turns = make([]TurnTotals, 0, len(st.turnOrder))
	for _, id := range st.turnOrder {
		t.Turns = append(t.Turns, *st.turns[id])
	}
	return t
}

func (a *Aggregator) buildSummary(st *aggState, reason string, endAt time.Time) Summary {
	avg := func(sum time.Duration, n int) float64 {
		if n == 0 {
			return 0
		}
		return sum.Seconds() / float64(n)
	}
	missing := make([]string, 0, len(st.missing))
	for k := range st.missing {
		missing = append(missing, k)
	}
	sort.Strings(missing)

	transcript := make([]TranscriptLine, len(st.transcript))
	copy(transcript, st.transcript)

	return Summary{
		SessionID:          a.sessionID,
		RoomID:             a.roomID,
		JobID:              a.jobID,
		StartedAt:          a.startedAt,
		EndedAt:            endAt,
		DurationSeconds:    endAt.Sub(a.startedAt).Seconds(),
		TurnCount:          st.totals.TurnCount,
		RequestCount:       st.totals.RequestCount,
		InputTokens:        st.totals.InputTokens,
		OutputTokens:       st.totals.OutputTokens,
		TTSCharacters:      st.totals.TTSCharacters,
		FillerCharacters:   st.totals.FillerCharacters,
		ResponseCharacters: st.totals.ResponseCharacters,
		STTAudioSeconds:    st.totals.STTAudioSeconds,
		AvgTTFTSeconds:     avg(st.ttftSum, st.ttftCount),
		AvgTTFBSeconds:     avg(st.ttfbSum, st.ttfbCount),
		AvgEOUSeconds:      avg(st.eouSum, st.eouCount),
		CostSTT:            st.totals.CostSTT,
		CostLLM:            st.totals.CostLLM,
		CostTTS:            st.totals.CostTTS,
		CostTotal:          st.totals.CostTotal,
		MissingPrices:      missing,
		ShutdownReason:     reason,
		Transcript:         transcript,
	}
}
