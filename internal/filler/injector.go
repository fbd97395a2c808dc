package filler

import (
	"context"
	"sync"
	"time"
)

// Outcome records what happened to a filler decision.
type Outcome string

const (
	// OutcomeSpoken means the phrase was committed to the speech queue.
	OutcomeSpoken Outcome = "spoken"

	// OutcomeSuppressedRaced means the tool finished (or the turn was
	// cancelled) during the dispatch delay, so the phrase was dropped.
	OutcomeSuppressedRaced Outcome = "suppressed-raced"

	// OutcomeSuppressedPolicy means policy forbade the phrase outright: a
	// filler was already issued for this call, response speech was already
	// flowing for the turn, or another filler phrase was still in flight.
	OutcomeSuppressedPolicy Outcome = "suppressed-policy"
)

// Decision is the audit record for one flush signal.
type Decision struct {
	CallID    string
	Tool      string
	Phrase    string
	Outcome   Outcome
	DecidedAt time.Time
}

// Injector turns demultiplexer flush signals into at most one spoken filler
// phrase per tool call. Construction is per turn; state does not carry across
// turns.
//
// The race the delay exists for: a fast tool can finish before the filler
// would start, in which case saying "let me check" right before the answer
// sounds broken. So the injector waits, then re-checks completion immediately
// before committing.
type Injector struct {
	delay     time.Duration
	selector  *Selector
	completed func(callID string) bool
	speaking  func() bool
	speak     func(callID, phrase string)

	mu        sync.Mutex
	attempted map[string]bool
	inFlight  bool
	decisions []Decision
}

// NewInjector wires the injector to its turn. completed is consulted right
// before committing (typically Coordinator.Completed); speaking reports
// whether response speech has already started for this turn; speak enqueues
// the committed phrase into the speech queue.
func NewInjector(
	delay time.Duration,
	selector *Selector,
	completed func(callID string) bool,
	speaking func() bool,
	speak func(callID, phrase string),
) *Injector {
	return &Injector{
		delay:     delay,
		selector:  selector,
		completed: completed,
		speaking:  speaking,
		speak:     speak,
		attempted: make(map[string]bool),
	}
}

// Inject handles one flush signal. It blocks for at most the dispatch delay
// and returns the decision it made; callers run it in its own goroutine.
func (i *Injector) Inject(ctx context.Context, tool, callID string) Decision {
	if !i.claim(callID) {
		return i.decide(tool, callID, "", OutcomeSuppressedPolicy)
	}
	if i.speaking() {
		return i.decide(tool, callID, "", OutcomeSuppressedPolicy)
	}

	if i.delay > 0 {
		timer := time.NewTimer(i.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return i.decide(tool, callID, "", OutcomeSuppressedRaced)
		case <-timer.C:
		}
	}

	// Last-instant checks: the delay window may have let the tool finish or
	// response speech begin.
	if i.completed(callID) {
		return i.decide(tool, callID, "", OutcomeSuppressedRaced)
	}
	if i.speaking() {
		return i.decide(tool, callID, "", OutcomeSuppressedPolicy)
	}

	// The commit is exclusive: while one phrase is in flight no concurrent
	// call may stack a second one on top of it.
	if !i.acquire() {
		return i.decide(tool, callID, "", OutcomeSuppressedPolicy)
	}
	phrase := i.selector.Phrase(tool, callID)
	i.speak(callID, phrase)
	return i.decide(tool, callID, phrase, OutcomeSpoken)
}

// acquire reserves the shared in-flight slot. Returns false while an earlier
// phrase has not settled yet.
func (i *Injector) acquire() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.inFlight {
		return false
	}
	i.inFlight = true
	return true
}

// Settle releases the in-flight slot once the committed phrase has been
// delivered. The speech consumer calls this; until it does, every other flush
// for the turn is suppressed by policy.
func (i *Injector) Settle() {
	i.mu.Lock()
	i.inFlight = false
	i.mu.Unlock()
}

// claim reserves the single filler slot for callID. Returns false if a filler
// was already attempted for this call.
func (i *Injector) claim(callID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.attempted[callID] {
		return false
	}
	i.attempted[callID] = true
	return true
}

func (i *Injector) decide(tool, callID, phrase string, outcome Outcome) Decision {
	d := Decision{
		CallID:    callID,
		Tool:      tool,
		Phrase:    phrase,
		Outcome:   outcome,
		DecidedAt: time.Now(),
	}
	i.mu.Lock()
	i.decisions = append(i.decisions, d)
	i.mu.Unlock()
	return d
}

// Decisions returns a copy of every decision made this turn.
func (i *Injector) Decisions() []Decision {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]Decision, len(i.decisions))
	copy(out, i.decisions)
	return out
}
