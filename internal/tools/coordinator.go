package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/dmaggi/voiceloop/internal/model"
)

// FallbackContent is spoken in place of a real result whenever a call fails or
// times out. The turn always continues; a broken tool must never strand the
// conversation mid-sentence.
const FallbackContent = "unable to retrieve that information"

// Coordinator runs completed tool calls concurrently, bounds each one with a
// timeout, and records every invocation. A timed-out handler keeps running in
// its goroutine until it notices ctx; the coordinator just stops waiting.
type Coordinator struct {
	registry *Registry
	timeout  time.Duration

	observe func(tool string, outcome Outcome, d time.Duration)

	mu          sync.Mutex
	invocations []Invocation
	completed   map[string]bool
}

// CoordinatorOption tweaks coordinator construction.
type CoordinatorOption func(*Coordinator)

// WithObserver registers a callback fired once per finished invocation, used
// to feed the prometheus instruments without importing them here.
func WithObserver(fn func(tool string, outcome Outcome, d time.Duration)) CoordinatorOption {
	return func(c *Coordinator) { c.observe = fn }
}

func NewCoordinator(registry *Registry, timeout time.Duration, opts ...CoordinatorOption) *Coordinator {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	c := &Coordinator{
		registry:  registry,
		timeout:   timeout,
		completed: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs every call in its own goroutine and returns results ordered by
// call index. It returns when all calls have resolved (completed, failed, or
// timed out); it never returns an error because a failed call resolves to the
// fallback content instead.
func (c *Coordinator) Execute(ctx context.Context, calls []model.CompletedCall) []Result {
	results := make([]Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call model.CompletedCall) {
			defer wg.Done()
			results[i] = c.executeOne(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (c *Coordinator) executeOne(ctx context.Context, call model.CompletedCall) Result {
	started := time.Now()
	var target string
	fail := func(outcome Outcome, detail string) Result {
		c.record(Invocation{
			CallID:    call.ID,
			Tool:      call.Name,
			Target:    target,
			StartedAt: started,
			Duration:  time.Since(started),
			Outcome:   outcome,
			Detail:    detail,
		})
		return Result{CallID: call.ID, Name: call.Name, Content: FallbackContent, Failed: true}
	}

	if call.Err != nil {
		log.Printf("tools: call %s (%s) arrived malformed: %v", call.ID, call.Name, call.Err)
		return fail(OutcomeBadArguments, call.Err.Error())
	}
	tool, ok := c.registry.Get(call.Name)
	if !ok {
		log.Printf("tools: call %s names unknown tool %q", call.ID, call.Name)
		return fail(OutcomeUnknownTool, fmt.Sprintf("no tool named %q", call.Name))
	}
	args, err := call.Arguments()
	if err != nil {
		log.Printf("tools: call %s (%s) has unparsable arguments: %v", call.ID, call.Name, err)
		return fail(OutcomeBadArguments, err.Error())
	}
	target = callTarget(args)

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type handlerResult struct {
		content string
		err     error
	}
	done := make(chan handlerResult, 1)
	go func() {
		content, err := tool.Handler(callCtx, args)
		done <- handlerResult{content: content, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.Printf("tools: call %s (%s) failed: %v", call.ID, call.Name, res.err)
			return fail(OutcomeError, res.err.Error())
		}
		c.record(Invocation{
			CallID:    call.ID,
			Tool:      call.Name,
			Target:    target,
			StartedAt: started,
			Duration:  time.Since(started),
			Outcome:   OutcomeOK,
		})
		return Result{CallID: call.ID, Name: call.Name, Content: res.content}
	case <-callCtx.Done():
		log.Printf("tools: call %s (%s) timed out after %s", call.ID, call.Name, c.timeout)
		return fail(OutcomeTimeout, callCtx.Err().Error())
	}
}

// callTarget pulls the call's primary argument for the invocation log: the
// city of a weather lookup, the expression handed to the calculator, and so
// on. Empty when the call has no recognizable subject.
func callTarget(args map[string]any) string {
	for _, key := range []string{"city", "timezone", "expression", "message", "text", "query"} {
		if v, ok := args[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (c *Coordinator) record(inv Invocation) {
	c.mu.Lock()
	c.invocations = append(c.invocations, inv)
	c.completed[inv.CallID] = true
	c.mu.Unlock()
	if c.observe != nil {
		c.observe(inv.Tool, inv.Outcome, inv.Duration)
	}
}

// Completed reports whether the call has already resolved. The filler injector
// consults this right before committing a phrase; a call that finished during
// the filler delay wins the race and the phrase is suppressed.
func (c *Coordinator) Completed(callID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed[callID]
}

// MarkDiscarded tags pending or finished invocations for a turn whose results
// were thrown away, typically after a barge-in. The work still shows up in the
// log so latency analysis is not skewed by interrupted turns.
func (c *Coordinator) MarkDiscarded(callIDs []string, tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make(map[string]bool, len(callIDs))
	for _, id := range callIDs {
		ids[id] = true
	}
	for i := range c.invocations {
		if ids[c.invocations[i].CallID] {
			c.invocations[i].Discarded = true
			c.invocations[i].Tag = tag
		}
	}
}

// Snapshot returns a copy of the invocation log.
func (c *Coordinator) Snapshot() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Invocation, len(c.invocations))
	copy(out, c.invocations)
	return out
}
