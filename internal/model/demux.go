package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CompletedCall is one fully accumulated tool call from the stream. Err is set
// when the accumulated arguments fail to parse; the call is still delivered so
// the coordinator can substitute a fallback result.
type CompletedCall struct {
	Index int
	ID    string
	Name  string
	Args  string
	Err   error
}

// Arguments parses the accumulated argument string.
func (c CompletedCall) Arguments() (map[string]any, error) {
	args := map[string]any{}
	raw := strings.TrimSpace(c.Args)
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}
	return args, nil
}

// Flush marks that a tool call has begun inside the stream. It fires the
// instant the first fragment for an index arrives, before the call completes,
// so the filler injector can start bridging the latency gap.
type Flush struct {
	Index int
	Name  string
	At    time.Time
}

// Demux splits one turn's unit stream into speakable text, completed tool
// calls, and flush signals. It classifies and forwards only; it never blocks
// on tool execution.
type Demux struct {
	// completeOnAdvance completes every open call below index i when the first
	// fragment for index i arrives. OpenAI-style providers emit calls with
	// nondecreasing indices, so this is safe and cuts latency; providers that
	// interleave indices should disable it and rely on end-of-stream.
	completeOnAdvance bool

	text  chan string
	calls chan CompletedCall
	flush chan Flush
}

// DemuxOption configures a Demux.
type DemuxOption func(*Demux)

// WithoutCompleteOnAdvance keeps every call open until end of stream.
func WithoutCompleteOnAdvance() DemuxOption {
	return func(d *Demux) { d.completeOnAdvance = false }
}

func NewDemux(opts ...DemuxOption) *Demux {
	d := &Demux{
		completeOnAdvance: true,
		text:              make(chan string, 64),
		calls:             make(chan CompletedCall, 8),
		flush:             make(chan Flush, 8),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Demux) Text() <-chan string         { return d.text }
func (d *Demux) Calls() <-chan CompletedCall { return d.calls }
func (d *Demux) Flush() <-chan Flush         { return d.flush }

type callAccum struct {
	id   string
	name string
	args strings.Builder
}

// Run consumes units until End or channel close, then closes all three
// outputs. Usage from the End unit, if any, is returned to the caller.
func (d *Demux) Run(ctx context.Context, units <-chan StreamUnit) (*Usage, error) {
	defer close(d.text)
	defer close(d.calls)
	defer close(d.flush)

	open := make(map[int]*callAccum)

	completeOne := func(index int) error {
		acc, ok := open[index]
		if !ok {
			return nil
		}
		delete(open, index)
		if acc.id == "" {
			acc.id = uuid.NewString()
		}
		call := CompletedCall{
			Index: index,
			ID:    acc.id,
			Name:  acc.name,
			Args:  acc.args.String(),
		}
		if _, err := call.Arguments(); err != nil {
			call.Err = err
		}
		select {
		case d.calls <- call:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	completeAll := func() error {
		indices := make([]int, 0, len(open))
		for idx := range open {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for _, idx := range indices {
			if err := completeOne(idx); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case u, ok := <-units:
			if !ok {
				// Stream closed without an explicit End: still complete what
				// we have so no call is left unresolved.
				return nil, completeAll()
			}
			switch u.Kind {
			case UnitText:
				if u.Text == "" {
					continue
				}
				select {
				case d.text <- u.Text:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			case UnitToolDelta:
				acc, seen := open[u.Index]
				if !seen {
					acc = &callAccum{}
					open[u.Index] = acc
					select {
					case d.flush <- Flush{Index: u.Index, Name: u.Name, At: time.Now()}:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
					if d.completeOnAdvance {
						for idx := range open {
							if idx < u.Index {
								if err := completeOne(idx); err != nil {
									return nil, err
								}
							}
						}
					}
				}
				if u.Name != "" {
					acc.name = u.Name
				}
				if u.ID != "" {
					acc.id = u.ID
				}
				acc.args.WriteString(u.Args)
			case UnitEnd:
				return u.Usage, completeAll()
			}
		}
	}
}
