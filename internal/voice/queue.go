package voice

import (
	"context"
	"errors"
	"sync"
)

var ErrTurnCancelled = errors.New("turn cancelled")

// SpeechItem is one utterance queued for delivery, tagged filler or response.
type SpeechItem struct {
	TurnID string
	Seq    int
	Tag    string
	Text   string
}

// SpeechQueue is the single ordered path to the listener's ear. Enqueue order
// is delivery order, globally across filler and response producers; a full
// queue blocks producers rather than dropping or reordering. Barge-in cancels
// a turn's queued items without disturbing the stream for later turns.
type SpeechQueue struct {
	sendMu sync.Mutex
	ch     chan SpeechItem

	mu        sync.Mutex
	seq       int
	cancelled map[string]bool
	pending   map[string]int
	drained   map[string]chan struct{}
}

func NewSpeechQueue(depth int) *SpeechQueue {
	if depth <= 0 {
		depth = 32
	}
	return &SpeechQueue{
		ch:        make(chan SpeechItem, depth),
		cancelled: make(map[string]bool),
		pending:   make(map[string]int),
		drained:   make(map[string]chan struct{}),
	}
}

// Enqueue appends one utterance and returns its sequence number. It blocks
// while the queue is full; that backpressure is what keeps text waiting
// instead of vanishing when delivery is slow.
func (q *SpeechQueue) Enqueue(ctx context.Context, turnID, tag, text string) (int, error) {
	// sendMu serializes the whole append so sequence order and channel order
	// cannot diverge between concurrent producers.
	q.sendMu.Lock()
	defer q.sendMu.Unlock()

	q.mu.Lock()
	if q.cancelled[turnID] {
		q.mu.Unlock()
		return 0, ErrTurnCancelled
	}
	q.seq++
	item := SpeechItem{TurnID: turnID, Seq: q.seq, Tag: tag, Text: text}
	q.pending[turnID]++
	q.mu.Unlock()

	select {
	case q.ch <- item:
		return item.Seq, nil
	case <-ctx.Done():
		q.mu.Lock()
		q.settle(turnID)
		q.mu.Unlock()
		return 0, ctx.Err()
	}
}

// Next blocks for the next deliverable item, silently discarding items whose
// turn was cancelled after they were queued. ok is false once the queue is
// closed and empty.
func (q *SpeechQueue) Next(ctx context.Context) (SpeechItem, bool) {
	for {
		select {
		case item, open := <-q.ch:
			if !open {
				return SpeechItem{}, false
			}
			q.mu.Lock()
			cancelled := q.cancelled[item.TurnID]
			q.settle(item.TurnID)
			q.mu.Unlock()
			if cancelled {
				continue
			}
			return item, true
		case <-ctx.Done():
			return SpeechItem{}, false
		}
	}
}

// CancelTurn marks the turn's queued and future items as discarded.
func (q *SpeechQueue) CancelTurn(turnID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cancelled[turnID] = true
}

// Drained returns a channel closed once every queued item for the turn has
// been taken off the queue (delivered or discarded).
func (q *SpeechQueue) Drained(turnID string) <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending[turnID] == 0 {
		done := make(chan struct{})
		close(done)
		return done
	}
	ch, ok := q.drained[turnID]
	if !ok {
		ch = make(chan struct{})
		q.drained[turnID] = ch
	}
	return ch
}

// Close ends the queue; Next returns ok=false after remaining items drain.
func (q *SpeechQueue) Close() {
	q.sendMu.Lock()
	defer q.sendMu.Unlock()
	close(q.ch)
}

// settle decrements the turn's pending count and wakes drain waiters. Caller
// holds q.mu.
func (q *SpeechQueue) settle(turnID string) {
	if q.pending[turnID] > 0 {
		q.pending[turnID]--
	}
	if q.pending[turnID] == 0 {
		if ch, ok := q.drained[turnID]; ok {
			close(ch)
			delete(q.drained, turnID)
		}
		delete(q.pending, turnID)
	}
}
