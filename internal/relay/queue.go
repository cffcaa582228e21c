package relay

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrQueueFull is returned by Push when the queue already holds depth items.
// In this protocol it means the originator sent again before the responder
// pulled the previous packet.
var ErrQueueFull = errors.New("relay queue full")

// Item is one raw originator packet waiting for a responder pull.
type Item struct {
	Data []byte
	From *net.UDPAddr // originator that sent Data; the reply goes back here
	At   time.Time
}

// QueueStats is a point-in-time copy of the queue counters.
type QueueStats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
	Peak    int // largest number of items held at once
}

// Queue is a bounded FIFO shared by the client-facing loop (producer) and the
// server-facing loop (consumer).
//
// Every mutation and every emptiness check happens under mu. ready holds at
// most one wake-up token; a consumer always re-checks items under mu after
// taking it, so a push that lands between a check and the wait is never lost.
type Queue struct {
	clock clock.Clock
	depth int

	mu    sync.Mutex
	items []Item
	stats QueueStats
	ready chan struct{}
}

// NewQueue creates a queue holding at most depth items. A nil clk uses the
// wall clock.
func NewQueue(depth int, clk clock.Clock) *Queue {
	if depth < 1 {
		depth = 1
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Queue{
		clock: clk,
		depth: depth,
		items: make([]Item, 0, depth),
		ready: make(chan struct{}, 1),
	}
}

// Push appends it, or returns ErrQueueFull without modifying the queue.
func (q *Queue) Push(it Item) error { return q.PushWith(it, nil) }

// PushWith is Push that also runs onQueued once the item is stored, still
// under the queue lock, so that onQueued happens before any Pop can return
// the item. onQueued must be short and must not touch the queue.
func (q *Queue) PushWith(it Item, onQueued func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.depth {
		q.stats.Dropped++
		return ErrQueueFull
	}

	it.At = q.clock.Now()
	q.items = append(q.items, it)
	q.stats.Pushed++
	if len(q.items) > q.stats.Peak {
		q.stats.Peak = len(q.items)
	}
	if onQueued != nil {
		onQueued()
	}

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryPop removes the oldest item without waiting.
func (q *Queue) TryPop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}

	it := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	q.stats.Popped++
	return it, true
}

// Pop removes the oldest item, waiting up to wait for one to be pushed.
// It returns false when wait elapses or ctx is done first.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (Item, bool) {
	if it, ok := q.TryPop(); ok {
		return it, true
	}

	timer := q.clock.Timer(wait)
	defer timer.Stop()

	for {
		select {
		case <-q.ready:
			if it, ok := q.TryPop(); ok {
				return it, true
			}
			// Stale token from an item that was already taken.

		case <-timer.C:
			return q.TryPop()

		case <-ctx.Done():
			return Item{}, false
		}
	}
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Stats returns a copy of the counters.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
