// Package session carries events and cancellation between a background
// download or processing session and the foreground that owns the UI.
//
// The background side publishes into a bounded Queue; the foreground drains
// it on a fixed interval. The background never touches foreground state.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Kind tags an Event.
type Kind int

const (
	KindLog Kind = iota
	KindProgress
	KindYears
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindLog:
		return "log"
	case KindProgress:
		return "progress"
	case KindYears:
		return "years"
	case KindDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one message from a background session.
type Event struct {
	Kind      Kind
	SessionID string
	Time      time.Time

	// KindLog
	Level   slog.Level
	Message string

	// KindProgress
	Done  int
	Total int

	// KindYears carries the selectable years, ascending.
	Years []int

	// KindDone
	Err error
}

// DefaultQueueSize bounds a Queue when no size is given.
const DefaultQueueSize = 1024

// Queue is a bounded, multi-producer event queue. Progress events are
// dropped when the queue is full since a later one supersedes them; every
// other kind waits for room until the queue is closed.
type Queue struct {
	ch        chan Event
	closed    chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewQueue returns a queue holding at most size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		ch:     make(chan Event, size),
		closed: make(chan struct{}),
	}
}

// Publish enqueues ev. It reports false if the event was dropped.
func (q *Queue) Publish(ev Event) bool {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	select {
	case <-q.closed:
		return false
	default:
	}

	if ev.Kind == KindProgress {
		select {
		case q.ch <- ev:
			return true
		default:
			q.dropped.Add(1)
			return false
		}
	}

	select {
	case q.ch <- ev:
		return true
	case <-q.closed:
		return false
	}
}

// Pending removes and returns every event currently queued without blocking.
func (q *Queue) Pending() []Event {
	var out []Event
	for {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Dropped returns how many progress events were discarded.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops the queue accepting events and releases blocked publishers.
// Events already queued can still be drained.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.closed) })
}

// Drain polls q every interval and hands each event to fn in order. It
// returns when fn reports false, or when ctx ends (after one final pass).
func Drain(ctx context.Context, q *Queue, interval time.Duration, fn func(Event) bool) error {
	if interval <= 0 {
		interval = 120 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deliver := func() bool {
		for _, ev := range q.Pending() {
			if !fn(ev) {
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			deliver()
			return ctx.Err()
		case <-ticker.C:
			if !deliver() {
				return nil
			}
		}
	}
}
