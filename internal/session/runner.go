package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session kinds. At most one session of each kind runs at a time.
const (
	KindDownload = "download"
	KindProcess  = "process"
	KindDetect   = "detect"
)

// ErrBusy is returned when a session of the same kind is already active.
var ErrBusy = errors.New("a session of this kind is already running")

// Session is one background run. Its Logger forwards into the queue.
type Session struct {
	ID      string
	Kind    string
	Started time.Time
	Flag    *Flag
	Logger  *slog.Logger

	queue *Queue
	done  chan struct{}
	err   error
}

// Progress publishes a completed/total count. It may be dropped under load.
func (s *Session) Progress(done, total int) {
	s.queue.Publish(Event{Kind: KindProgress, SessionID: s.ID, Done: done, Total: total})
}

// Years publishes an updated list of selectable years.
func (s *Session) Years(years []int) {
	s.queue.Publish(Event{Kind: KindYears, SessionID: s.ID, Years: years})
}

// Wait blocks until the session function has returned.
func (s *Session) Wait() error {
	<-s.done
	return s.err
}

// Runner serialises session starts per kind.
type Runner struct {
	queue  *Queue
	base   slog.Handler
	level  slog.Leveler
	mu     sync.Mutex
	active map[string]*Session
	wg     sync.WaitGroup
}

// NewRunner publishes into q. base receives every record as well (may be nil).
func NewRunner(q *Queue, base slog.Handler, level slog.Leveler) *Runner {
	return &Runner{queue: q, base: base, level: level, active: make(map[string]*Session)}
}

// Queue returns the queue sessions publish into.
func (r *Runner) Queue() *Queue { return r.queue }

// Active reports whether a session of kind is running.
func (r *Runner) Active(kind string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[kind]
	return ok
}

// Cancel sets the flag of the active session of kind, if any.
func (r *Runner) Cancel(kind string) bool {
	r.mu.Lock()
	s, ok := r.active[kind]
	r.mu.Unlock()
	if ok {
		s.Flag.Cancel()
	}
	return ok
}

// Start runs fn in a new goroutine. When fn returns, a KindDone event
// carrying its error is published and the kind becomes available again.
func (r *Runner) Start(parent context.Context, kind string, fn func(ctx context.Context, s *Session) error) (*Session, error) {
	r.mu.Lock()
	if _, busy := r.active[kind]; busy {
		r.mu.Unlock()
		return nil, fmt.Errorf("start %s: %w", kind, ErrBusy)
	}
	id := uuid.NewString()
	s := &Session{
		ID:      id,
		Kind:    kind,
		Started: time.Now(),
		Flag:    NewFlag(parent),
		queue:   r.queue,
		done:    make(chan struct{}),
	}
	s.Logger = slog.New(NewHandler(r.queue, id, r.level, r.base)).With(
		slog.String("session", kind),
	)
	r.active[kind] = s
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer close(s.done)
		defer s.Flag.cancel()
		s.err = fn(s.Flag.Context(), s)

		r.mu.Lock()
		delete(r.active, kind)
		r.mu.Unlock()

		r.queue.Publish(Event{Kind: KindDone, SessionID: id, Err: s.err})
	}()
	return s, nil
}

// Shutdown cancels every active session, closes the queue so no publisher
// stays blocked on a foreground that has gone away, and waits for the
// sessions to return.
func (r *Runner) Shutdown() {
	r.mu.Lock()
	for _, s := range r.active {
		s.Flag.Cancel()
	}
	r.mu.Unlock()
	r.queue.Close()
	r.wg.Wait()
}
