package session

import (
	"context"
	"sync/atomic"
)

// Flag is the cancellation switch shared by the foreground and one
// background session. Setting it also cancels the session's context so
// blocking I/O returns promptly.
type Flag struct {
	set    atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func NewFlag(parent context.Context) *Flag {
	ctx, cancel := context.WithCancel(parent)
	return &Flag{ctx: ctx, cancel: cancel}
}

// Cancel signals the session. Safe to call repeatedly and concurrently.
func (f *Flag) Cancel() {
	f.set.Store(true)
	f.cancel()
}

// Cancelled reports whether Cancel was called or the parent context ended.
func (f *Flag) Cancelled() bool {
	return f.set.Load() || f.ctx.Err() != nil
}

// Context is done once the flag is set.
func (f *Flag) Context() context.Context { return f.ctx }
