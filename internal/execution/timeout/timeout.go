// Package timeout provides cancellable deadlines that can be attached
// to a supervised run. A token completes either when its deadline
// elapses or when it is cancelled; consumers treat both the same way.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrExpired   = errors.New("timeout expired")
	ErrCancelled = errors.New("timeout cancelled")
)

// Token is a deadline that consumers subscribe to.
type Token interface {
	// Done returns a channel that is closed once the token completes.
	Done() <-chan struct{}

	// Completed reports whether the token has already completed.
	Completed() bool

	// Err returns the reason the token completed, or nil.
	Err() error
}

// Timeout is a Token that completes after a fixed duration.
type Timeout struct {
	ctx      context.Context
	cancel   context.CancelCauseFunc
	stop     context.CancelFunc
	duration time.Duration
}

var _ Token = (*Timeout)(nil)

// New creates a timeout that completes after d, or when the
// parent context is done, whichever happens first.
func New(parent context.Context, d time.Duration) *Timeout {
	cancelCtx, cancel := context.WithCancelCause(parent)

	ctx, stop := context.WithTimeoutCause(
		cancelCtx,
		d,
		fmt.Errorf("%w after %s", ErrExpired, d),
	)

	return &Timeout{
		ctx:      ctx,
		cancel:   cancel,
		stop:     stop,
		duration: d,
	}
}

// Cancel completes the timeout before its deadline.
func (t *Timeout) Cancel() {
	t.cancel(ErrCancelled)
	t.stop()
}

func (t *Timeout) Done() <-chan struct{} {
	return t.ctx.Done()
}

func (t *Timeout) Completed() bool {
	return t.ctx.Err() != nil
}

func (t *Timeout) Err() error {
	if t.ctx.Err() == nil {
		return nil
	}

	return context.Cause(t.ctx)
}

// Duration returns the configured duration of the timeout.
func (t *Timeout) Duration() time.Duration {
	return t.duration
}

type contextToken struct {
	ctx context.Context
}

// FromContext adapts a context to a Token. The token completes
// when the context is done.
func FromContext(ctx context.Context) Token {
	return contextToken{ctx: ctx}
}

func (c contextToken) Done() <-chan struct{} {
	return c.ctx.Done()
}

func (c contextToken) Completed() bool {
	return c.ctx.Err() != nil
}

func (c contextToken) Err() error {
	if c.ctx.Err() == nil {
		return nil
	}

	return context.Cause(c.ctx)
}
