package harness

import "context"

// RequestSerializer lets at most one turn mutate a session at a time.
//
// The slot is a one-element channel. Blocked senders are queued by the
// runtime in arrival order and a freed slot is handed to the oldest waiter,
// so no caller can be overtaken indefinitely.
type RequestSerializer struct {
	slot chan struct{}
}

func NewRequestSerializer() *RequestSerializer {
	return &RequestSerializer{slot: make(chan struct{}, 1)}
}

// Acquire blocks until the turn slot is free or ctx is done.
func (s *RequestSerializer) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case s.slot <- struct{}{}:
		return func() { <-s.slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithExclusiveTurn runs fn while holding the session's turn slot.
func WithExclusiveTurn[T any](ctx context.Context, s *RequestSerializer, fn func(context.Context) (T, error)) (T, error) {
	release, err := s.Acquire(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()

	return fn(ctx)
}
