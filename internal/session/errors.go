package session

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrIllegalMove       = errors.New("illegal move")
	ErrStaleResolution   = errors.New("stale move resolution")
	ErrClosed            = errors.New("controller closed")
)

// RequestFailure means the decision service did not produce a usable move.
// The opponent keeps the move until the player retries or restarts.
type RequestFailure struct {
	Episode uint64
	Cause   error
}

func (e *RequestFailure) Error() string {
	return fmt.Sprintf("opponent move request failed: %v", e.Cause)
}

func (e *RequestFailure) Unwrap() error { return e.Cause }

func (e *RequestFailure) Timeout() bool {
	return errors.Is(e.Cause, context.DeadlineExceeded)
}

// IllegalReplyError is surfaced when the service answers with a move that is
// not legal in the current position.
type IllegalReplyError struct {
	Move  string
	Cause error
}

func (e *IllegalReplyError) Error() string {
	return fmt.Sprintf("opponent proposed illegal move %q: %v", e.Move, e.Cause)
}

func (e *IllegalReplyError) Unwrap() []error { return []error{ErrIllegalMove, e.Cause} }
