// Package corerr defines the discriminated error kinds used across the
// pipeline, parser, worker, and supervisor (spec §7): configuration errors
// raised synchronously at build time, transport errors fatal to a worker,
// and supervisor errors fatal to the whole process.
package corerr

import (
	"errors"
	"fmt"
)

// ErrNoEndpoint is returned when a pipeline is invoked with no endpoint set.
var ErrNoEndpoint = errors.New("corehttp: no endpoint set")

// ErrInvalidArgument is returned when Append/Prepend receives a non-handler
// value or SetEndpoint receives a non-callable.
var ErrInvalidArgument = errors.New("corehttp: invalid argument")

// SocketUnavailable is a fatal-to-worker transport error: the worker could
// not bind its listening socket.
type SocketUnavailable struct {
	Address string
	Errno   int
	Message string
}

func (e *SocketUnavailable) Error() string {
	return fmt.Sprintf("corehttp: socket unavailable on %s (errno %d): %s", e.Address, e.Errno, e.Message)
}

// ParseError represents a request that failed HTTP/1.1 parsing. Status is
// one of 400, 414, 501, 505 per spec §4.2. It is recovered locally by the
// worker (an error response is written) rather than propagated.
type ParseError struct {
	Status int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("corehttp: parse error %d: %s", e.Status, e.Reason)
}

// FrameError represents a malformed message-queue frame (spec §4.5/§9):
// missing comma separator, malformed length prefix, or truncated payload.
type FrameError struct {
	Reason string
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("corehttp: malformed queue frame: %s", e.Reason)
}

// ForkFailed is a fatal supervisor error: the supervisor could not fork a
// new worker and must abort with a non-zero exit (spec §7).
type ForkFailed struct {
	Slot int
	Err  error
}

func (e *ForkFailed) Error() string {
	return fmt.Sprintf("corehttp: fork failed for slot %d: %v", e.Slot, e.Err)
}

func (e *ForkFailed) Unwrap() error { return e.Err }
