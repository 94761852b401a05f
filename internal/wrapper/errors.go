package wrapper

import (
	"errors"
	"fmt"
)

// Exit codes reserved by the wrapper. Every other code is the child's own.
// POSIX parents observe them modulo 256 (255 and 157).
const (
	// ExitToolNotFound means the configured compiler does not exist.
	ExitToolNotFound = -1
	// ExitWrapperFailure means the wrapper could not start or supervise the child.
	ExitWrapperFailure = -99
)

// Kind classifies wrapper-side failures.
type Kind int

const (
	KindNone Kind = iota
	KindToolNotFound
	KindSpawnFailure
	KindRelayFailure
	KindTimeout
	KindSupervision
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindToolNotFound:
		return "tool_not_found"
	case KindSpawnFailure:
		return "spawn_failure"
	case KindRelayFailure:
		return "relay_failure"
	case KindTimeout:
		return "timeout"
	case KindSupervision:
		return "supervision_failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a wrapper-side failure. The child's own nonzero exit is never an Error.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind carried by err, or KindSupervision for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindSupervision
}

// ExitCodeFor maps an invocation's failure (if any) and the child's code to
// the wrapper's own exit status. It is the only place that decides it.
func ExitCodeFor(err error, childCode int) int {
	switch KindOf(err) {
	case KindNone, KindRelayFailure:
		return childCode
	case KindToolNotFound:
		return ExitToolNotFound
	default:
		return ExitWrapperFailure
	}
}
