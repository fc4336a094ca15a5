package exchange

import (
	"errors"
	"fmt"
	"time"
)

// State is the lifecycle stage of a Manager's single logical connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	// StateFailed means automatic retries are exhausted; only an explicit
	// Connect leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "TERMINAL_FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChange describes one transition. Delay is set when a reconnect is
// scheduled.
type StateChange struct {
	From    State
	To      State
	Attempt int
	Delay   time.Duration
	Err     error
}

var (
	// ErrDisconnected resolves pending connects aborted by Disconnect.
	ErrDisconnected = errors.New("connection manager disconnected")
	// ErrNotConnected is logged when Send is called without a live connection.
	ErrNotConnected = errors.New("not connected")
)

// TransientConnectionError is a dial failure or remote close that will be
// retried with backoff.
type TransientConnectionError struct {
	Attempt int
	Err     error
}

func (e *TransientConnectionError) Error() string {
	return fmt.Sprintf("connection attempt %d failed: %v", e.Attempt, e.Err)
}

func (e *TransientConnectionError) Unwrap() error { return e.Err }

// TerminalConnectionError is raised once reconnect attempts are exhausted.
type TerminalConnectionError struct {
	Attempts int
	Err      error
}

func (e *TerminalConnectionError) Error() string {
	return fmt.Sprintf("giving up after %d reconnect attempts: %v", e.Attempts, e.Err)
}

func (e *TerminalConnectionError) Unwrap() error { return e.Err }

// MalformedMessageError describes an inbound frame that could not be routed.
type MalformedMessageError struct {
	Type string
	Err  error
}

func (e *MalformedMessageError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("malformed message: %v", e.Err)
	}
	return fmt.Sprintf("malformed %s message: %v", e.Type, e.Err)
}

func (e *MalformedMessageError) Unwrap() error { return e.Err }

// MaxBackoff caps the delay between reconnect attempts.
const MaxBackoff = 10 * time.Minute

// Backoff returns base * 2^(attempt-1), saturating at MaxBackoff. Attempts
// below 1 yield base, as does a base already above the cap.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 || base >= MaxBackoff {
		return base
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay >= MaxBackoff/2 {
			return MaxBackoff
		}
		delay *= 2
	}
	return delay
}
