package source

import (
	"errors"
	"time"
)

// State is a position in the fetch state machine.
type State int

const (
	StateFetching State = iota
	StateBackoff
	StateExhausted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateBackoff:
		return "backoff"
	case StateExhausted:
		return "exhausted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Machine tracks pagination and retry for one action type.
// Transitions are driven only by fetch outcomes:
//
//	Fetching --success, next page--> Fetching
//	Fetching --success, no next----> Exhausted
//	Fetching --transient-----------> Backoff(attempt) | Failed when retries are spent
//	Fetching --permanent-----------> Failed
//	Backoff  --resume--------------> Fetching
type Machine struct {
	maxRetries int
	backoff    BackoffPolicy

	state   State
	attempt int
	delay   time.Duration
	err     error
}

// NewMachine starts in Fetching.
func NewMachine(maxRetries int, backoff BackoffPolicy) *Machine {
	return &Machine{maxRetries: maxRetries, backoff: backoff, state: StateFetching}
}

func (m *Machine) State() State { return m.state }

// Attempt is the current retry number; zero while no retry is pending.
func (m *Machine) Attempt() int { return m.attempt }

// Delay is the wait required before leaving Backoff.
func (m *Machine) Delay() time.Duration { return m.delay }

// Err is the error that moved the machine to Failed.
func (m *Machine) Err() error { return m.err }

// Done reports whether the machine reached a terminal state.
func (m *Machine) Done() bool {
	return m.state == StateExhausted || m.state == StateFailed
}

// Succeeded records a served page. An empty next token means the source is exhausted.
func (m *Machine) Succeeded(next string) {
	if m.state != StateFetching {
		return
	}
	m.attempt = 0
	m.delay = 0
	if next == "" {
		m.state = StateExhausted
		return
	}
	m.state = StateFetching
}

// Failed records a fetch error and picks Backoff or Failed.
func (m *Machine) Failed(err error) {
	if m.state != StateFetching {
		return
	}
	var transient *TransientFetchError
	if !errors.As(err, &transient) {
		m.fail(err)
		return
	}
	m.attempt++
	if m.attempt > m.maxRetries {
		m.fail(&RetriesExhaustedError{Attempts: m.attempt, Err: err})
		return
	}
	var hint time.Duration
	var limited *RateLimitedError
	if errors.As(err, &limited) {
		hint = limited.RetryAfter
	}
	m.delay = m.backoff.Delay(m.attempt, hint)
	m.state = StateBackoff
}

// Resume leaves Backoff once the delay has been waited out.
func (m *Machine) Resume() {
	if m.state == StateBackoff {
		m.state = StateFetching
	}
}

// Abort moves to Failed regardless of state, e.g. when the run is cancelled mid-backoff.
func (m *Machine) Abort(err error) {
	if m.state == StateExhausted {
		return
	}
	m.fail(err)
}

func (m *Machine) fail(err error) {
	m.state = StateFailed
	m.err = err
	m.delay = 0
}
