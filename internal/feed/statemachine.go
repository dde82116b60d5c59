package feed

import (
	"errors"
	"sync"
)

// Phase is the state of a single load-more operation.
type Phase string

// Load-more phases.
const (
	PhaseIdle     Phase = "idle"
	PhaseFetching Phase = "fetching"
	PhaseSuccess  Phase = "success"
	PhaseFailure  Phase = "failure"
)

// Sentinel errors for the load-more flow.
var (
	// ErrFetchInProgress is returned when a load-more request arrives while a
	// fetch is already running. Requests are rejected, not queued: the UI is
	// expected to disable its trigger while fetching, and this is the last
	// line of defense against duplicate network calls.
	ErrFetchInProgress = errors.New("feed: load-more fetch already in progress")

	// ErrInvalidTransition is returned for a transition the state machine
	// does not permit from its current phase.
	ErrInvalidTransition = errors.New("feed: invalid load-more state transition")
)

// StateMachine tracks one load-more operation through
// idle → fetching → success|failure → idle.
type StateMachine struct {
	mu    sync.Mutex
	phase Phase
}

// NewStateMachine creates a StateMachine in the idle phase.
func NewStateMachine() *StateMachine {
	return &StateMachine{phase: PhaseIdle}
}

// Phase returns the current phase.
func (m *StateMachine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Begin moves idle → fetching. A request while already fetching returns
// ErrFetchInProgress; any other phase returns ErrInvalidTransition.
func (m *StateMachine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseIdle:
		m.phase = PhaseFetching
		return nil
	case PhaseFetching:
		return ErrFetchInProgress
	default:
		return ErrInvalidTransition
	}
}

// Succeed moves fetching → success.
func (m *StateMachine) Succeed() error {
	return m.finish(PhaseSuccess)
}

// Fail moves fetching → failure.
func (m *StateMachine) Fail() error {
	return m.finish(PhaseFailure)
}

func (m *StateMachine) finish(next Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseFetching {
		return ErrInvalidTransition
	}
	m.phase = next
	return nil
}

// Settle moves success or failure back to idle, permitting the next request.
// Settling from idle is a no-op; settling mid-fetch is invalid.
func (m *StateMachine) Settle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.phase {
	case PhaseSuccess, PhaseFailure:
		m.phase = PhaseIdle
		return nil
	case PhaseIdle:
		return nil
	default:
		return ErrInvalidTransition
	}
}
