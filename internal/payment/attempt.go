package payment

import (
	"fmt"
	"sync"
)

// State is a payment attempt's position in its lifecycle.
type State string

const (
	StateIdle             State = "idle"
	StateOrderCreating    State = "order_creating"
	StateAwaitingApproval State = "awaiting_approval"
	StateCapturing        State = "capturing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateCancelled        State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var validTransitions = map[State][]State{
	StateIdle:             {StateOrderCreating},
	StateOrderCreating:    {StateAwaitingApproval, StateFailed},
	StateAwaitingApproval: {StateCapturing, StateCancelled},
	StateCapturing:        {StateCompleted, StateFailed},
}

// Attempt tracks one payment attempt in process memory. It dedupes racing
// completion signals (redirect return, webhook, status poll) before they
// reach the store; the persisted uniqueness constraint on finalized orders
// remains the authoritative cross-process guard.
type Attempt struct {
	OrderID string
	UserID  int64

	mu    sync.Mutex
	state State
}

func NewAttempt(userID int64) *Attempt {
	return &Attempt{UserID: userID, state: StateIdle}
}

// State returns the current state.
func (a *Attempt) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Transition moves the attempt to the target state, failing if the move is
// not a legal edge of the lifecycle.
func (a *Attempt) Transition(to State) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, next := range validTransitions[a.state] {
		if next == to {
			a.state = to
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", a.state, to)
}

// BeginCapture attempts the AwaitingApproval -> Capturing edge. Exactly one
// of several racing completion signals wins; the rest observe the state the
// winner left behind.
func (a *Attempt) BeginCapture() (bool, State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateAwaitingApproval {
		a.state = StateCapturing
		return true, a.state
	}
	return false, a.state
}
