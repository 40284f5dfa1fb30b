package cycle

import (
	"errors"
	"fmt"
	"sync"
)

// State is a position in the single optimization cycle.
type State string

const (
	StateWaitGoal        State = "WAIT_GOAL"
	StateGoalRunning     State = "GOAL_RUNNING"
	StateWaitStrategy    State = "WAIT_STRATEGY"
	StateStrategyRunning State = "STRATEGY_RUNNING"
	StateWaitEnact       State = "WAIT_ENACT"
	StateTerminated      State = "TERMINATED"
)

// ErrInvalidTransition is returned when a stage tries to move the cycle out of order.
var ErrInvalidTransition = errors.New("invalid state transition")

// next lists the single legal successor of each state. TERMINATED has none.
var next = map[State]State{
	StateWaitGoal:        StateGoalRunning,
	StateGoalRunning:     StateWaitStrategy,
	StateWaitStrategy:    StateStrategyRunning,
	StateStrategyRunning: StateWaitEnact,
	StateWaitEnact:       StateTerminated,
}

// Tracker records the cycle's state and rejects out-of-order transitions.
// Stages run one at a time, but the engine reads the state from its own
// goroutine, hence the mutex.
type Tracker struct {
	mu      sync.Mutex
	current State
	history []State
}

// NewTracker returns a tracker in WAIT_GOAL.
func NewTracker() *Tracker {
	return &Tracker{
		current: StateWaitGoal,
		history: []State{StateWaitGoal},
	}
}

// Transition moves to the given state if it is the legal successor of the current one.
func (t *Tracker) Transition(to State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	want, ok := next[t.current]
	if !ok || want != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.current, to)
	}

	t.current = to
	t.history = append(t.history, to)
	return nil
}

// Current returns the current state.
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// History returns every state visited so far, starting with WAIT_GOAL.
func (t *Tracker) History() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]State(nil), t.history...)
}
