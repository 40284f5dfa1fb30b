// Package baton provides the handoff signals that pass control between the
// stages of an optimization cycle.
//
// A Signal is a one-shot, resettable binary gate. Arm makes it ready and Wait
// blocks until it is ready, then consumes the readiness so the next Wait
// blocks again. Each signal is backed by a channel with a buffer of one, which
// gives the arming goroutine a happens-before edge to the waiting goroutine:
// everything written before Arm is visible after Wait returns.
//
// Three signals form the cycle ring:
//
//	EnactmentReady -> GoalReady -> StrategyReady -> (EnactmentReady, never re-armed)
//
// In a correctly running pipeline exactly one signal is armed at any moment.
package baton

import "context"

// Signal is a single handoff gate between two stages.
type Signal struct {
	name string
	ch   chan struct{}
}

// New creates a disarmed signal. The name is used in logs only.
func New(name string) *Signal {
	return &Signal{
		name: name,
		ch:   make(chan struct{}, 1),
	}
}

// Name returns the signal's name.
func (s *Signal) Name() string {
	return s.name
}

// Arm makes the signal ready. Arming an already armed signal is a no-op.
func (s *Signal) Arm() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the signal is armed, then disarms it.
// Returns ctx.Err() if the context is cancelled first; the signal is left
// untouched in that case.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Armed reports whether the signal is currently armed.
// Only meaningful when no stage is concurrently arming or waiting.
func (s *Signal) Armed() bool {
	return len(s.ch) == 1
}

// Ring holds the three signals of one optimization cycle.
type Ring struct {
	// EnactmentReady hands control from the enactment stage to the goal stage.
	// It is pre-armed once at startup and never armed again.
	EnactmentReady *Signal

	// GoalReady hands control from the goal stage to the strategy stage.
	GoalReady *Signal

	// StrategyReady hands control from the strategy stage to the enactment stage.
	StrategyReady *Signal
}

// NewRing creates a ring with all three signals disarmed.
func NewRing() *Ring {
	return &Ring{
		EnactmentReady: New("enactment_ready"),
		GoalReady:      New("goal_ready"),
		StrategyReady:  New("strategy_ready"),
	}
}

// ArmedCount returns how many signals in the ring are armed.
// Signals are read against ring order, so a handoff racing with the count is
// never seen on both sides.
func (r *Ring) ArmedCount() int {
	n := 0
	for _, s := range []*Signal{r.StrategyReady, r.GoalReady, r.EnactmentReady} {
		if s.Armed() {
			n++
		}
	}
	return n
}
