package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker(t *testing.T) {
	t.Run("walks the cycle in order", func(t *testing.T) {
		tr := NewTracker()
		assert.Equal(t, StateWaitGoal, tr.Current())

		for _, s := range []State{StateGoalRunning, StateWaitStrategy, StateStrategyRunning, StateWaitEnact, StateTerminated} {
			require.NoError(t, tr.Transition(s))
			assert.Equal(t, s, tr.Current())
		}
		assert.Len(t, tr.History(), 6)
	})

	t.Run("rejects skipped states", func(t *testing.T) {
		tr := NewTracker()
		err := tr.Transition(StateStrategyRunning)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "WAIT_GOAL -> STRATEGY_RUNNING")
		assert.Equal(t, StateWaitGoal, tr.Current())
	})

	t.Run("rejects going back", func(t *testing.T) {
		tr := NewTracker()
		require.NoError(t, tr.Transition(StateGoalRunning))
		assert.ErrorIs(t, tr.Transition(StateWaitGoal), ErrInvalidTransition)
	})

	t.Run("terminated is absorbing", func(t *testing.T) {
		tr := NewTracker()
		for _, s := range []State{StateGoalRunning, StateWaitStrategy, StateStrategyRunning, StateWaitEnact, StateTerminated} {
			require.NoError(t, tr.Transition(s))
		}
		for _, s := range []State{StateWaitGoal, StateGoalRunning, StateTerminated} {
			assert.ErrorIs(t, tr.Transition(s), ErrInvalidTransition)
		}
		assert.Equal(t, StateTerminated, tr.Current())
	})

	t.Run("history is a copy", func(t *testing.T) {
		tr := NewTracker()
		h := tr.History()
		h[0] = StateTerminated
		assert.Equal(t, StateWaitGoal, tr.History()[0])
	})
}
