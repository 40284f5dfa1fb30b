package blackboard

import (
	"fmt"

	"github.com/google/uuid"
)

// Artefact is one recorded stage outcome.
type Artefact struct {
	ID          string `json:"id"`            // UUID of this artefact
	CycleID     string `json:"cycle_id"`      // UUID of the cycle that produced it
	Sequence    int    `json:"sequence"`      // Position within the cycle, starting at 1
	Kind        Kind   `json:"kind"`          // What the payload holds
	Stage       string `json:"stage"`         // Stage that produced it: goal, strategy or enactment
	Payload     string `json:"payload"`       // Goal text, generated text, error message or final snapshot
	CreatedAtMs int64  `json:"created_at_ms"` // Unix milliseconds
}

// Kind classifies what an artefact records.
type Kind string

const (
	// KindGoal records the objective set at cycle start.
	KindGoal Kind = "Goal"

	// KindAnalysis records the historical analysis returned by the generator.
	KindAnalysis Kind = "Analysis"

	// KindStrategy records a generated strategy, verbatim.
	KindStrategy Kind = "Strategy"

	// KindFailure records a generator failure in a stage.
	KindFailure Kind = "Failure"

	// KindTerminal records the end of the cycle; its payload is the final context.
	KindTerminal Kind = "Terminal"
)

// Validate checks if the Artefact has valid field values.
func (a *Artefact) Validate() error {
	if !isValidUUID(a.ID) {
		return fmt.Errorf("invalid artefact ID: not a valid UUID")
	}

	if !isValidUUID(a.CycleID) {
		return fmt.Errorf("invalid cycle ID: not a valid UUID")
	}

	if a.Sequence < 1 {
		return fmt.Errorf("invalid sequence: must be >= 1, got %d", a.Sequence)
	}

	if err := a.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid kind: %w", err)
	}

	if a.Stage == "" {
		return fmt.Errorf("stage cannot be empty")
	}

	return nil
}

// Validate checks if the Kind is a known value.
func (k Kind) Validate() error {
	switch k {
	case KindGoal, KindAnalysis, KindStrategy, KindFailure, KindTerminal:
		return nil
	default:
		return fmt.Errorf("unknown kind: %q", k)
	}
}

// IsTerminal reports whether the artefact closes its cycle.
func (a *Artefact) IsTerminal() bool {
	return a.Kind == KindTerminal
}

func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
