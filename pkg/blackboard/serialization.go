package blackboard

import (
	"fmt"
	"strconv"
)

// ArtefactToHash converts an Artefact to the field map stored in Redis.
func ArtefactToHash(a *Artefact) map[string]interface{} {
	return map[string]interface{}{
		"id":            a.ID,
		"cycle_id":      a.CycleID,
		"sequence":      a.Sequence,
		"kind":          string(a.Kind),
		"stage":         a.Stage,
		"payload":       a.Payload,
		"created_at_ms": a.CreatedAtMs,
	}
}

// HashToArtefact converts a Redis hash back to an Artefact.
func HashToArtefact(hash map[string]string) (*Artefact, error) {
	sequence, err := strconv.Atoi(hash["sequence"])
	if err != nil {
		return nil, fmt.Errorf("invalid sequence field: %w", err)
	}

	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at_ms field: %w", err)
	}

	return &Artefact{
		ID:          hash["id"],
		CycleID:     hash["cycle_id"],
		Sequence:    sequence,
		Kind:        Kind(hash["kind"]),
		Stage:       hash["stage"],
		Payload:     hash["payload"],
		CreatedAtMs: createdAtMs,
	}, nil
}
