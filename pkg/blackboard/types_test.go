package blackboard

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestArtefactValidate(t *testing.T) {
	valid := func() *Artefact {
		return newArtefact(uuid.New().String(), 1, KindGoal, "goal")
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(a *Artefact)
		wantErr string
	}{
		{"bad ID", func(a *Artefact) { a.ID = "not-a-uuid" }, "invalid artefact ID"},
		{"bad cycle ID", func(a *Artefact) { a.CycleID = "" }, "invalid cycle ID"},
		{"zero sequence", func(a *Artefact) { a.Sequence = 0 }, "invalid sequence"},
		{"unknown kind", func(a *Artefact) { a.Kind = "Standard" }, "unknown kind"},
		{"empty stage", func(a *Artefact) { a.Stage = "" }, "stage cannot be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := valid()
			tt.mutate(a)
			assert.ErrorContains(t, a.Validate(), tt.wantErr)
		})
	}

	t.Run("empty payload is allowed", func(t *testing.T) {
		a := valid()
		a.Payload = ""
		assert.NoError(t, a.Validate())
	})
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "kiln:line-3:artefact:a1", ArtefactKey("line-3", "a1"))
	assert.Equal(t, "kiln:line-3:cycle:c1", CycleKey("line-3", "c1"))
	assert.Equal(t, "kiln:line-3:artefact_events", ArtefactEventsChannel("line-3"))
}

func TestHashToArtefact(t *testing.T) {
	_, err := HashToArtefact(map[string]string{"sequence": "x", "created_at_ms": "1"})
	assert.ErrorContains(t, err, "invalid sequence field")

	_, err = HashToArtefact(map[string]string{"sequence": "1", "created_at_ms": ""})
	assert.ErrorContains(t, err, "invalid created_at_ms field")
}
