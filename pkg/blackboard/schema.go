package blackboard

import "fmt"

// Redis key pattern helpers
//
// Key pattern: kiln:{instance_name}:{entity}:{id}
// Channel pattern: kiln:{instance_name}:{event_type}_events

// ArtefactKey returns the Redis key for an artefact hash.
// Pattern: kiln:{instance_name}:artefact:{artefact_id}
func ArtefactKey(instanceName, artefactID string) string {
	return fmt.Sprintf("kiln:%s:artefact:%s", instanceName, artefactID)
}

// CycleKey returns the Redis key for the ZSET indexing a cycle's artefacts by sequence.
// Pattern: kiln:{instance_name}:cycle:{cycle_id}
func CycleKey(instanceName, cycleID string) string {
	return fmt.Sprintf("kiln:%s:cycle:%s", instanceName, cycleID)
}

// ArtefactEventsChannel returns the Pub/Sub channel name for artefact events.
// Pattern: kiln:{instance_name}:artefact_events
func ArtefactEventsChannel(instanceName string) string {
	return fmt.Sprintf("kiln:%s:artefact_events", instanceName)
}
