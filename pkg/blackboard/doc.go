// Package blackboard mirrors the outcomes of a kiln cycle into Redis so other
// processes can observe a run as it happens. The mirror is write-only from
// the pipeline's point of view: nothing a later run does depends on it.
//
// All Redis keys and channels are namespaced by instance name so several
// production lines can share one Redis server.
//
// # Layout
//
// Each artefact is a hash at kiln:{instance}:artefact:{id}. Its ID is also
// added to kiln:{instance}:cycle:{cycle_id}, a sorted set scored by the
// artefact's sequence number, so a cycle can be replayed in order. After the
// write the full artefact is published as JSON on
// kiln:{instance}:artefact_events; Pub/Sub delivery is at-most-once.
//
// # Usage
//
//	client, err := blackboard.NewClientFromURL("redis://localhost:6379/0", "line-3")
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	sub, err := client.SubscribeArtefactEvents(ctx)
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	for a := range sub.Events() {
//		fmt.Println(a.Kind, a.Payload)
//		if a.IsTerminal() {
//			break
//		}
//	}
package blackboard
