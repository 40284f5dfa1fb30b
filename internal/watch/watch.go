// Package watch renders the artefacts a kiln run mirrors to the blackboard,
// either live as they are published or replayed for a finished cycle.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/kiln/internal/filter"
	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/pkg/blackboard"
)

// OutputFormat specifies how artefacts are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one aligned, truncated line per artefact
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL writes complete artefacts as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected default or jsonl)", s)
	}
}

// Stream writes artefacts matching criteria as they are published until ctx
// is done. When untilTerminal is set it returns after the first terminal
// artefact, whether or not that artefact is shown.
func Stream(ctx context.Context, client *blackboard.Client, w io.Writer, format OutputFormat, criteria *filter.Criteria, untilTerminal bool) error {
	sub, err := client.SubscribeArtefactEvents(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	defer sub.Close()

	if format == OutputFormatDefault {
		printer.Step(w, "Watching instance '%s' for artefacts...\n", client.Instance())
	}

	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			printer.Warning(w, "%v\n", err)

		case a, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if criteria.Matches(a) {
				if err := Write(w, a, format); err != nil {
					return err
				}
			}
			if untilTerminal && a.IsTerminal() {
				return nil
			}
		}
	}
}

// Replay writes the artefacts recorded for a cycle that match criteria, in order.
func Replay(ctx context.Context, client *blackboard.Client, cycleID string, w io.Writer, format OutputFormat, criteria *filter.Criteria) error {
	all, err := client.ListCycleArtefacts(ctx, cycleID)
	if err != nil {
		return fmt.Errorf("failed to list cycle artefacts: %w", err)
	}

	artefacts := all[:0]
	for _, a := range all {
		if criteria.Matches(a) {
			artefacts = append(artefacts, a)
		}
	}

	if len(artefacts) == 0 && format == OutputFormatDefault {
		fmt.Fprintf(w, "No artefacts found for cycle '%s'\n", cycleID)
		return nil
	}

	for _, a := range artefacts {
		if err := Write(w, a, format); err != nil {
			return err
		}
	}
	return nil
}

// Write renders one artefact.
func Write(w io.Writer, a *blackboard.Artefact, format OutputFormat) error {
	if format == OutputFormatJSONL {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("failed to marshal artefact to JSON: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}

	_, err := fmt.Fprintf(w, "%-8s %-8s %3d  %-8s %-9s %s\n",
		formatTimestamp(a.CreatedAtMs),
		formatID(a.CycleID),
		a.Sequence,
		a.Kind,
		a.Stage,
		formatPayload(a.Payload),
	)
	return err
}

// formatID truncates an ID to its first 8 characters.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatPayload keeps the first non-empty line, truncated to 60 characters.
func formatPayload(payload string) string {
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > 60 {
			return string(r[:57]) + "..."
		}
		return line
	}
	return "-"
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).Format("15:04:05")
}
