package cycle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

const (
	dumpHeader = "===== Shared Context Values ====="
	dumpFooter = "================================="
)

// WriteDump renders a snapshot in the debug format: a header rule, one
// "key: value" entry per field with the value as 4-space indented JSON
// (null when unset, non-ASCII kept as is), and a closing rule.
func WriteDump(w io.Writer, s Snapshot) error {
	var b strings.Builder
	b.WriteString("\n" + dumpHeader + "\n")

	entries := []struct {
		key   string
		value any
	}{
		{"goal", s.Goal},
		{"historical_analysis", s.HistoricalAnalysis},
		{"current_production_data", s.CurrentProductionData},
		{"previous_strategies", s.RawStrategies()},
	}

	for _, e := range entries {
		value, err := indentJSON(e.value)
		if err != nil {
			return fmt.Errorf("failed to render %s: %w", e.key, err)
		}
		fmt.Fprintf(&b, "%s: %s\n", e.key, value)
	}

	b.WriteString(dumpFooter + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func indentJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
