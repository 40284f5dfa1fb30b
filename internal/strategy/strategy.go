// Package strategy parses the adjustment recommendations returned by the
// text-generation service.
//
// The service is asked for a JSON object with time, temperature and pressure
// adjustments followed by a short explanation. Replies are not always that
// tidy, so Parse tolerates Markdown code fences, prose around the object, and
// one level of nesting (e.g. {"recommendations": {...}}). The verbatim reply
// is always kept in Record.Raw; it is what later prompts re-embed.
package strategy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNoJSON is returned when the reply contains no JSON object.
	ErrNoJSON = errors.New("no JSON object found in strategy")

	// ErrMissingAdjustments is returned when the JSON object names none of
	// time, temperature or pressure.
	ErrMissingAdjustments = errors.New("strategy names no time, temperature or pressure adjustment")
)

// Adjustment is the structured part of a strategy.
type Adjustment struct {
	Time        string `json:"time,omitempty"`
	Temperature string `json:"temperature,omitempty"`
	Pressure    string `json:"pressure,omitempty"`

	// Extra holds any other fields the service returned, verbatim.
	Extra map[string]any `json:"extra,omitempty"`
}

// Record is one entry of the previous-strategies list.
type Record struct {
	// Raw is the service reply exactly as received (trimmed).
	Raw string `json:"raw"`

	// Adjustment is nil when the reply failed to parse.
	Adjustment *Adjustment `json:"adjustment,omitempty"`

	// Explanation is the prose accompanying the adjustment, if any.
	Explanation string `json:"explanation,omitempty"`

	// ParseError describes why Adjustment is nil.
	ParseError string `json:"parse_error,omitempty"`
}

// Valid reports whether the record carries a parsed adjustment.
func (r Record) Valid() bool {
	return r.Adjustment != nil
}

// Parse builds a Record from a service reply. The returned error is also
// recorded in Record.ParseError; callers decide whether an invalid record is
// still worth keeping.
func Parse(raw string) (Record, error) {
	raw = strings.TrimSpace(raw)
	record := Record{Raw: raw}

	object, before, after, err := extractObject(stripFences(raw))
	if err != nil {
		record.ParseError = err.Error()
		record.Explanation = raw
		return record, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(object), &fields); err != nil {
		err = fmt.Errorf("invalid strategy JSON: %w", err)
		record.ParseError = err.Error()
		record.Explanation = raw
		return record, err
	}

	explanation := strings.TrimSpace(strings.TrimSpace(before) + "\n" + strings.TrimSpace(after))
	if v, ok := fields["explanation"].(string); ok && v != "" {
		explanation = strings.TrimSpace(v)
		delete(fields, "explanation")
	}
	record.Explanation = explanation

	adj, ok := adjustmentFrom(fields)
	if !ok {
		// Look one level down for a nested adjustment object
		for _, key := range sortedKeys(fields) {
			nested, isMap := fields[key].(map[string]any)
			if !isMap {
				continue
			}
			if adj, ok = adjustmentFrom(nested); ok {
				break
			}
		}
	}
	if !ok {
		record.ParseError = ErrMissingAdjustments.Error()
		return record, ErrMissingAdjustments
	}

	record.Adjustment = adj
	return record, nil
}

// adjustmentFrom lifts time/temperature/pressure out of fields.
// Reports false when none of the three is present.
func adjustmentFrom(fields map[string]any) (*Adjustment, bool) {
	adj := &Adjustment{}
	found := false
	for key, value := range fields {
		switch strings.ToLower(key) {
		case "time":
			adj.Time = stringify(value)
			found = true
		case "temperature":
			adj.Temperature = stringify(value)
			found = true
		case "pressure":
			adj.Pressure = stringify(value)
			found = true
		default:
			if adj.Extra == nil {
				adj.Extra = make(map[string]any)
			}
			adj.Extra[key] = value
		}
	}
	return adj, found
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripFences removes Markdown code fence lines (``` or ```json).
func stripFences(s string) string {
	if !strings.Contains(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

// extractObject returns the first balanced {...} in s along with the text
// before and after it. Braces inside JSON strings are ignored.
func extractObject(s string) (object, before, after string, err error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", "", "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], s[:start], s[i+1:], nil
			}
		}
	}
	return "", "", "", fmt.Errorf("%w: unbalanced braces", ErrNoJSON)
}
