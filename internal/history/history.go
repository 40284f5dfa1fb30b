// Package history loads the historical production records the goal stage
// grounds its analysis on.
//
// Records are opaque: the loader never validates their fields, it only
// guarantees the file holds a JSON array of objects. Each record keeps its
// original bytes (whitespace compacted), so re-serializing it into a prompt
// preserves key order and number formatting.
package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// DefaultPath is the file read when no path is configured.
const DefaultPath = "historical_data.json"

// Record is a single historical process measurement, held as a compact JSON object.
type Record json.RawMessage

// MarshalJSON returns the record as stored.
func (r Record) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// Fields decodes the record into a map. Numbers are returned as json.Number.
func (r Record) Fields() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(r)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return fields, nil
}

// Load reads path and decodes it as a JSON array of records.
func Load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read historical data: %w", err)
	}

	return Decode(data)
}

// Decode parses a JSON array of objects.
func Decode(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var raw []json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse historical data: %w", err)
	}

	if dec.More() {
		return nil, fmt.Errorf("failed to parse historical data: trailing content after array")
	}
	if raw == nil {
		return nil, nil
	}

	records := make([]Record, 0, len(raw))
	for i, msg := range raw {
		if !bytes.HasPrefix(bytes.TrimSpace(msg), []byte("{")) {
			return nil, fmt.Errorf("failed to parse historical data: record %d is not an object", i)
		}

		var buf bytes.Buffer
		if err := json.Compact(&buf, msg); err != nil {
			return nil, fmt.Errorf("failed to parse historical data: record %d: %w", i, err)
		}
		records = append(records, Record(buf.Bytes()))
	}

	return records, nil
}

// LoadOrEmpty loads path, degrading to an empty slice on any failure.
// Failures are logged as warnings; the pipeline proceeds without historical
// grounding in that case.
func LoadOrEmpty(path string, logger *zap.Logger) []Record {
	records, err := Load(path)
	if err != nil {
		logger.Warn("Error loading historical data", zap.String("path", path), zap.Error(err))
		return []Record{}
	}

	logger.Info("Successfully loaded historical data.", zap.String("path", path), zap.Int("records", len(records)))
	if records == nil {
		// A literal JSON null decodes to nil
		return []Record{}
	}
	return records
}

// Marshal renders records as compact JSON for embedding in a prompt.
func Marshal(records []Record) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := r.MarshalJSON()
		if err != nil {
			return "", fmt.Errorf("failed to marshal historical data: %w", err)
		}
		buf.Write(data)
	}
	buf.WriteByte(']')
	return buf.String(), nil
}
