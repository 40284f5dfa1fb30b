// Package filter selects which mirrored artefacts are shown.
package filter

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dyluth/kiln/pkg/blackboard"
)

// Criteria defines filtering criteria for artefacts.
// All filters are ANDed together; zero values match everything.
type Criteria struct {
	SinceTimestampMs int64  // Unix milliseconds, 0 = no lower bound
	UntilTimestampMs int64  // Unix milliseconds, 0 = no upper bound
	KindGlob         string // Glob over the artefact kind, case-insensitive
	Stage            string // Exact stage name
}

// Matches returns true if the artefact satisfies every criterion.
// A nil Criteria matches everything.
func (c *Criteria) Matches(a *blackboard.Artefact) bool {
	if c == nil {
		return true
	}

	if c.SinceTimestampMs > 0 && a.CreatedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && a.CreatedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.KindGlob != "" {
		matched, err := filepath.Match(strings.ToLower(c.KindGlob), strings.ToLower(string(a.Kind)))
		if err != nil || !matched {
			return false
		}
	}

	if c.Stage != "" && a.Stage != c.Stage {
		return false
	}

	return true
}

// HasFilters returns true if any criterion is set.
func (c *Criteria) HasFilters() bool {
	return c != nil && (c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.KindGlob != "" ||
		c.Stage != "")
}

// ParseTime turns a duration ("90s", "1h30m", meaning that long before now)
// or an RFC3339 timestamp into Unix milliseconds.
func ParseTime(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use a duration like '1h30m' or RFC3339 like '2026-10-19T13:00:00Z')", spec)
}

// ParseRange parses --since and --until. Empty values leave that end open.
func ParseRange(since, until string, now time.Time) (sinceMs, untilMs int64, err error) {
	if since != "" {
		if sinceMs, err = ParseTime(since, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if untilMs, err = ParseTime(until, now); err != nil {
			return 0, 0, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if sinceMs > 0 && untilMs > 0 && sinceMs >= untilMs {
		return 0, 0, fmt.Errorf("--since must be before --until")
	}

	return sinceMs, untilMs, nil
}
