// Package resolver expands the short cycle IDs shown by `kiln watch` into
// full cycle IDs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/kiln/pkg/blackboard"
)

// MinShortIDLength is the minimum accepted prefix length.
const MinShortIDLength = 6

// maxListed bounds how many candidates an ambiguity message lists.
const maxListed = 10

// CycleScanner finds recorded cycles by ID prefix. *blackboard.Client satisfies it.
type CycleScanner interface {
	ScanCycles(ctx context.Context, prefix string) ([]string, error)
}

// ResolveCycleID returns the single recorded cycle whose ID starts with
// shortID. A full UUID must match a recorded cycle exactly.
func ResolveCycleID(ctx context.Context, scanner CycleScanner, shortID string) (string, error) {
	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := scanner.ScanCycles(ctx, shortID)
	if err != nil {
		return "", fmt.Errorf("failed to search for cycle: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no cycle matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no cycles found matching '%s'", e.ShortID)
}

// AmbiguousError indicates several cycles matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d cycles", e.ShortID, len(e.Matches))
}

// Candidates lists the matching IDs, at most ten, followed by a count of the rest.
func (e *AmbiguousError) Candidates() string {
	var b strings.Builder
	for i, id := range e.Matches {
		if i > 0 {
			b.WriteString("\n")
		}
		if i == maxListed {
			fmt.Fprintf(&b, "...and %d more", len(e.Matches)-maxListed)
			break
		}
		b.WriteString(id)
	}
	return b.String()
}

// IsNotFoundError checks if err is or wraps a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if err is or wraps an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}

var _ CycleScanner = (*blackboard.Client)(nil)
