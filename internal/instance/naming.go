// Package instance validates the names that partition a shared Redis
// blackboard between kiln deployments.
package instance

import (
	"fmt"
	"regexp"
)

const (
	// DefaultName is used when no instance is configured.
	DefaultName = "default"

	// MaxNameLength is the maximum length for an instance name (DNS-compatible)
	MaxNameLength = 63
)

// NamePattern matches lowercase alphanumeric names with inner hyphens.
// Names end up inside Redis keys, so separators such as ':' are rejected.
var NamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateName checks if an instance name is valid according to DNS naming rules.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxNameLength)
	}

	if !NamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
