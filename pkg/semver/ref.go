// Package semver parses operation references and checks plugin group versions.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:ref"

// OperationRef holds the parsed components of an operation reference string.
type OperationRef struct {
	// Name is the composed operation name (e.g., "collections.take")
	Name string
	// Group is the plugin group (e.g., "collections")
	Group string
	// Operation is the operation within the group (e.g., "take")
	Operation string
	// Range is the group version constraint; empty means any version
	Range string
	// Raw input string
	Raw string
}

var (
	groupNameRegex     = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
	operationNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)
	majorOnlyRegex     = regexp.MustCompile(`^\d+$`)
)

// ParseOperationRef parses an operation reference.
//
// Supported formats:
//   - collections.take            (any version)
//   - collections.take@1          (major only)
//   - collections.take@1.0.0      (exact version)
//   - collections.take@^1.2.0     (caret range)
//   - collections.take@>=1.0.0    (comparison range)
func ParseOperationRef(input string) (*OperationRef, error) {
	raw := strings.TrimSpace(input)

	namePart, rangeStr, hasRange := strings.Cut(raw, "@")
	if hasRange && strings.TrimSpace(rangeStr) == "" {
		return nil, fmt.Errorf("%s - empty version range: %s", logPrefix, raw)
	}

	group, op, ok := strings.Cut(namePart, ".")
	if !ok {
		return nil, fmt.Errorf("%s - invalid operation reference, missing group: %s", logPrefix, raw)
	}
	if !ValidateGroupName(group) {
		return nil, fmt.Errorf("%s - invalid group name %q in %s", logPrefix, group, raw)
	}
	if !ValidateOperationName(op) {
		return nil, fmt.Errorf("%s - invalid operation name %q in %s", logPrefix, op, raw)
	}

	return &OperationRef{
		Name:      namePart,
		Group:     group,
		Operation: op,
		Range:     strings.TrimSpace(rangeStr),
		Raw:       raw,
	}, nil
}

// BuildOperationName composes the registry name of an operation.
func BuildOperationName(group, op string) string {
	return group + "." + op
}

// ValidateGroupName validates a group name (lowercase, alphanumeric, hyphens).
func ValidateGroupName(group string) bool {
	return groupNameRegex.MatchString(group)
}

// ValidateOperationName validates an operation name (letters, digits, hyphens, underscores; no dots).
func ValidateOperationName(name string) bool {
	return operationNameRegex.MatchString(name)
}
