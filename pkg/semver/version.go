package semver

import (
	"fmt"
	"strconv"

	masterminds "github.com/Masterminds/semver/v3"
)

const versionLogPrefix = "semver:version"

// ValidateVersion checks that version is a strict SemVer string and returns its canonical form.
func ValidateVersion(version string) (string, error) {
	sv, err := masterminds.StrictNewVersion(version)
	if err != nil {
		return "", fmt.Errorf("%s - invalid version %q: %w", versionLogPrefix, version, err)
	}
	return sv.String(), nil
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ValidateRange reports whether rangeStr is a usable version constraint.
func ValidateRange(rangeStr string) error {
	if rangeStr == "" || IsMajorOnly(rangeStr) {
		return nil
	}
	if _, err := masterminds.NewConstraint(rangeStr); err != nil {
		return fmt.Errorf("%s - invalid version range %q: %w", versionLogPrefix, rangeStr, err)
	}
	return nil
}

// SatisfiesRange checks if a version string satisfies a range. An empty range matches everything.
func SatisfiesRange(version, rangeStr string) bool {
	if rangeStr == "" {
		return true
	}
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}

	if IsMajorOnly(rangeStr) {
		major, err := strconv.ParseUint(rangeStr, 10, 64)
		if err != nil {
			return false
		}
		return sv.Major() == major
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false
	}
	return constraint.Check(sv)
}
