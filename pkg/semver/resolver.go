package semver

import (
	"fmt"
	"strconv"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// ValidateVersion checks that a declared handler version parses as SemVer.
func ValidateVersion(version string) error {
	if _, err := masterminds.NewVersion(version); err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", resolverLogPrefix, version, err)
	}
	return nil
}

// ValidateRange checks that a range parses as a SemVer constraint.
func ValidateRange(rangeStr string) error {
	if IsMajorOnly(rangeStr) {
		return nil
	}
	if _, err := masterminds.NewConstraint(rangeStr); err != nil {
		return fmt.Errorf("%s - invalid range %q: %w", resolverLogPrefix, rangeStr, err)
	}
	return nil
}

// Satisfies reports whether version satisfies rangeStr.
// An empty range accepts anything, including an undeclared version.
// A non-empty range never matches an undeclared version.
func Satisfies(version, rangeStr string) (bool, error) {
	if rangeStr == "" {
		return true, nil
	}
	if version == "" {
		return false, nil
	}

	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false, fmt.Errorf("%s - invalid version %q: %w", resolverLogPrefix, version, err)
	}

	if IsMajorOnly(rangeStr) {
		major, _ := strconv.ParseUint(rangeStr, 10, 64)
		return sv.Major() == major, nil
	}

	constraint, err := masterminds.NewConstraint(rangeStr)
	if err != nil {
		return false, fmt.Errorf("%s - invalid range %q: %w", resolverLogPrefix, rangeStr, err)
	}
	return constraint.Check(sv), nil
}

// SatisfiesRange is Satisfies with parse errors treated as a mismatch.
func SatisfiesRange(version, rangeStr string) bool {
	ok, err := Satisfies(version, rangeStr)
	return err == nil && ok
}
