package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// SafeResolve resolves an untrusted relative path against a base directory and
// rejects anything that escapes it. Registry rows are user-editable, so every
// path read back from the registry goes through this before it is touched.
func SafeResolve(base, untrusted string) (string, error) {
	if filepath.IsAbs(untrusted) {
		return "", fmt.Errorf("absolute path %q not allowed: %w", untrusted, ErrPathEscape)
	}

	baseAbs, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base %q: %w", base, err)
	}

	resolved := filepath.Clean(filepath.Join(baseAbs, untrusted))

	rel, err := filepath.Rel(baseAbs, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %q: %w", untrusted, baseAbs, ErrPathEscape)
	}

	return resolved, nil
}
