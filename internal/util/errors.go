package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrPathEscape indicates a registry-derived path resolved outside the vault directory
	ErrPathEscape = errors.New("path escapes base directory")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")
)
