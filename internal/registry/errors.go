package registry

import "errors"

// Sentinel errors for registry operations
var (
	// ErrCorruptStore indicates the registry file is unreadable or malformed.
	// Fatal: there is no safe partial state to continue from and rows are
	// never silently dropped.
	ErrCorruptStore = errors.New("registry: corrupt store")

	// ErrLockTimeout indicates the registry lock was not acquired within the
	// configured bound. Retryable by the caller at a later time.
	ErrLockTimeout = errors.New("registry: lock acquisition timeout")

	// ErrWrite indicates the registry file could not be written
	ErrWrite = errors.New("registry: write failed")
)
