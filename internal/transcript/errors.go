package transcript

import "errors"

var (
	// ErrNotReady means the transcript is still being generated remotely.
	// The recording stays pending; a later run tries again.
	ErrNotReady = errors.New("transcript not ready yet")

	// ErrUnavailable means the target will never produce a transcript for
	// this recording. Terminal without --force.
	ErrUnavailable = errors.New("transcript unavailable")

	// ErrSessionExpired means the stored credentials no longer authenticate
	ErrSessionExpired = errors.New("session expired, re-authentication required")
)
