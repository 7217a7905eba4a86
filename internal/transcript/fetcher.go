// Package transcript fetches and renders auto-generated transcripts for
// uploaded recordings.
package transcript

import "context"

// Segment is one timed caption line
type Segment struct {
	Start float64 // seconds from the beginning
	End   float64
	Text  string
}

// Fetcher retrieves the transcript for a remote recording. Implementations
// classify failures with the sentinel errors below so the caller can decide
// which post-status the recording moves to.
type Fetcher interface {
	Fetch(ctx context.Context, remoteID string) ([]Segment, error)
}
