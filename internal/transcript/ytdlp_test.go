package transcript

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyFetchError(t *testing.T) {
	exitErr := fmt.Errorf("exit status 1")

	tests := []struct {
		name   string
		stderr string
		want   error
	}{
		{"disabled captions", "ERROR: [youtube] abc: Subtitles are disabled for this video", ErrUnavailable},
		{"no subtitles", "WARNING: no subtitles for requested languages", ErrUnavailable},
		{"still processing", "ERROR: This live stream recording is not available yet, still processing", ErrNotReady},
		{"premiere", "ERROR: Premieres in 2 hours", ErrNotReady},
		{"cookies", "ERROR: Sign in to confirm you're not a bot. Use --cookies", ErrSessionExpired},
		{"auth", "ERROR: authentication required", ErrSessionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyFetchError(tt.stderr, exitErr)
			if !errors.Is(got, tt.want) {
				t.Errorf("classifyFetchError(%q) = %v, want %v", tt.stderr, got, tt.want)
			}
		})
	}
}

func TestClassifyFetchErrorUnknownIsTransient(t *testing.T) {
	got := classifyFetchError("ERROR: connection reset by peer", fmt.Errorf("exit status 1"))
	for _, sentinel := range []error{ErrUnavailable, ErrNotReady, ErrSessionExpired} {
		if errors.Is(got, sentinel) {
			t.Errorf("unknown stderr wrongly classified as %v", sentinel)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("  one\ntwo\n"); got != "one" {
		t.Errorf("firstLine = %q", got)
	}
}
