package transcript

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/franz/rec-vault/internal/util"
)

// YtDlpFetcher retrieves auto-generated subtitles through yt-dlp using the
// account's cookie jar for authentication.
type YtDlpFetcher struct {
	Binary  string
	Cookies string
	Lang    string
	URLBase string // remote id is appended to form the watch URL
}

// NewYtDlpFetcher creates a fetcher; binary defaults to yt-dlp on PATH
func NewYtDlpFetcher(cookies, lang, urlBase string) *YtDlpFetcher {
	if lang == "" {
		lang = "en"
	}
	return &YtDlpFetcher{
		Binary:  "yt-dlp",
		Cookies: cookies,
		Lang:    lang,
		URLBase: urlBase,
	}
}

// Fetch downloads the subtitle track for a remote recording and parses it.
// Remote failure modes are classified into the package sentinels by stderr
// inspection, since yt-dlp signals them all with exit code 1.
func (f *YtDlpFetcher) Fetch(ctx context.Context, remoteID string) ([]Segment, error) {
	if _, err := exec.LookPath(f.Binary); err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", f.Binary, util.ErrNotFound)
	}

	tmpDir, err := os.MkdirTemp("", "rvt-subs-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outTemplate := filepath.Join(tmpDir, "sub.%(ext)s")
	args := []string{
		"--skip-download",
		"--write-auto-subs",
		"--sub-langs", f.Lang,
		"--convert-subs", "srt",
		"--output", outTemplate,
	}
	if f.Cookies != "" {
		args = append(args, "--cookies", f.Cookies)
	}
	args = append(args, f.URLBase+remoteID)

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, classifyFetchError(stderr.String(), err)
	}

	matches, err := filepath.Glob(filepath.Join(tmpDir, "sub*.srt"))
	if err != nil || len(matches) == 0 {
		// exit 0 with no subtitle file means the track does not exist yet
		return nil, ErrNotReady
	}

	content, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read subtitle file: %w", err)
	}

	segments := ParseSRT(string(content))
	if len(segments) == 0 {
		return nil, ErrNotReady
	}

	util.DebugLog("Fetched %d transcript segments for %s", len(segments), remoteID)
	return segments, nil
}

// classifyFetchError maps yt-dlp stderr text onto the package sentinels
func classifyFetchError(stderr string, err error) error {
	lower := strings.ToLower(stderr)

	switch {
	case strings.Contains(lower, "no subtitles"),
		strings.Contains(lower, "no captions"),
		strings.Contains(lower, "subtitles are disabled"):
		return fmt.Errorf("%w: %s", ErrUnavailable, firstLine(stderr))
	case strings.Contains(lower, "not available"),
		strings.Contains(lower, "still processing"),
		strings.Contains(lower, "premieres in"):
		return fmt.Errorf("%w: %s", ErrNotReady, firstLine(stderr))
	case strings.Contains(lower, "cookie"),
		strings.Contains(lower, "authentication"),
		strings.Contains(lower, "sign in"):
		return fmt.Errorf("%w: %s", ErrSessionExpired, firstLine(stderr))
	}

	return fmt.Errorf("transcript fetch failed: %s: %w", firstLine(stderr), err)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
