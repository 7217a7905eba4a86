package transcript

import (
	"fmt"
	"strings"
)

// FormatTimestamp renders seconds as [MM:SS], or [H:MM:SS] past the hour
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("[%d:%02d:%02d]", h, m, s)
	}
	return fmt.Sprintf("[%02d:%02d]", m, s)
}

// FormatMarkdown renders a transcript document: title heading, source link,
// then one timestamped line per segment.
func FormatMarkdown(title, url string, segments []Segment) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	if url != "" {
		fmt.Fprintf(&b, "Source: %s\n\n", url)
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s %s\n", FormatTimestamp(seg.Start), text)
	}

	return b.String()
}
