package transcript

import (
	"fmt"
	"strings"
)

// ParseSRT parses SubRip subtitle content into segments. The parser is
// lenient: blocks with unparseable timestamps are skipped, sequence numbers
// are ignored, and multi-line cues are joined with a space.
func ParseSRT(content string) []Segment {
	var segments []Segment

	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) < 2 {
			continue
		}

		// the timing line is the first one containing the arrow; anything
		// before it is the sequence number
		timeIdx := -1
		for i, line := range lines {
			if strings.Contains(line, "-->") {
				timeIdx = i
				break
			}
		}
		if timeIdx < 0 || timeIdx == len(lines)-1 {
			continue
		}

		start, end, err := parseTimeRange(lines[timeIdx])
		if err != nil {
			continue
		}

		text := strings.TrimSpace(strings.Join(lines[timeIdx+1:], " "))
		if text == "" {
			continue
		}

		segments = append(segments, Segment{Start: start, End: end, Text: text})
	}

	return segments
}

func parseTimeRange(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("no time range in %q", line)
	}
	start, err := parseTimestamp(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	// position cues may trail the end timestamp
	endField := strings.Fields(strings.TrimSpace(parts[1]))
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("missing end timestamp in %q", line)
	}
	end, err := parseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseTimestamp reads HH:MM:SS,mmm (SRT) or HH:MM:SS.mmm (WebVTT)
func parseTimestamp(ts string) (float64, error) {
	ts = strings.ReplaceAll(ts, ",", ".")
	var h, m int
	var s float64
	if _, err := fmt.Sscanf(ts, "%d:%d:%f", &h, &m, &s); err != nil {
		return 0, fmt.Errorf("bad timestamp %q: %w", ts, err)
	}
	return float64(h)*3600 + float64(m)*60 + s, nil
}
