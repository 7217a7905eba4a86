package registry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// On-disk format: a markdown table, one row per recording, preceded by a
// version comment. Fixed columns first, then one column per target account.
// Rows are written sorted by path and columns in a stable order so that
// version-control diffs stay minimal.

const (
	registryVersion = 3
	versionComment  = "<!-- registry_version: 3 -->"
	registryHeading = "# Recordings Registry"

	timeLayout = time.RFC3339
	emptyCell  = "—"
)

var fixedColumns = []string{"File", "Title", "Playlist", "Transcript", "Created", "Updated"}

// v1 stored transcript state as an emoji checkbox
var v1TranscriptMap = map[string]PostStatus{
	"✅": PostDone,
	"❌": PostPending,
}

// formatTable renders the full registry. Target columns are the configured
// targets in order, followed by any extra target names present in records
// (a column is never dropped just because an account left the config).
func formatTable(records map[string]Record, targets []string) string {
	columns := targetColumns(records, targets)

	header := append(append([]string{}, fixedColumns...), columns...)

	var b strings.Builder
	b.WriteString(registryHeading + "\n\n")
	b.WriteString(versionComment + "\n\n")
	b.WriteString("| " + strings.Join(header, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(header)) + "\n")

	paths := make([]string, 0, len(records))
	for path := range records {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		rec := records[path]
		cells := []string{
			rec.Path,
			sanitizeCell(rec.Title),
			sanitizeCell(rec.Playlist),
			string(rec.PostStatus),
			rec.CreatedAt.UTC().Format(timeLayout),
			rec.UpdatedAt.UTC().Format(timeLayout),
		}
		for _, name := range columns {
			cells = append(cells, marshalTarget(rec.Targets[name]))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}

	return b.String()
}

// targetColumns returns configured targets in order plus any extras found in
// records, sorted, appended at the end.
func targetColumns(records map[string]Record, targets []string) []string {
	columns := append([]string{}, targets...)
	seen := make(map[string]bool, len(targets))
	for _, name := range targets {
		seen[name] = true
	}

	var extras []string
	for _, rec := range records {
		for name := range rec.Targets {
			if !seen[name] {
				seen[name] = true
				extras = append(extras, name)
			}
		}
	}
	sort.Strings(extras)
	return append(columns, extras...)
}

// parseTable parses registry content into records keyed by path. Malformed
// input fails with ErrCorruptStore rather than dropping rows.
func parseTable(content string) (map[string]Record, error) {
	records := make(map[string]Record)

	lines := strings.Split(strings.TrimSpace(content), "\n")

	headerIdx := -1
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") && strings.Contains(trimmed, "File") {
			headerIdx = i
			break
		}
	}
	if headerIdx == -1 || headerIdx+1 >= len(lines) {
		// Heading only, no table yet
		return records, nil
	}

	header := splitRow(lines[headerIdx])
	if len(header) < 4 {
		return nil, fmt.Errorf("invalid header %q: %w", lines[headerIdx], ErrCorruptStore)
	}

	legacy := !contains(header, "Title")
	targetNames := targetNamesFromHeader(header, legacy)

	for _, line := range lines[headerIdx+2:] {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "<!--") {
			continue
		}

		cells := splitRow(line)
		var rec Record
		var err error
		if legacy {
			rec, err = parseLegacyRow(cells, targetNames)
		} else {
			rec, err = parseRow(cells, targetNames)
		}
		if err != nil {
			return nil, fmt.Errorf("row %q: %w", line, err)
		}
		records[rec.Path] = rec
	}

	return records, nil
}

func parseRow(cells []string, targetNames []string) (Record, error) {
	if len(cells) < len(fixedColumns) {
		return Record{}, fmt.Errorf("expected at least %d columns, got %d: %w",
			len(fixedColumns), len(cells), ErrCorruptStore)
	}

	post := PostStatus(cells[3])
	if !ValidPostStatus(post) {
		return Record{}, fmt.Errorf("unknown transcript status %q: %w", cells[3], ErrCorruptStore)
	}

	created, err := time.Parse(timeLayout, cells[4])
	if err != nil {
		return Record{}, fmt.Errorf("invalid created timestamp %q: %w", cells[4], ErrCorruptStore)
	}
	updated, err := time.Parse(timeLayout, cells[5])
	if err != nil {
		return Record{}, fmt.Errorf("invalid updated timestamp %q: %w", cells[5], ErrCorruptStore)
	}

	rec := Record{
		Path:       cells[0],
		Title:      unsanitizeCell(cells[1]),
		Playlist:   unsanitizeCell(cells[2]),
		PostStatus: post,
		CreatedAt:  created,
		UpdatedAt:  updated,
		Targets:    make(map[string]TargetState, len(targetNames)),
	}

	for i, name := range targetNames {
		idx := len(fixedColumns) + i
		cell := emptyCell
		if idx < len(cells) {
			cell = cells[idx]
		}
		ts, err := parseTargetCell(cell)
		if err != nil {
			return Record{}, err
		}
		rec.Targets[name] = ts
	}

	return rec, nil
}

// parseLegacyRow handles the v2 layout: File | Playlist | Uploaded | Transcript
// followed by one remote id (or —) per account. Loading upgrades legacy rows
// in memory; the next write persists them in the current layout.
func parseLegacyRow(cells []string, targetNames []string) (Record, error) {
	if len(cells) < 4 {
		return Record{}, fmt.Errorf("expected at least 4 columns, got %d: %w",
			len(cells), ErrCorruptStore)
	}

	uploaded, err := time.Parse("2006-01-02", cells[2])
	if err != nil {
		return Record{}, fmt.Errorf("invalid date %q: %w", cells[2], ErrCorruptStore)
	}

	post, ok := v1TranscriptMap[cells[3]]
	if !ok {
		post = PostStatus(cells[3])
		if !ValidPostStatus(post) {
			return Record{}, fmt.Errorf("unknown transcript status %q: %w", cells[3], ErrCorruptStore)
		}
	}

	rec := Record{
		Path:       cells[0],
		Playlist:   cells[1],
		PostStatus: post,
		CreatedAt:  uploaded,
		UpdatedAt:  uploaded,
		Targets:    make(map[string]TargetState, len(targetNames)),
	}

	for i, name := range targetNames {
		idx := 4 + i
		cell := emptyCell
		if idx < len(cells) {
			cell = cells[idx]
		}
		if cell == emptyCell || cell == "" {
			rec.Targets[name] = TargetState{Status: TargetPending}
		} else {
			rec.Targets[name] = TargetState{RemoteID: cell, Status: TargetUploaded}
		}
	}

	return rec, nil
}

func targetNamesFromHeader(header []string, legacy bool) []string {
	skip := len(fixedColumns)
	if legacy {
		skip = 4
	}
	if len(header) <= skip {
		return nil
	}
	return header[skip:]
}

// marshalTarget encodes one target cell: "uploaded:<id>", "failed", or "—"
// for pending (no attempt recorded).
func marshalTarget(ts TargetState) string {
	switch ts.Status {
	case TargetUploaded:
		return string(TargetUploaded) + ":" + ts.RemoteID
	case TargetFailed:
		return string(TargetFailed)
	default:
		return emptyCell
	}
}

func parseTargetCell(cell string) (TargetState, error) {
	switch {
	case cell == emptyCell || cell == "" || cell == string(TargetPending):
		return TargetState{Status: TargetPending}, nil
	case cell == string(TargetFailed):
		return TargetState{Status: TargetFailed}, nil
	case strings.HasPrefix(cell, string(TargetUploaded)+":"):
		id := strings.TrimPrefix(cell, string(TargetUploaded)+":")
		if id == "" {
			return TargetState{}, fmt.Errorf("uploaded cell missing remote id: %w", ErrCorruptStore)
		}
		return TargetState{RemoteID: id, Status: TargetUploaded}, nil
	}
	return TargetState{}, fmt.Errorf("unknown target cell %q: %w", cell, ErrCorruptStore)
}

func splitRow(line string) []string {
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cells = append(cells, p)
		}
	}
	return cells
}

// sanitizeCell keeps informational values from breaking the table layout:
// pipes are replaced and empty values get a placeholder so columns never
// collapse. Paths are validated upstream and rejected if they contain a pipe.
func sanitizeCell(s string) string {
	if s == "" {
		return emptyCell
	}
	return strings.ReplaceAll(s, "|", "¦")
}

func unsanitizeCell(s string) string {
	if s == emptyCell {
		return ""
	}
	return s
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
