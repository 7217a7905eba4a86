// Package meta derives presentation titles for recordings.
package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/dhowden/tag"
	"github.com/franz/rec-vault/internal/util"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const maxTitleLen = 100

var titleCaser = cases.Title(language.English)

// Title returns the display title for a recording: the container's embedded
// title when the file carries one, otherwise a humanized form of the filename.
func Title(absPath string) (string, error) {
	if embedded := EmbeddedTitle(absPath); embedded != "" {
		return sanitizeTitle(embedded)
	}
	return TitleFromFilename(filepath.Base(absPath))
}

// EmbeddedTitle reads the title tag from the media container. Missing or
// unreadable tags return the empty string; the filename fallback covers those.
func EmbeddedTitle(absPath string) string {
	f, err := os.Open(absPath)
	if err != nil {
		return ""
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		util.DebugLog("No readable tags in %s: %v", absPath, err)
		return ""
	}
	return strings.TrimSpace(m.Title())
}

// TitleFromFilename humanizes a bare filename: the extension is dropped,
// dashes and underscores become spaces, and the result is title-cased.
func TitleFromFilename(name string) (string, error) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = strings.NewReplacer("-", " ", "_", " ").Replace(stem)
	stem = titleCaser.String(strings.Join(strings.Fields(stem), " "))
	return sanitizeTitle(stem)
}

// sanitizeTitle enforces the registry's cell constraints: no pipes (they are
// the table delimiter), no control or direction-override runes, and a length
// cap applied at a word boundary.
func sanitizeTitle(title string) (string, error) {
	if strings.Contains(title, "|") {
		return "", fmt.Errorf("title %q contains a pipe character", title)
	}

	title = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || isBidiOverride(r) {
			return -1
		}
		return r
	}, title)
	title = strings.TrimSpace(title)

	if title == "" {
		return "", fmt.Errorf("title is empty after sanitization")
	}
	return truncateAtWord(title, maxTitleLen), nil
}

// isBidiOverride reports direction-formatting runes that can visually reorder
// a filename in terminal output
func isBidiOverride(r rune) bool {
	switch r {
	case '‪', '‫', '‬', '‭', '‮',
		'⁦', '⁧', '⁨', '⁩':
		return true
	}
	return false
}

func truncateAtWord(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	cut := string(runes[:max-3])
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "..."
}
