// Package scan discovers recording files under the vault directory.
package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/rec-vault/internal/util"
)

// VideoExtensions are the default supported recording file extensions
var VideoExtensions = []string{
	".mp4",
	".mkv",
	".mov",
	".webm",
	".avi",
}

// Recording is one discovered file, before registration
type Recording struct {
	RelPath  string // slash-separated, relative to the scan root
	AbsPath  string
	Playlist string // derived from the directory the file sits in
	Size     int64
	ModTime  time.Time
}

// Scanner discovers recordings in a directory tree
type Scanner struct {
	extensions map[string]bool
	excludes   map[string]bool
	maxDepth   int
}

// Config holds scanner configuration
type Config struct {
	AdditionalExts []string
	ExcludeDirs    []string
	MaxDepth       int
}

// New creates a new Scanner. MaxDepth 0 means unlimited; depth 1 scans only
// the root directory itself.
func New(cfg *Config) *Scanner {
	extMap := make(map[string]bool)
	for _, ext := range VideoExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	excludes := map[string]bool{
		"transcripts": true, // never re-upload our own output
	}
	if cfg != nil {
		for _, ext := range cfg.AdditionalExts {
			extMap[strings.ToLower(ext)] = true
		}
		for _, dir := range cfg.ExcludeDirs {
			excludes[dir] = true
		}
	}
	maxDepth := 0
	if cfg != nil {
		maxDepth = cfg.MaxDepth
	}

	return &Scanner{
		extensions: extMap,
		excludes:   excludes,
		maxDepth:   maxDepth,
	}
}

// Scan walks root and returns discovered recordings sorted by modification
// time, oldest first, so interrupted runs resume where they left off.
// Hidden entries and symlinks are skipped; unreadable subtrees are logged and
// skipped rather than aborting the walk.
func (s *Scanner) Scan(ctx context.Context, root string) ([]Recording, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve scan root: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("scan root %s is not a directory", root)
	}

	util.DebugLog("Scanning %s", root)

	var found []Recording
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			util.WarnLog("Error accessing path %s: %v", path, err)
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if rel == "." {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || s.excludes[name] {
				return fs.SkipDir
			}
			if s.maxDepth > 0 && depthOf(rel) >= s.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			util.DebugLog("Skipping symlink %s", path)
			return nil
		}
		if !s.extensions[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			util.WarnLog("Failed to stat %s: %v", path, err)
			return nil
		}

		found = append(found, Recording{
			RelPath:  filepath.ToSlash(rel),
			AbsPath:  path,
			Playlist: playlistFor(root, rel),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk error: %w", walkErr)
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].ModTime.Equal(found[j].ModTime) {
			return found[i].RelPath < found[j].RelPath
		}
		return found[i].ModTime.Before(found[j].ModTime)
	})

	util.DebugLog("Scan found %d recordings", len(found))
	return found, nil
}

// depthOf counts directory levels below the root for a relative path
func depthOf(rel string) int {
	return strings.Count(filepath.ToSlash(rel), "/") + 1
}

// playlistFor derives the playlist name: files directly under the root belong
// to a playlist named after the root directory, files in subdirectories to one
// named after their immediate parent.
func playlistFor(root, rel string) string {
	dir := filepath.Dir(rel)
	if dir == "." {
		return filepath.Base(root)
	}
	return filepath.Base(dir)
}
