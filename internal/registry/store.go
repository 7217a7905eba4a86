package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Store persists records as a markdown table with atomic, crash-safe writes.
// Every mutation path runs one lock/load/mutate/write cycle; batching many
// logical updates into one UpdateMany call is the difference between O(1) and
// O(n) I/O cycles for n items.
type Store struct {
	path        string
	targets     []string
	lockTimeout time.Duration
	now         func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithLockTimeout bounds lock acquisition. Zero (the default) blocks forever.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a store for the registry file at path. targets is the ordered
// list of configured account names; the first is the primary.
func New(path string, targets []string, opts ...Option) *Store {
	s := &Store{
		path:    path,
		targets: targets,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the registry file path
func (s *Store) Path() string {
	return s.path
}

// Targets returns the configured target names in order
func (s *Store) Targets() []string {
	return append([]string{}, s.targets...)
}

// Primary returns the designated primary target (the first configured one)
func (s *Store) Primary() string {
	if len(s.targets) == 0 {
		return ""
	}
	return s.targets[0]
}

// Load parses the full registry into records keyed by path. A missing file is
// an empty registry, not an error. A malformed file is ErrCorruptStore.
func (s *Store) Load() (map[string]Record, error) {
	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return make(map[string]Record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read registry: %w", err)
	}
	return parseTable(string(content))
}

// WriteAll serializes the full record set and replaces the registry file
// atomically under the lock.
func (s *Store) WriteAll(records map[string]Record) error {
	lock, err := s.lock()
	if err != nil {
		return err
	}
	defer lock.release()

	return s.writeLocked(records)
}

// UpdateMany applies patches in order within one lock/load/write cycle.
// Patches for unseen paths create new records; patches for known paths merge.
// No reader ever observes a state that mixes two UpdateMany calls.
func (s *Store) UpdateMany(patches []Patch) error {
	if len(patches) == 0 {
		return nil
	}

	lock, err := s.lock()
	if err != nil {
		return err
	}
	defer lock.release()

	records, err := s.Load()
	if err != nil {
		return err
	}

	now := s.now().UTC().Truncate(time.Second)
	for _, p := range patches {
		key := NormalizePath(p.Path)
		if strings.Contains(key, "|") {
			return fmt.Errorf("path %q contains a pipe: %w", key, ErrWrite)
		}
		if rec, ok := records[key]; ok {
			records[key] = rec.Apply(p, now)
		} else {
			records[key] = newRecord(p, now)
		}
	}

	return s.writeLocked(records)
}

// Append registers a new record (or merges into an existing row for the same
// path; a duplicate path updates, never duplicates).
func (s *Store) Append(rec Record) error {
	post := rec.PostStatus
	patch := Patch{
		Path:     rec.Path,
		Title:    rec.Title,
		Playlist: rec.Playlist,
		Targets:  rec.Targets,
	}
	if post != "" {
		patch.PostStatus = &post
	}
	return s.UpdateMany([]Patch{patch})
}

// UpdateTarget records one target outcome for a path
func (s *Store) UpdateTarget(path, target string, state TargetState) error {
	return s.UpdateMany([]Patch{{
		Path:    path,
		Targets: map[string]TargetState{target: state},
	}})
}

// UpdatePostStatus moves a path's post-processing status
func (s *Store) UpdatePostStatus(path string, status PostStatus) error {
	return s.UpdateMany([]Patch{{
		Path:       path,
		PostStatus: &status,
	}})
}

// Get returns the record for a path, if present
func (s *Store) Get(path string) (Record, bool, error) {
	records, err := s.Load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := records[NormalizePath(path)]
	return rec, ok, nil
}

// All returns every record sorted by path
func (s *Store) All() ([]Record, error) {
	records, err := s.Load()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Removable reports whether the local copy for a path may be deleted.
// Unknown paths are never removable.
func (s *Store) Removable(path string) (bool, error) {
	rec, ok, err := s.Get(path)
	if err != nil {
		return false, err
	}
	return ok && rec.Removable(), nil
}

// FailedTargets returns the targets currently failed for a path
func (s *Store) FailedTargets(path string) ([]string, error) {
	rec, ok, err := s.Get(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return rec.FailedTargets(), nil
}

// InPostStatus returns all records in the given post-processing status,
// sorted by path
func (s *Store) InPostStatus(status PostStatus) ([]Record, error) {
	all, err := s.All()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range all {
		if rec.PostStatus == status {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Store) lock() (*fileLock, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}
	return acquireLock(s.lockPath(), s.lockTimeout)
}

func (s *Store) lockPath() string {
	ext := filepath.Ext(s.path)
	return strings.TrimSuffix(s.path, ext) + ".lock"
}

// writeLocked performs the atomic replace: temp file in the same directory,
// owner-only permissions before any content lands, fsync, then rename. The
// rename is the only step that changes what a concurrent reader can see.
func (s *Store) writeLocked(records map[string]Record) error {
	dir := filepath.Dir(s.path)

	tmp, err := os.CreateTemp(dir, ".registry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := tmp.Chmod(0o600); err != nil {
		cleanup()
		return fmt.Errorf("failed to restrict permissions: %w", err)
	}

	if _, err := tmp.WriteString(formatTable(records, s.targets)); err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync: %v", ErrWrite, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrWrite, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrWrite, err)
	}

	return nil
}
