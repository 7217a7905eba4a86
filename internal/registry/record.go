// Package registry implements the durable registry of mirrored recordings.
//
// The registry is a markdown table on disk, one row per recording, keyed by
// the recording's path relative to the vault directory. It is the single
// source of truth for what has been uploaded where and how far each recording
// has progressed through its lifecycle. All mutations funnel through a single
// lock/load/write cycle so that concurrent invocations of the tool never
// observe or produce a partially-updated table.
package registry

import (
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TargetStatus is the upload state of one recording on one target account.
type TargetStatus string

const (
	TargetPending  TargetStatus = "pending"
	TargetUploaded TargetStatus = "uploaded"
	TargetFailed   TargetStatus = "failed"
)

// PostStatus is the transcript (post-processing) state of a recording.
// It is independent of per-target upload state.
type PostStatus string

const (
	PostPending     PostStatus = "pending"
	PostDone        PostStatus = "done"
	PostUnavailable PostStatus = "unavailable"
	PostError       PostStatus = "error"
)

// OverallStatus is the derived lifecycle stage of a recording. It is computed
// from target and post-processing state on every read and never persisted, so
// it cannot drift from the underlying truth.
type OverallStatus string

const (
	StatusDiscovered  OverallStatus = "discovered"
	StatusRegistered  OverallStatus = "registered"
	StatusTranscribed OverallStatus = "transcribed"
)

// TargetState is the replication outcome for one target account.
type TargetState struct {
	RemoteID string
	Status   TargetStatus
}

// Record is the persisted state for one tracked recording. Records are value
// types: mutation produces a new Record via Apply, never in-place edits.
type Record struct {
	Path       string // relative to the vault directory, unique key
	Title      string
	Playlist   string
	Targets    map[string]TargetState
	PostStatus PostStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NormalizePath canonicalizes a registry key: forward slashes and NFC, so the
// same file scanned on different systems maps to the same row.
func NormalizePath(path string) string {
	return norm.NFC.String(filepath.ToSlash(path))
}

// Overall derives the lifecycle stage from target and post-processing state.
func (r Record) Overall() OverallStatus {
	if r.Uploaded() {
		if r.PostStatus == PostDone {
			return StatusTranscribed
		}
		return StatusRegistered
	}
	return StatusDiscovered
}

// Uploaded reports whether at least one target holds the recording.
func (r Record) Uploaded() bool {
	for _, ts := range r.Targets {
		if ts.Status == TargetUploaded {
			return true
		}
	}
	return false
}

// Removable reports whether the local copy may be deleted. True only when the
// transcript is done and at least one target holds the recording. The registry
// never deletes files itself; callers gate destructive actions on this.
func (r Record) Removable() bool {
	return r.PostStatus == PostDone && r.Uploaded()
}

// FailedTargets returns the names of targets currently in the failed state,
// sorted for deterministic output.
func (r Record) FailedTargets() []string {
	var failed []string
	for name, ts := range r.Targets {
		if ts.Status == TargetFailed {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// RemoteID returns the remote identifier on the named target, or "" if the
// recording is not uploaded there.
func (r Record) RemoteID(target string) string {
	ts, ok := r.Targets[target]
	if !ok || ts.Status != TargetUploaded {
		return ""
	}
	return ts.RemoteID
}

// Patch describes field changes for one registry row. A zero field means
// "leave unchanged". Title and Playlist only take effect when the patch
// creates a new record.
type Patch struct {
	Path       string
	Title      string
	Playlist   string
	Targets    map[string]TargetState
	PostStatus *PostStatus
}

// Apply merges a patch into the record and returns the result. Target entries
// are only ever added or overwritten, never removed, so a populated targets
// map can never shrink through any mutation path.
func (r Record) Apply(p Patch, now time.Time) Record {
	next := r
	next.Targets = make(map[string]TargetState, len(r.Targets)+len(p.Targets))
	for name, ts := range r.Targets {
		next.Targets[name] = ts
	}
	for name, ts := range p.Targets {
		next.Targets[name] = ts
	}
	if p.PostStatus != nil {
		next.PostStatus = *p.PostStatus
	}
	next.UpdatedAt = now
	return next
}

// newRecord builds a record for a path the registry has not seen before.
func newRecord(p Patch, now time.Time) Record {
	rec := Record{
		Path:       NormalizePath(p.Path),
		Title:      p.Title,
		Playlist:   p.Playlist,
		Targets:    make(map[string]TargetState, len(p.Targets)),
		PostStatus: PostPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for name, ts := range p.Targets {
		rec.Targets[name] = ts
	}
	if p.PostStatus != nil {
		rec.PostStatus = *p.PostStatus
	}
	return rec
}

// ValidTargetStatus reports whether s is a known target status.
func ValidTargetStatus(s TargetStatus) bool {
	switch s {
	case TargetPending, TargetUploaded, TargetFailed:
		return true
	}
	return false
}

// ValidPostStatus reports whether s is a known post-processing status.
func ValidPostStatus(s PostStatus) bool {
	switch s {
	case PostPending, PostDone, PostUnavailable, PostError:
		return true
	}
	return false
}
