// Package mirror drives N-way replication of one recording to every
// configured target account. A single target's failure never aborts the
// remaining targets; the defining property of the mirror set is that up to
// N-1 targets can fail without losing data, as long as one upload lands.
package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/franz/rec-vault/internal/registry"
	"github.com/franz/rec-vault/internal/util"
)

// Uploader is the upload capability supplied by the caller. The transport
// behind it (browser driver, API client) is not this package's concern.
type Uploader interface {
	// Upload pushes the file at path to the named target and returns the
	// remote identifier assigned by the target.
	Upload(ctx context.Context, path, target string) (string, error)
}

// Item is one recording to replicate
type Item struct {
	RelPath  string // registry key
	AbsPath  string // local file handed to the uploader
	Title    string
	Playlist string
}

// Attempt is the outcome of one upload attempt against one target
type Attempt struct {
	Target   string
	RemoteID string
	Err      error
	Duration time.Duration
}

// Result aggregates per-target outcomes for one item
type Result struct {
	Path     string
	Attempts []Attempt
	States   map[string]registry.TargetState
}

// Uploaded returns how many targets accepted the item
func (r *Result) Uploaded() int {
	n := 0
	for _, ts := range r.States {
		if ts.Status == registry.TargetUploaded {
			n++
		}
	}
	return n
}

// FailedTargets returns the targets that rejected the item, in attempt order
func (r *Result) FailedTargets() []string {
	var failed []string
	for _, a := range r.Attempts {
		if a.Err != nil {
			failed = append(failed, a.Target)
		}
	}
	return failed
}

// Orchestrator replicates items to the store's configured target set
type Orchestrator struct {
	store    *registry.Store
	uploader Uploader
}

// New creates an orchestrator writing results through the given store
func New(store *registry.Store, uploader Uploader) *Orchestrator {
	return &Orchestrator{store: store, uploader: uploader}
}

// Replicate uploads the item to every configured target in order and persists
// the aggregated per-target outcome in one batch write. The registry row is
// created only once at least one target holds the item: an item that failed
// everywhere returns *FullReplicationError and leaves no row behind, so a
// later run treats it as brand new.
func (o *Orchestrator) Replicate(ctx context.Context, item Item) (*Result, error) {
	result := o.attempt(ctx, item, o.store.Targets())

	if result.Uploaded() == 0 {
		return result, &FullReplicationError{Path: item.RelPath, Failed: result.FailedTargets()}
	}

	err := o.store.UpdateMany([]registry.Patch{{
		Path:     item.RelPath,
		Title:    item.Title,
		Playlist: item.Playlist,
		Targets:  result.States,
	}})
	if err != nil {
		return result, fmt.Errorf("replicated but failed to persist %s: %w", item.RelPath, err)
	}

	return result, nil
}

// RetryFailed re-attempts only the targets currently failed for an existing
// record. Targets already uploaded are never touched; their remote ids are
// immutable once recorded. Only newly-successful targets are persisted, so a
// retry that changes nothing leaves the row byte-identical.
func (o *Orchestrator) RetryFailed(ctx context.Context, rec registry.Record, absPath string) (*Result, error) {
	failed := rec.FailedTargets()
	if len(failed) == 0 {
		return &Result{Path: rec.Path, States: map[string]registry.TargetState{}}, nil
	}

	item := Item{RelPath: rec.Path, AbsPath: absPath, Title: rec.Title, Playlist: rec.Playlist}
	result := o.attempt(ctx, item, failed)

	recovered := make(map[string]registry.TargetState)
	for name, ts := range result.States {
		if ts.Status == registry.TargetUploaded {
			recovered[name] = ts
		}
	}

	if len(recovered) > 0 {
		err := o.store.UpdateMany([]registry.Patch{{Path: rec.Path, Targets: recovered}})
		if err != nil {
			return result, fmt.Errorf("retried but failed to persist %s: %w", rec.Path, err)
		}
	}

	return result, nil
}

// attempt runs the uploader against each target sequentially, recording every
// outcome and never bailing out early on a per-target failure.
func (o *Orchestrator) attempt(ctx context.Context, item Item, targets []string) *Result {
	result := &Result{
		Path:   item.RelPath,
		States: make(map[string]registry.TargetState, len(targets)),
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			// interrupted: targets not yet attempted stay unrecorded; the
			// last persisted state remains the durable truth
			break
		}

		start := time.Now()
		remoteID, err := o.uploader.Upload(ctx, item.AbsPath, target)
		attempt := Attempt{Target: target, RemoteID: remoteID, Err: err, Duration: time.Since(start)}
		result.Attempts = append(result.Attempts, attempt)

		if err != nil {
			util.WarnLog("Upload to %s failed for %s: %v", target, item.RelPath, err)
			result.States[target] = registry.TargetState{Status: registry.TargetFailed}
			continue
		}

		util.DebugLog("Uploaded %s to %s (remote id %s)", item.RelPath, target, remoteID)
		result.States[target] = registry.TargetState{RemoteID: remoteID, Status: registry.TargetUploaded}
	}

	return result
}
