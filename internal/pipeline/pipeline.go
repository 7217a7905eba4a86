// Package pipeline wires scanning, replication, transcript fetching and
// cleanup into the operations the CLI exposes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/franz/rec-vault/internal/journal"
	"github.com/franz/rec-vault/internal/meta"
	"github.com/franz/rec-vault/internal/mirror"
	"github.com/franz/rec-vault/internal/registry"
	"github.com/franz/rec-vault/internal/report"
	"github.com/franz/rec-vault/internal/scan"
	"github.com/franz/rec-vault/internal/transcript"
	"github.com/franz/rec-vault/internal/util"
	"github.com/schollz/progressbar/v3"
)

// Pipeline runs the tool's end-to-end operations against one vault directory
type Pipeline struct {
	store      *registry.Store
	scanner    *scan.Scanner
	orch       *mirror.Orchestrator
	fetcher    transcript.Fetcher
	root       string
	urlBase    string
	events     *report.EventLogger
	journal    *journal.Journal
	fetchDelay time.Duration
}

// Config holds pipeline construction parameters
type Config struct {
	Store      *registry.Store
	Scanner    *scan.Scanner
	Uploader   mirror.Uploader
	Fetcher    transcript.Fetcher
	Root       string // vault directory holding the recordings
	URLBase    string // prepended to remote ids in transcript headers
	Events     *report.EventLogger
	Journal    *journal.Journal
	FetchDelay time.Duration
}

// New creates a pipeline
func New(cfg *Config) *Pipeline {
	return &Pipeline{
		store:      cfg.Store,
		scanner:    cfg.Scanner,
		orch:       mirror.New(cfg.Store, cfg.Uploader),
		fetcher:    cfg.Fetcher,
		root:       cfg.Root,
		urlBase:    cfg.URLBase,
		events:     cfg.Events,
		journal:    cfg.Journal,
		fetchDelay: cfg.FetchDelay,
	}
}

// UploadOptions controls an upload run
type UploadOptions struct {
	Limit       int  // 0 means no limit
	DryRun      bool
	RetryFailed bool // also re-attempt targets that failed previously
}

// UploadNew scans the vault, replicates unregistered recordings to every
// target, and optionally retries failed targets on already-registered rows.
// Per-item failures accumulate in the report; only store-level failures abort.
func (p *Pipeline) UploadNew(ctx context.Context, opts UploadOptions) (*report.SyncReport, error) {
	start := time.Now()
	rep := &report.SyncReport{
		GeneratedAt: start,
		PerTarget:   make(map[string]int),
	}

	recordings, err := p.scanner.Scan(ctx, p.root)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	records, err := p.store.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	var fresh []scan.Recording
	var retries []registry.Record
	for _, rec := range recordings {
		key := registry.NormalizePath(rec.RelPath)
		existing, known := records[key]
		if !known {
			fresh = append(fresh, rec)
			continue
		}
		if opts.RetryFailed && len(existing.FailedTargets()) > 0 {
			retries = append(retries, existing)
			continue
		}
		rep.Skipped++
		p.events.LogSkip(key, "already registered")
	}

	if opts.Limit > 0 && len(fresh) > opts.Limit {
		fresh = fresh[:opts.Limit]
	}

	if opts.DryRun {
		for _, rec := range fresh {
			util.InfoLog("Would upload %s to %d targets", rec.RelPath, len(p.store.Targets()))
		}
		for _, rec := range retries {
			util.InfoLog("Would retry %s on %s", rec.Path, strings.Join(rec.FailedTargets(), ", "))
		}
		rep.TotalRegistered = len(records)
		return rep, nil
	}

	bar := p.newProgressBar(len(fresh)+len(retries), "Uploading")

	for _, rec := range fresh {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		title, err := meta.Title(rec.AbsPath)
		if err != nil {
			util.ErrorLog("Skipping %s: %v", rec.RelPath, err)
			rep.AddError(rec.RelPath, err)
			p.events.LogError(rec.RelPath, err)
			barAdd(bar)
			continue
		}

		result, err := p.orch.Replicate(ctx, mirror.Item{
			RelPath:  rec.RelPath,
			AbsPath:  rec.AbsPath,
			Title:    title,
			Playlist: rec.Playlist,
		})
		p.journalAttempts("upload", rec.RelPath, result.Attempts)
		for _, a := range result.Attempts {
			p.events.LogUpload(rec.RelPath, a.Target, a.RemoteID, a.Duration, a.Err)
			if a.Err == nil {
				rep.PerTarget[a.Target]++
			}
		}

		if err != nil {
			var full *mirror.FullReplicationError
			if errors.As(err, &full) {
				util.ErrorLog("All targets failed for %s", rec.RelPath)
				rep.UploadFailed++
				rep.AddError(rec.RelPath, err)
				barAdd(bar)
				continue
			}
			return rep, err
		}

		rep.Uploaded++
		rep.BytesUploaded += rec.Size
		barAdd(bar)
	}

	for _, existing := range retries {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		abs, err := util.SafeResolve(p.root, existing.Path)
		if err != nil {
			rep.AddError(existing.Path, err)
			barAdd(bar)
			continue
		}

		result, err := p.orch.RetryFailed(ctx, existing, abs)
		p.journalAttempts("upload", existing.Path, result.Attempts)
		for _, a := range result.Attempts {
			p.events.LogRetry(existing.Path, a.Target, a.RemoteID, a.Err)
			if a.Err == nil {
				rep.PerTarget[a.Target]++
			}
		}
		if err != nil {
			return rep, err
		}
		if remaining := result.FailedTargets(); len(remaining) > 0 {
			rep.AddError(existing.Path, fmt.Errorf("still failed on %s", strings.Join(remaining, ", ")))
		}
		barAdd(bar)
	}

	barFinish(bar)

	if all, err := p.store.All(); err == nil {
		rep.TotalRegistered = len(all)
	}
	rep.Duration = time.Since(start)

	util.SuccessLog("Upload run complete: %d uploaded, %d skipped, %d failed",
		rep.Uploaded, rep.Skipped, rep.UploadFailed)
	return rep, nil
}

// FetchOptions controls a transcript run
type FetchOptions struct {
	Retry bool // also attempt recordings in the error state
	Force bool // attempt every uploaded recording, terminal states included
}

// FetchTranscripts fetches transcripts for uploaded recordings via the primary
// target and writes them under <vault>/transcripts/, mirroring the source
// layout. Status changes for the whole run land in one batch write, so an
// interrupted run loses at most its own progress, never existing state.
func (p *Pipeline) FetchTranscripts(ctx context.Context, opts FetchOptions) (*report.SyncReport, error) {
	start := time.Now()
	rep := &report.SyncReport{GeneratedAt: start}

	all, err := p.store.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	rep.TotalRegistered = len(all)

	primary := p.store.Primary()
	var candidates []registry.Record
	for _, rec := range all {
		if !rec.Uploaded() || !registry.FetchEligible(rec.PostStatus, opts.Retry, opts.Force) {
			continue
		}
		if rec.RemoteID(primary) == "" {
			util.WarnLog("No %s upload for %s, cannot fetch transcript", primary, rec.Path)
			rep.AddError(rec.Path, fmt.Errorf("not uploaded to primary target %s", primary))
			continue
		}
		candidates = append(candidates, rec)
	}

	util.InfoLog("Fetching transcripts for %d recordings", len(candidates))

	var patches []registry.Patch
	for i, rec := range candidates {
		if err := ctx.Err(); err != nil {
			break
		}
		if i > 0 && p.fetchDelay > 0 {
			time.Sleep(p.fetchDelay)
		}

		remoteID := rec.RemoteID(primary)
		segments, err := p.fetcher.Fetch(ctx, remoteID)
		p.events.LogFetch(rec.Path, primary, err)
		p.journalAttempts("fetch", rec.Path, []mirror.Attempt{{Target: primary, RemoteID: remoteID, Err: err}})

		switch {
		case err == nil:
			if werr := p.writeTranscript(rec, remoteID, segments); werr != nil {
				rep.AddError(rec.Path, werr)
				continue
			}
			if patch := p.postPatch(rec, registry.PostDone, opts.Force); patch != nil {
				patches = append(patches, *patch)
			}
			rep.TranscriptsFetched++
			util.InfoLog("Transcript saved for %s", rec.Path)

		case errors.Is(err, transcript.ErrNotReady):
			// stays in its current state, a later run picks it up
			rep.TranscriptsPending++
			util.DebugLog("Transcript not ready for %s", rec.Path)

		case errors.Is(err, transcript.ErrUnavailable):
			if patch := p.postPatch(rec, registry.PostUnavailable, opts.Force); patch != nil {
				patches = append(patches, *patch)
			}
			util.WarnLog("Transcript unavailable for %s", rec.Path)

		case errors.Is(err, transcript.ErrSessionExpired):
			// every further fetch would fail the same way
			if perr := p.store.UpdateMany(patches); perr != nil {
				return rep, perr
			}
			return rep, err

		default:
			if patch := p.postPatch(rec, registry.PostError, opts.Force); patch != nil {
				patches = append(patches, *patch)
			}
			rep.AddError(rec.Path, err)
			util.ErrorLog("Transcript fetch failed for %s: %v", rec.Path, err)
		}
	}

	if err := p.store.UpdateMany(patches); err != nil {
		return rep, fmt.Errorf("failed to persist transcript statuses: %w", err)
	}

	rep.Duration = time.Since(start)
	util.SuccessLog("Transcript run complete: %d fetched, %d pending",
		rep.TranscriptsFetched, rep.TranscriptsPending)
	return rep, nil
}

// postPatch builds a status patch, or nil when the transition is not allowed
func (p *Pipeline) postPatch(rec registry.Record, to registry.PostStatus, force bool) *registry.Patch {
	if !registry.CanTransition(rec.PostStatus, to, force) {
		util.DebugLog("Not moving %s from %s to %s", rec.Path, rec.PostStatus, to)
		return nil
	}
	return &registry.Patch{Path: rec.Path, PostStatus: &to}
}

func (p *Pipeline) writeTranscript(rec registry.Record, remoteID string, segments []transcript.Segment) error {
	rel := strings.TrimSuffix(rec.Path, filepath.Ext(rec.Path)) + ".md"
	outPath, err := util.SafeResolve(filepath.Join(p.root, "transcripts"), rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	url := ""
	if p.urlBase != "" {
		url = p.urlBase + remoteID
	}
	content := transcript.FormatMarkdown(rec.Title, url, segments)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write transcript: %w", err)
	}
	return nil
}

// CleanOptions controls a clean run
type CleanOptions struct {
	DryRun bool
}

// CleanSynced deletes local recordings whose registry row says they are fully
// durable: transcript done and at least one target holding the upload. This is
// the only code path in the tool that deletes recordings.
func (p *Pipeline) CleanSynced(ctx context.Context, opts CleanOptions) (*report.CleanReport, error) {
	rep := &report.CleanReport{
		GeneratedAt: time.Now(),
		DryRun:      opts.DryRun,
	}

	all, err := p.store.All()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	for _, rec := range all {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		if !rec.Removable() {
			rep.Skipped++
			p.events.LogSkip(rec.Path, "not yet durable")
			continue
		}

		abs, err := util.SafeResolve(p.root, rec.Path)
		if err != nil {
			rep.AddError(rec.Path, err)
			continue
		}

		info, err := os.Stat(abs)
		if os.IsNotExist(err) {
			util.DebugLog("Already gone: %s", rec.Path)
			continue
		}
		if err != nil {
			rep.AddError(rec.Path, err)
			continue
		}

		if opts.DryRun {
			rep.Eligible = append(rep.Eligible, rec.Path)
			rep.BytesFreed += info.Size()
			continue
		}

		if err := os.Remove(abs); err != nil {
			rep.AddError(rec.Path, err)
			p.events.LogClean(rec.Path, err)
			continue
		}
		rep.Deleted++
		rep.BytesFreed += info.Size()
		p.events.LogClean(rec.Path, nil)
		p.journalAttempts("clean", rec.Path, []mirror.Attempt{{Target: "local"}})
		util.InfoLog("Deleted %s", rec.Path)
	}

	if opts.DryRun {
		util.InfoLog("Clean dry run: %d recordings eligible", len(rep.Eligible))
	} else {
		util.SuccessLog("Clean complete: %d deleted, %d skipped", rep.Deleted, rep.Skipped)
	}
	return rep, nil
}

func (p *Pipeline) journalAttempts(kind, file string, attempts []mirror.Attempt) {
	if p.journal == nil {
		return
	}
	for _, a := range attempts {
		outcome := "ok"
		errMsg := ""
		if a.Err != nil {
			outcome = "failed"
			errMsg = a.Err.Error()
		}
		err := p.journal.Record(journal.Attempt{
			RunID:     p.events.RunID(),
			File:      file,
			Target:    a.Target,
			Kind:      kind,
			Outcome:   outcome,
			RemoteID:  a.RemoteID,
			Error:     errMsg,
			StartedAt: time.Now().Add(-a.Duration),
			Duration:  a.Duration,
		})
		if err != nil {
			util.WarnLog("Failed to journal attempt: %v", err)
		}
	}
}

func (p *Pipeline) newProgressBar(total int, description string) *progressbar.ProgressBar {
	if total == 0 || !util.IsTerminal(os.Stdout.Fd()) || util.IsQuiet() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func barAdd(bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Add(1)
	}
}

func barFinish(bar *progressbar.ProgressBar) {
	if bar != nil {
		bar.Finish()
	}
}
