package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/rec-vault/internal/registry"
	"github.com/franz/rec-vault/internal/scan"
	"github.com/franz/rec-vault/internal/transcript"
)

type fakeUploader struct {
	results map[string]string // target -> remote id ("" means fail)
	calls   int
}

func (f *fakeUploader) Upload(ctx context.Context, path, target string) (string, error) {
	f.calls++
	id := f.results[target]
	if id == "" {
		return "", fmt.Errorf("simulated failure on %s", target)
	}
	return id + "-" + filepath.Base(path), nil
}

type fakeFetcher struct {
	errs map[string]error // remote id -> error, nil means success
}

func (f *fakeFetcher) Fetch(ctx context.Context, remoteID string) ([]transcript.Segment, error) {
	if err, ok := f.errs[remoteID]; ok && err != nil {
		return nil, err
	}
	return []transcript.Segment{{Start: 0, End: 2, Text: "hello"}}, nil
}

type env struct {
	root     string
	store    *registry.Store
	uploader *fakeUploader
	fetcher  *fakeFetcher
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	root := filepath.Join(dir, "recordings")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatal(err)
	}
	return &env{
		root:     root,
		store:    registry.New(filepath.Join(dir, "registry.md"), []string{"primary", "mirror-1"}),
		uploader: &fakeUploader{results: map[string]string{"primary": "p", "mirror-1": "m"}},
		fetcher:  &fakeFetcher{errs: map[string]error{}},
	}
}

func (e *env) pipeline() *Pipeline {
	return New(&Config{
		Store:    e.store,
		Scanner:  scan.New(nil),
		Uploader: e.uploader,
		Fetcher:  e.fetcher,
		Root:     e.root,
		URLBase:  "https://example.test/watch?v=",
	})
}

func (e *env) addFile(t *testing.T, rel string) {
	t.Helper()
	path := filepath.Join(e.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestUploadNewRegistersAndSkips(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "intro-to-go.mp4")
	e.addFile(t, "week-1/recap.mp4")

	rep, err := e.pipeline().UploadNew(context.Background(), UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Uploaded != 2 || rep.Skipped != 0 {
		t.Errorf("first run: uploaded=%d skipped=%d", rep.Uploaded, rep.Skipped)
	}
	if rep.PerTarget["primary"] != 2 || rep.PerTarget["mirror-1"] != 2 {
		t.Errorf("per-target counts = %v", rep.PerTarget)
	}

	rec, ok, err := e.store.Get("intro-to-go.mp4")
	if err != nil || !ok {
		t.Fatalf("record missing: %v", err)
	}
	if rec.Title != "Intro To Go" {
		t.Errorf("title = %q", rec.Title)
	}
	if rec.Playlist != "recordings" {
		t.Errorf("playlist = %q", rec.Playlist)
	}
	if rec.Overall() != registry.StatusRegistered {
		t.Errorf("overall = %s", rec.Overall())
	}

	// second run finds nothing new
	rep, err = e.pipeline().UploadNew(context.Background(), UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Uploaded != 0 || rep.Skipped != 2 {
		t.Errorf("second run: uploaded=%d skipped=%d", rep.Uploaded, rep.Skipped)
	}
}

func TestUploadNewLimit(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "a.mp4")
	e.addFile(t, "b.mp4")
	e.addFile(t, "c.mp4")

	rep, err := e.pipeline().UploadNew(context.Background(), UploadOptions{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Uploaded != 2 {
		t.Errorf("uploaded %d with limit 2", rep.Uploaded)
	}
}

func TestUploadNewDryRunChangesNothing(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "a.mp4")

	rep, err := e.pipeline().UploadNew(context.Background(), UploadOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Uploaded != 0 {
		t.Errorf("dry run uploaded %d", rep.Uploaded)
	}
	if e.uploader.calls != 0 {
		t.Errorf("dry run invoked the uploader %d times", e.uploader.calls)
	}
	if all, _ := e.store.All(); len(all) != 0 {
		t.Errorf("dry run wrote %d records", len(all))
	}
}

func TestUploadNewAllTargetsFailLeavesNoRecord(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "a.mp4")
	e.uploader.results = map[string]string{}

	rep, err := e.pipeline().UploadNew(context.Background(), UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.UploadFailed != 1 || len(rep.Errors) != 1 {
		t.Errorf("failed=%d errors=%d", rep.UploadFailed, len(rep.Errors))
	}
	if _, ok, _ := e.store.Get("a.mp4"); ok {
		t.Error("record persisted despite total failure")
	}
}

func TestUploadRetryFailedMode(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "a.mp4")
	e.uploader.results = map[string]string{"primary": "p"} // mirror fails

	if _, err := e.pipeline().UploadNew(context.Background(), UploadOptions{}); err != nil {
		t.Fatal(err)
	}

	// plain run skips the registered row even though one target failed
	rep, err := e.pipeline().UploadNew(context.Background(), UploadOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 1 {
		t.Errorf("plain rerun skipped=%d", rep.Skipped)
	}

	// retry mode heals the failed target only
	e.uploader.results = map[string]string{"primary": "p", "mirror-1": "m"}
	before := e.uploader.calls
	rep, err = e.pipeline().UploadNew(context.Background(), UploadOptions{RetryFailed: true})
	if err != nil {
		t.Fatal(err)
	}
	if e.uploader.calls != before+1 {
		t.Errorf("retry made %d upload calls, want 1", e.uploader.calls-before)
	}
	if rep.PerTarget["mirror-1"] != 1 {
		t.Errorf("per-target = %v", rep.PerTarget)
	}

	rec, _, err := e.store.Get("a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.FailedTargets()) != 0 {
		t.Errorf("still failed: %v", rec.FailedTargets())
	}
}

func seedUploaded(t *testing.T, e *env, rel, remoteID string) {
	t.Helper()
	err := e.store.Append(registry.Record{
		Path:  rel,
		Title: "Seeded",
		Targets: map[string]registry.TargetState{
			"primary": {RemoteID: remoteID, Status: registry.TargetUploaded},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFetchTranscripts(t *testing.T) {
	e := newEnv(t)
	seedUploaded(t, e, "ok.mp4", "id-ok")
	seedUploaded(t, e, "gone.mp4", "id-gone")
	seedUploaded(t, e, "soon.mp4", "id-soon")
	seedUploaded(t, e, "broken.mp4", "id-broken")
	e.fetcher.errs = map[string]error{
		"id-gone":   transcript.ErrUnavailable,
		"id-soon":   transcript.ErrNotReady,
		"id-broken": errors.New("connection reset"),
	}

	rep, err := e.pipeline().FetchTranscripts(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.TranscriptsFetched != 1 || rep.TranscriptsPending != 1 {
		t.Errorf("fetched=%d pending=%d", rep.TranscriptsFetched, rep.TranscriptsPending)
	}

	wantStatus := map[string]registry.PostStatus{
		"ok.mp4":     registry.PostDone,
		"gone.mp4":   registry.PostUnavailable,
		"soon.mp4":   registry.PostPending,
		"broken.mp4": registry.PostError,
	}
	for path, want := range wantStatus {
		rec, _, err := e.store.Get(path)
		if err != nil {
			t.Fatal(err)
		}
		if rec.PostStatus != want {
			t.Errorf("%s post status = %s, want %s", path, rec.PostStatus, want)
		}
	}

	content, err := os.ReadFile(filepath.Join(e.root, "transcripts", "ok.md"))
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	got := string(content)
	if !strings.Contains(got, "# Seeded") || !strings.Contains(got, "[00:00] hello") || !strings.Contains(got, "id-ok") {
		t.Errorf("transcript content:\n%s", got)
	}
}

func TestFetchTranscriptsRetrySelection(t *testing.T) {
	e := newEnv(t)
	seedUploaded(t, e, "err.mp4", "id-err")
	seedUploaded(t, e, "done.mp4", "id-done")

	post := registry.PostError
	if err := e.store.UpdatePostStatus("err.mp4", post); err != nil {
		t.Fatal(err)
	}
	if err := e.store.UpdatePostStatus("done.mp4", registry.PostDone); err != nil {
		t.Fatal(err)
	}

	// plain pass takes neither: done is terminal, error needs --retry
	rep, err := e.pipeline().FetchTranscripts(context.Background(), FetchOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.TranscriptsFetched != 0 {
		t.Errorf("plain pass fetched %d", rep.TranscriptsFetched)
	}

	rep, err = e.pipeline().FetchTranscripts(context.Background(), FetchOptions{Retry: true})
	if err != nil {
		t.Fatal(err)
	}
	if rep.TranscriptsFetched != 1 {
		t.Errorf("retry pass fetched %d, want only the errored row", rep.TranscriptsFetched)
	}

	rec, _, _ := e.store.Get("err.mp4")
	if rec.PostStatus != registry.PostDone {
		t.Errorf("errored row not healed: %s", rec.PostStatus)
	}
}

func TestFetchTranscriptsSessionExpiredAborts(t *testing.T) {
	e := newEnv(t)
	seedUploaded(t, e, "a.mp4", "id-a")
	e.fetcher.errs = map[string]error{"id-a": transcript.ErrSessionExpired}

	_, err := e.pipeline().FetchTranscripts(context.Background(), FetchOptions{})
	if !errors.Is(err, transcript.ErrSessionExpired) {
		t.Errorf("expected session-expired abort, got %v", err)
	}
}

func TestCleanSynced(t *testing.T) {
	e := newEnv(t)
	e.addFile(t, "done.mp4")
	e.addFile(t, "pending.mp4")
	seedUploaded(t, e, "done.mp4", "id-1")
	seedUploaded(t, e, "pending.mp4", "id-2")
	if err := e.store.UpdatePostStatus("done.mp4", registry.PostDone); err != nil {
		t.Fatal(err)
	}

	// dry run touches nothing
	rep, err := e.pipeline().CleanSynced(context.Background(), CleanOptions{DryRun: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Eligible) != 1 || rep.Eligible[0] != "done.mp4" {
		t.Errorf("eligible = %v", rep.Eligible)
	}
	if _, err := os.Stat(filepath.Join(e.root, "done.mp4")); err != nil {
		t.Error("dry run deleted the file")
	}

	rep, err = e.pipeline().CleanSynced(context.Background(), CleanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Deleted != 1 || rep.Skipped != 1 {
		t.Errorf("deleted=%d skipped=%d", rep.Deleted, rep.Skipped)
	}
	if _, err := os.Stat(filepath.Join(e.root, "done.mp4")); !os.IsNotExist(err) {
		t.Error("durable file not deleted")
	}
	if _, err := os.Stat(filepath.Join(e.root, "pending.mp4")); err != nil {
		t.Error("non-durable file was deleted")
	}

	// the registry row survives deletion of the local copy
	if _, ok, _ := e.store.Get("done.mp4"); !ok {
		t.Error("registry row removed by clean")
	}
}
