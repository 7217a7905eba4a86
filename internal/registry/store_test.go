package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(filepath.Join(dir, "registry.md"), []string{"primary", "mirror-1"}, opts...)
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)

	records, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty registry, got %d records", len(records))
	}
}

func TestLoadCorruptFile(t *testing.T) {
	s := newTestStore(t)

	content := "| File | Title | Playlist | Transcript | Created | Updated | primary |\n" +
		"| --- | --- | --- | --- | --- | --- | --- |\n" +
		"| a.mp4 | A | demos | bogus | x | y | — |\n"
	if err := os.WriteFile(s.Path(), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(); !errors.Is(err, ErrCorruptStore) {
		t.Errorf("expected ErrCorruptStore, got %v", err)
	}
}

func TestUpdateManyCreatesAndMerges(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateMany([]Patch{{
		Path:     "demos/a.mp4",
		Title:    "Demo A",
		Playlist: "demos",
		Targets: map[string]TargetState{
			"primary":  {RemoteID: "v1", Status: TargetUploaded},
			"mirror-1": {Status: TargetFailed},
		},
	}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	rec, ok, err := s.Get("demos/a.mp4")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if rec.Title != "Demo A" || rec.Playlist != "demos" {
		t.Errorf("record fields wrong: %+v", rec)
	}
	if rec.PostStatus != PostPending {
		t.Errorf("new record post status = %s, want pending", rec.PostStatus)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps not set on create")
	}

	// merging a later result keeps the existing target and created time
	created := rec.CreatedAt
	err = s.UpdateMany([]Patch{{
		Path:    "demos/a.mp4",
		Targets: map[string]TargetState{"mirror-1": {RemoteID: "v2", Status: TargetUploaded}},
	}})
	if err != nil {
		t.Fatalf("merge failed: %v", err)
	}

	rec, _, err = s.Get("demos/a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Targets["primary"].RemoteID != "v1" {
		t.Errorf("primary lost on merge: %+v", rec.Targets)
	}
	if rec.Targets["mirror-1"].RemoteID != "v2" {
		t.Errorf("mirror-1 not updated: %+v", rec.Targets)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on merge: %v -> %v", created, rec.CreatedAt)
	}
}

func TestDuplicatePathUpdatesNotDuplicates(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		err := s.Append(Record{
			Path:    "a.mp4",
			Title:   fmt.Sprintf("Take %d", i),
			Targets: map[string]TargetState{"primary": {RemoteID: "v1", Status: TargetUploaded}},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 record after repeated appends, got %d", len(all))
	}
}

func TestPatchesAppliedInOrder(t *testing.T) {
	s := newTestStore(t)

	errStatus := PostError
	doneStatus := PostDone
	err := s.UpdateMany([]Patch{
		{Path: "a.mp4", PostStatus: &errStatus},
		{Path: "a.mp4", PostStatus: &doneStatus},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, _, err := s.Get("a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if rec.PostStatus != PostDone {
		t.Errorf("later patch did not win: %s", rec.PostStatus)
	}
}

func TestSingleItemMutators(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpdateTarget("a.mp4", "primary", TargetState{RemoteID: "v1", Status: TargetUploaded}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdatePostStatus("a.mp4", PostDone); err != nil {
		t.Fatal(err)
	}

	removable, err := s.Removable("a.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !removable {
		t.Error("expected removable after upload + done transcript")
	}

	if removable, _ := s.Removable("missing.mp4"); removable {
		t.Error("unknown path must never be removable")
	}
}

func TestQuerySurface(t *testing.T) {
	s := newTestStore(t)

	errStatus := PostError
	err := s.UpdateMany([]Patch{
		{Path: "b.mp4", Targets: map[string]TargetState{"primary": {Status: TargetFailed}, "mirror-1": {Status: TargetFailed}}},
		{Path: "a.mp4", Targets: map[string]TargetState{"primary": {RemoteID: "v1", Status: TargetUploaded}}},
		{Path: "c.mp4", PostStatus: &errStatus},
	})
	if err != nil {
		t.Fatal(err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Path != "a.mp4" || all[2].Path != "c.mp4" {
		t.Errorf("All() not sorted by path: %+v", all)
	}

	failed, err := s.FailedTargets("b.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 2 {
		t.Errorf("expected 2 failed targets, got %v", failed)
	}

	inErr, err := s.InPostStatus(PostError)
	if err != nil {
		t.Fatal(err)
	}
	if len(inErr) != 1 || inErr[0].Path != "c.mp4" {
		t.Errorf("InPostStatus(error) = %+v", inErr)
	}
}

func TestWrittenFileSortedAndRestricted(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateMany([]Patch{
		{Path: "z.mp4"},
		{Path: "a.mp4"},
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("registry permissions = %o, want 600", perm)
	}

	content, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Index(string(content), "a.mp4") > strings.Index(string(content), "z.mp4") {
		t.Error("rows not sorted by path on disk")
	}

	// no stray temp files after a successful write
	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".registry-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestLockTimeout(t *testing.T) {
	s := newTestStore(t, WithLockTimeout(100*time.Millisecond))

	// hold the lock from "another process"
	holder, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := syscall.Flock(int(holder.Fd()), syscall.LOCK_EX); err != nil {
		t.Fatal(err)
	}
	defer syscall.Flock(int(holder.Fd()), syscall.LOCK_UN)

	err = s.UpdateTarget("a.mp4", "primary", TargetState{Status: TargetFailed})
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("expected ErrLockTimeout, got %v", err)
	}
}

// N concurrent writers to the same path must serialize through the lock:
// the final record reflects every patch, no lost updates.
func TestConcurrentWritersNoLostUpdates(t *testing.T) {
	s := newTestStore(t)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := fmt.Sprintf("t%d", i)
			errs <- s.UpdateTarget("a.mp4", target, TargetState{
				RemoteID: fmt.Sprintf("v%d", i),
				Status:   TargetUploaded,
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("writer failed: %v", err)
		}
	}

	rec, ok, err := s.Get("a.mp4")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if len(rec.Targets) != writers {
		t.Errorf("lost updates: %d targets recorded, want %d", len(rec.Targets), writers)
	}
}

func TestWriteAllRoundTripStable(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpdateMany([]Patch{
		{Path: "a.mp4", Title: "A", Playlist: "demos",
			Targets: map[string]TargetState{"primary": {RemoteID: "v1", Status: TargetUploaded}}},
		{Path: "b.mp4", Title: "B", Playlist: "talks"},
	}); err != nil {
		t.Fatal(err)
	}

	first, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	records, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteAll(records); err != nil {
		t.Fatal(err)
	}

	second, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("write(load()) not idempotent:\n%s\n----\n%s", first, second)
	}
}

func TestRejectsPipeInPath(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateMany([]Patch{{Path: "bad|name.mp4"}}); err == nil {
		t.Error("expected error for pipe in path")
	}
}
