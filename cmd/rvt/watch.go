package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/franz/rec-vault/internal/pipeline"
	"github.com/franz/rec-vault/internal/util"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and upload new recordings as they appear",
	Long: `Watch the vault directory for new recordings and run the upload pipeline
whenever activity settles. A recording being written triggers a series of
filesystem events; the run starts only after the debounce window passes with
no further changes, so half-written files are not picked up mid-copy.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().Duration("debounce", 30*time.Second, "wait this long after the last change before uploading")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	debounce, _ := cmd.Flags().GetDuration("debounce")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the vault and its existing subdirectories; fsnotify is not
	// recursive, new subdirectories are added as their create events arrive
	if err := addDirs(watcher, cfg.Vault); err != nil {
		return err
	}

	util.InfoLog("Watching %s (debounce %v)", cfg.Vault, debounce)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			util.InfoLog("Watch stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					addDirs(watcher, event.Name)
				}
			}
			if event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Rename) {
				util.DebugLog("Change: %s", event)
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			util.WarnLog("Watcher error: %v", err)

		case <-timerC:
			timer = nil
			timerC = nil
			util.InfoLog("Activity settled, running upload")
			if _, err := p.UploadNew(ctx, pipeline.UploadOptions{}); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				util.ErrorLog("Upload run failed: %v", err)
			}
		}
	}
}

// addDirs registers a directory and all its non-hidden subdirectories
func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || name == "transcripts") {
			return filepath.SkipDir
		}
		if err := watcher.Add(path); err != nil {
			util.WarnLog("Failed to watch %s: %v", path, err)
		}
		return nil
	})
}
