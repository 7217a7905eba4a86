package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/franz/rec-vault/internal/pipeline"
	"github.com/franz/rec-vault/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var uploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload new recordings to every configured account",
	Long: `Scan the vault for recordings not yet in the registry and replicate each
one to every configured account. A recording is registered once at least one
account accepts it; accounts that fail are recorded and can be retried later
with --retry-failed.`,
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().Int("limit", 0, "upload at most N new recordings (0 = no limit)")
	uploadCmd.Flags().Bool("dry-run", false, "show what would be uploaded without uploading")
	uploadCmd.Flags().Bool("retry-failed", false, "also retry targets that failed previously")
	viper.BindPFlag("limit", uploadCmd.Flags().Lookup("limit"))

	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.UploadCommand == "" {
		return fmt.Errorf("upload_command is not configured: %w", util.ErrInvalidConfig)
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	retryFailed, _ := cmd.Flags().GetBool("retry-failed")

	start := time.Now()
	rep, err := p.UploadNew(ctx, pipeline.UploadOptions{
		Limit:       viper.GetInt("limit"),
		DryRun:      dryRun,
		RetryFailed: retryFailed,
	})
	if err != nil {
		return err
	}

	if !viper.GetBool("quiet") {
		fmt.Println(rep.Markdown())
	}
	util.InfoLog("Done in %v", time.Since(start).Round(time.Millisecond))

	if rep.UploadFailed > 0 {
		return fmt.Errorf("%d recordings failed on every target", rep.UploadFailed)
	}
	return nil
}
