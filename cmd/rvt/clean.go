package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/franz/rec-vault/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete local recordings that are fully synced",
	Long: `Delete local recordings whose registry row shows the transcript is done and
at least one account holds the upload. Recordings that are not yet durable are
never touched. Use --dry-run to list what would be deleted.`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().Bool("dry-run", false, "list eligible recordings without deleting")

	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dryRun, _ := cmd.Flags().GetBool("dry-run")

	rep, err := p.CleanSynced(ctx, pipeline.CleanOptions{DryRun: dryRun})
	if err != nil {
		return err
	}

	if !viper.GetBool("quiet") {
		fmt.Println(rep.Markdown())
	}
	return nil
}
