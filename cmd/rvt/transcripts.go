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

var transcriptsCmd = &cobra.Command{
	Use:   "transcripts",
	Short: "Fetch transcripts for uploaded recordings",
	Long: `Fetch the auto-generated transcript for every uploaded recording still
waiting on one, via the primary account, and save it as markdown under
<vault>/transcripts/.

A plain run only takes recordings in the pending state. --retry also
re-attempts recordings that errored; --force re-fetches everything, including
recordings already marked done or unavailable.`,
	RunE: runTranscripts,
}

func init() {
	transcriptsCmd.Flags().Bool("retry", false, "also retry recordings in the error state")
	transcriptsCmd.Flags().Bool("force", false, "re-fetch everything, terminal states included")

	rootCmd.AddCommand(transcriptsCmd)
}

func runTranscripts(cmd *cobra.Command, args []string) error {
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

	retry, _ := cmd.Flags().GetBool("retry")
	force, _ := cmd.Flags().GetBool("force")

	rep, err := p.FetchTranscripts(ctx, pipeline.FetchOptions{Retry: retry, Force: force})
	if err != nil {
		return err
	}

	if !viper.GetBool("quiet") {
		fmt.Println(rep.Markdown())
	}
	return nil
}
