package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/rec-vault/internal/journal"
	"github.com/franz/rec-vault/internal/registry"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry and replication status",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("history", 0, "also show the last N journaled attempts")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store := registry.New(cfg.Registry, cfg.targetNames())
	all, err := store.All()
	if err != nil {
		return err
	}

	counts := map[registry.OverallStatus]int{}
	perTarget := map[string]int{}
	var withFailures []registry.Record
	removable := 0
	for _, rec := range all {
		counts[rec.Overall()]++
		for name, ts := range rec.Targets {
			if ts.Status == registry.TargetUploaded {
				perTarget[name]++
			}
		}
		if len(rec.FailedTargets()) > 0 {
			withFailures = append(withFailures, rec)
		}
		if rec.Removable() {
			removable++
		}
	}

	fmt.Printf("Registry: %s\n", cfg.Registry)
	fmt.Printf("Recordings: %d\n", len(all))
	fmt.Printf("  discovered:  %d\n", counts[registry.StatusDiscovered])
	fmt.Printf("  registered:  %d\n", counts[registry.StatusRegistered])
	fmt.Printf("  transcribed: %d\n", counts[registry.StatusTranscribed])
	fmt.Printf("Removable locally: %d\n", removable)

	fmt.Println("\nUploads per account:")
	for _, name := range cfg.targetNames() {
		fmt.Printf("  %-16s %d\n", name, perTarget[name])
	}

	if len(withFailures) > 0 {
		fmt.Println("\nRecordings with failed targets:")
		for _, rec := range withFailures {
			fmt.Printf("  %s: %s\n", rec.Path, strings.Join(rec.FailedTargets(), ", "))
		}
		fmt.Println("\nRun 'rvt upload --retry-failed' to retry.")
	}

	historyN, _ := cmd.Flags().GetInt("history")
	if historyN > 0 {
		if err := printHistory(cfg.Journal, historyN); err != nil {
			return err
		}
	}

	return nil
}

func printHistory(journalPath string, limit int) error {
	jnl, err := journal.Open(journalPath)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer jnl.Close()

	attempts, err := jnl.Recent(limit)
	if err != nil {
		return err
	}

	fmt.Printf("\nLast %d attempts:\n", len(attempts))
	for _, a := range attempts {
		line := fmt.Sprintf("  %s  %-6s %-7s %s -> %s",
			humanize.Time(a.StartedAt), a.Kind, a.Outcome, a.File, a.Target)
		if a.Error != "" {
			line += "  (" + a.Error + ")"
		}
		fmt.Println(line)
	}
	return nil
}
