package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/franz/rec-vault/internal/util"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage rvt configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	RunE:  runConfigInit,
}

const configTemplate = `# rvt configuration
vault = "~/recordings"

# registry defaults to <vault>/registry.md
# registry = ""

# external upload driver; prints the remote id on stdout
upload_command = "vault-upload"
upload_args = ["--state", "{storage_state}", "--account", "{account}", "{file}"]

# prepended to remote ids in transcript headers and fetch URLs
url_base = "https://example.com/watch?v="

lang = "en"
fetch_delay = "2s"

# accounts are ordered; the first one is the primary, used for transcripts
[[accounts]]
name = "primary"
storage_state = "~/.config/rvt/primary-state.json"
cookies = "~/.config/rvt/primary-cookies.txt"

[[accounts]]
name = "mirror-1"
storage_state = "~/.config/rvt/mirror-1-state.json"
cookies = "~/.config/rvt/mirror-1-cookies.txt"
`

func init() {
	configInitCmd.Flags().String("path", "", "where to write the config (default ~/.config/rvt/config.toml)")

	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("path")
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "rvt", "config.toml")
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// the config names credential files, keep it owner-only
	if err := os.WriteFile(path, []byte(configTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	util.SuccessLog("Wrote %s", path)
	util.InfoLog("Edit the vault path and account credentials before the first upload.")
	return nil
}
