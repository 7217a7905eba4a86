package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/franz/rec-vault/internal/journal"
	"github.com/franz/rec-vault/internal/mirror"
	"github.com/franz/rec-vault/internal/pipeline"
	"github.com/franz/rec-vault/internal/registry"
	"github.com/franz/rec-vault/internal/report"
	"github.com/franz/rec-vault/internal/scan"
	"github.com/franz/rec-vault/internal/transcript"
	"github.com/franz/rec-vault/internal/util"
	"github.com/spf13/viper"
)

// AccountConfig is one remote account in the mirror set. Accounts are an
// ordered list; the first one is the primary, used for transcript fetches.
type AccountConfig struct {
	Name         string `mapstructure:"name"`
	StorageState string `mapstructure:"storage_state"`
	Cookies      string `mapstructure:"cookies"`
}

// Config is the resolved tool configuration
type Config struct {
	Vault         string
	Registry      string
	Journal       string
	EventsDir     string
	URLBase       string
	UploadCommand string
	UploadArgs    []string
	Lang          string
	FetchDelay    time.Duration
	LockTimeout   time.Duration
	MaxDepth      int
	ExcludeDirs   []string
	Accounts      []AccountConfig
}

// loadConfig resolves configuration from viper (config file, env, flags)
func loadConfig() (*Config, error) {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))

	vault := viper.GetString("vault")
	if vault == "" {
		return nil, fmt.Errorf("vault directory is required (use --vault or set vault in config): %w", util.ErrInvalidConfig)
	}
	vault, err := filepath.Abs(expandHome(vault))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve vault path: %w", err)
	}

	cfg := &Config{
		Vault:         vault,
		Registry:      viper.GetString("registry"),
		Journal:       viper.GetString("journal"),
		EventsDir:     viper.GetString("events_dir"),
		URLBase:       viper.GetString("url_base"),
		UploadCommand: viper.GetString("upload_command"),
		UploadArgs:    viper.GetStringSlice("upload_args"),
		Lang:          viper.GetString("lang"),
		FetchDelay:    viper.GetDuration("fetch_delay"),
		LockTimeout:   viper.GetDuration("lock_timeout"),
		MaxDepth:      viper.GetInt("max_depth"),
		ExcludeDirs:   viper.GetStringSlice("exclude_dirs"),
	}

	if cfg.Registry == "" {
		cfg.Registry = filepath.Join(vault, "registry.md")
	}
	if cfg.Journal == "" {
		cfg.Journal = filepath.Join(vault, ".rvt", "journal.db")
	}
	if cfg.EventsDir == "" {
		cfg.EventsDir = filepath.Join(vault, ".rvt", "events")
	}
	if cfg.FetchDelay == 0 {
		cfg.FetchDelay = 2 * time.Second
	}

	if err := viper.UnmarshalKey("accounts", &cfg.Accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return nil, fmt.Errorf("at least one [[accounts]] entry is required: %w", util.ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(cfg.Accounts))
	for i := range cfg.Accounts {
		a := &cfg.Accounts[i]
		if a.Name == "" {
			return nil, fmt.Errorf("account %d has no name: %w", i, util.ErrInvalidConfig)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate account name %q: %w", a.Name, util.ErrInvalidConfig)
		}
		seen[a.Name] = true
		a.StorageState = expandHome(a.StorageState)
		a.Cookies = expandHome(a.Cookies)
	}

	return cfg, nil
}

// targetNames returns the configured account names in order
func (c *Config) targetNames() []string {
	names := make([]string, len(c.Accounts))
	for i, a := range c.Accounts {
		names[i] = a.Name
	}
	return names
}

// primaryAccount returns the first configured account
func (c *Config) primaryAccount() AccountConfig {
	return c.Accounts[0]
}

// buildPipeline assembles the pipeline with all collaborators. The returned
// cleanup function closes the journal and event log.
func buildPipeline(cfg *Config) (*pipeline.Pipeline, func(), error) {
	var storeOpts []registry.Option
	if cfg.LockTimeout > 0 {
		storeOpts = append(storeOpts, registry.WithLockTimeout(cfg.LockTimeout))
	}
	store := registry.New(cfg.Registry, cfg.targetNames(), storeOpts...)

	accounts := make([]mirror.Account, len(cfg.Accounts))
	for i, a := range cfg.Accounts {
		accounts[i] = mirror.Account{Name: a.Name, StorageState: a.StorageState, Cookies: a.Cookies}
	}
	uploader := mirror.NewExecUploader(cfg.UploadCommand, cfg.UploadArgs, accounts)

	fetcher := transcript.NewYtDlpFetcher(cfg.primaryAccount().Cookies, cfg.Lang, cfg.URLBase)

	scanner := scan.New(&scan.Config{
		MaxDepth:    cfg.MaxDepth,
		ExcludeDirs: cfg.ExcludeDirs,
	})

	logLevel := report.LevelInfo
	if viper.GetBool("quiet") {
		logLevel = report.LevelWarning
	} else if viper.GetBool("verbose") {
		logLevel = report.LevelDebug
	}
	events, err := report.NewEventLogger(cfg.EventsDir, logLevel)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		events = report.NullLogger()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Journal), 0o755); err != nil {
		events.Close()
		return nil, nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	jnl, err := journal.Open(cfg.Journal)
	if err != nil {
		events.Close()
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}

	p := pipeline.New(&pipeline.Config{
		Store:      store,
		Scanner:    scanner,
		Uploader:   uploader,
		Fetcher:    fetcher,
		Root:       cfg.Vault,
		URLBase:    cfg.URLBase,
		Events:     events,
		Journal:    jnl,
		FetchDelay: cfg.FetchDelay,
	})

	cleanup := func() {
		jnl.Close()
		events.Close()
	}
	return p, cleanup, nil
}

// expandHome replaces a leading ~ with the user's home directory
func expandHome(path string) string {
	if path == "~" || (len(path) > 1 && path[0] == '~' && path[1] == os.PathSeparator) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
