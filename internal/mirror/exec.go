package mirror

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/franz/rec-vault/internal/util"
)

// Account holds the credential handles for one target. The interactive login
// that produces these files happens outside this tool; we only consume the
// paths and enforce their permissions.
type Account struct {
	Name         string
	StorageState string // session state consumed by the upload driver
	Cookies      string // cookie jar consumed by the transcript fetcher
}

// ExecUploader shells out to an external upload driver, one invocation per
// target. The driver prints the assigned remote id on stdout. Argument
// placeholders: {file}, {account}, {storage_state}.
type ExecUploader struct {
	Command  string
	Args     []string
	Accounts map[string]Account
	Retry    *util.RetryConfig
}

// NewExecUploader builds an uploader from an ordered account list
func NewExecUploader(command string, args []string, accounts []Account) *ExecUploader {
	m := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		m[a.Name] = a
	}
	return &ExecUploader{
		Command:  command,
		Args:     args,
		Accounts: m,
		Retry:    util.UploadRetryConfig(),
	}
}

// Upload runs the driver for one target, retrying transient failures
func (u *ExecUploader) Upload(ctx context.Context, path, target string) (string, error) {
	account, ok := u.Accounts[target]
	if !ok {
		return "", fmt.Errorf("no account configured for target %q: %w", target, util.ErrInvalidConfig)
	}

	if err := CheckCredentialPerms(account.StorageState); err != nil {
		return "", err
	}

	if _, err := exec.LookPath(u.Command); err != nil {
		return "", fmt.Errorf("upload driver %q not found in PATH: %w", u.Command, util.ErrNotFound)
	}

	args := make([]string, 0, len(u.Args))
	for _, a := range u.Args {
		a = strings.ReplaceAll(a, "{file}", path)
		a = strings.ReplaceAll(a, "{account}", account.Name)
		a = strings.ReplaceAll(a, "{storage_state}", account.StorageState)
		args = append(args, a)
	}

	return util.RetryWithBackoff(u.Retry, func() (string, error) {
		return u.runOnce(ctx, args)
	}, fmt.Sprintf("upload(%s, %s)", path, target))
}

func (u *ExecUploader) runOnce(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, u.Command, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("upload driver failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("upload driver execution failed: %w", err)
	}

	remoteID := strings.TrimSpace(string(output))
	if remoteID == "" {
		return "", fmt.Errorf("upload driver returned no remote id")
	}
	// drivers that print progress use the last line for the id
	if idx := strings.LastIndexByte(remoteID, '\n'); idx >= 0 {
		remoteID = strings.TrimSpace(remoteID[idx+1:])
	}

	return remoteID, nil
}

// CheckCredentialPerms rejects credential files readable by group or other.
// Sessions grant full account access, so a loose mode is treated as an error,
// not a warning.
func CheckCredentialPerms(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("credential file %s: %w", path, err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("credential file %s has mode %o, want owner-only: %w",
			path, perm, util.ErrPermission)
	}
	return nil
}
