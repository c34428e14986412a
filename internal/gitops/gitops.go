package gitops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mirrorops/gitmirror/internal/tree"
)

// backupSuffix marks the pre-existing backup artifact rollback restores
// modified and deleted files from. Creating the artifact is the caller's
// responsibility; rollback only consumes it.
const backupSuffix = ".bak"

// Client provides the version-control operations a mirror run needs.
type Client interface {
	// Clone performs a blob-less clone of url at branch into destDir. When
	// includeFolders is non-empty the checkout is sparse and limited to those
	// subtrees; otherwise the full tree is checked out.
	Clone(ctx context.Context, url, branch, destDir string, includeFolders []string) error

	// CommitAndPush stages all working-tree changes in repoDir, commits them
	// with message, optionally creates and switches to newBranch, pushes to
	// origin and returns the resulting commit hash. Fails when there is
	// nothing to commit or the push is rejected.
	CommitAndPush(ctx context.Context, repoDir, message, newBranch string) (string, error)

	// Rollback reverts the working tree in repoDir: files recorded as added
	// are deleted, files recorded as modified or deleted are restored from
	// their colocated backup copy. It is best-effort compensation, not a
	// transaction; a missing backup fails the rollback.
	Rollback(repoDir string, changes tree.Changes) error
}

// ShellClient implements Client by shelling out to the git command.
type ShellClient struct {
	sshKeyFile     string
	httpsTokenFile string
}

// NewShellClient creates a git client that uses the git binary. The key and
// token files are optional; when set they are used to authenticate against
// ssh and https remotes respectively.
func NewShellClient(sshKeyFile, httpsTokenFile string) *ShellClient {
	return &ShellClient{
		sshKeyFile:     sshKeyFile,
		httpsTokenFile: httpsTokenFile,
	}
}

// Clone clones url at branch into destDir with a blob-less sparse checkout.
func (c *ShellClient) Clone(ctx context.Context, url, branch, destDir string, includeFolders []string) error {
	if err := os.MkdirAll(filepath.Dir(destDir), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, "git", "clone", "--filter=blob:none", "--sparse", url, "-b", branch, destDir)
	if err := c.configureAuth(cmd, url); err != nil {
		return err
	}
	if err := runCommand(cmd); err != nil {
		return &TransportError{Op: "clone", Err: err}
	}

	if err := runCommand(exec.CommandContext(ctx, "git", "-C", destDir, "sparse-checkout", "init", "--cone")); err != nil {
		return &TransportError{Op: "clone", Err: err}
	}

	var args []string
	if len(includeFolders) > 0 {
		args = append([]string{"-C", destDir, "sparse-checkout", "set"}, includeFolders...)
	} else {
		args = []string{"-C", destDir, "sparse-checkout", "disable"}
	}
	if err := runCommand(exec.CommandContext(ctx, "git", args...)); err != nil {
		return &TransportError{Op: "clone", Err: err}
	}

	return nil
}

// CommitAndPush stages, commits and pushes all changes in repoDir.
func (c *ShellClient) CommitAndPush(ctx context.Context, repoDir, message, newBranch string) (string, error) {
	steps := [][]string{
		{"add", "."},
		{"commit", "-m", message},
	}
	if newBranch != "" {
		steps = append(steps, []string{"checkout", "-b", newBranch})
	}
	for _, step := range steps {
		args := append([]string{"-C", repoDir}, step...)
		if err := runCommand(exec.CommandContext(ctx, "git", args...)); err != nil {
			return "", &TransportError{Op: "commit", Err: err}
		}
	}

	pushRef := newBranch
	if pushRef == "" {
		pushRef = "HEAD"
	}
	pushCmd := exec.CommandContext(ctx, "git", "-C", repoDir, "push", "origin", pushRef)
	if err := c.configureAuth(pushCmd, c.remoteURL(ctx, repoDir)); err != nil {
		return "", err
	}
	if err := runCommand(pushCmd); err != nil {
		return "", &TransportError{Op: "push", Err: err}
	}

	output, err := exec.CommandContext(ctx, "git", "-C", repoDir, "rev-parse", "HEAD").Output()
	if err != nil {
		return "", &TransportError{Op: "commit", Err: fmt.Errorf("git rev-parse failed: %w", err)}
	}
	return strings.TrimSpace(string(output)), nil
}

// Rollback reverts the recorded changes in repoDir file by file.
func (c *ShellClient) Rollback(repoDir string, changes tree.Changes) error {
	for rel, kind := range changes {
		fullPath := filepath.Join(repoDir, filepath.FromSlash(rel))
		switch kind {
		case tree.Added:
			if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
				return &RollbackError{Path: rel, Err: err}
			}
		case tree.Modified, tree.Deleted:
			if err := tree.CopyFile(fullPath+backupSuffix, fullPath); err != nil {
				return &RollbackError{Path: rel, Err: fmt.Errorf("failed to restore backup: %w", err)}
			}
		}
	}
	return nil
}

// remoteURL returns the origin URL of repoDir, or "" when it cannot be read.
// It is only consulted to decide which authentication method applies.
func (c *ShellClient) remoteURL(ctx context.Context, repoDir string) string {
	output, err := exec.CommandContext(ctx, "git", "-C", repoDir, "remote", "get-url", "origin").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// configureAuth sets up authentication for a git invocation.
func (c *ShellClient) configureAuth(cmd *exec.Cmd, url string) error {
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}

	// SSH authentication
	if c.sshKeyFile != "" && (strings.HasPrefix(url, "git@") || strings.HasPrefix(url, "ssh://")) {
		// Use GIT_SSH_COMMAND to specify the SSH key.
		// The path is shell-quoted to prevent injection via crafted filenames.
		sshCmd := fmt.Sprintf("ssh -i %s -o StrictHostKeyChecking=accept-new -F /dev/null", shellQuote(c.sshKeyFile))
		cmd.Env = append(cmd.Env, "GIT_SSH_COMMAND="+sshCmd)
		return nil
	}

	// HTTPS authentication with token
	if c.httpsTokenFile != "" && strings.HasPrefix(url, "https://") {
		token, err := os.ReadFile(c.httpsTokenFile)
		if err != nil {
			return fmt.Errorf("failed to read HTTPS token file: %w", err)
		}

		// Pass the token via environment variable and configure a git
		// credential helper that reads it. This avoids embedding the
		// token directly in a shell expression.
		cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")
		cmd.Env = append(cmd.Env, "GITMIRROR_GIT_TOKEN="+strings.TrimSpace(string(token)))
		cmd.Args = insertGitFlags(cmd.Args,
			"-c", `credential.helper=!f() { echo "username=x-access-token"; echo "password=$GITMIRROR_GIT_TOKEN"; }; f`,
		)

		return nil
	}

	return nil
}

// insertGitFlags inserts flags immediately after the "git" command name,
// before the subcommand (e.g. "clone", "push").
func insertGitFlags(args []string, flags ...string) []string {
	if len(args) == 0 {
		return flags
	}
	result := make([]string, 0, len(args)+len(flags))
	result = append(result, args[0])
	result = append(result, flags...)
	result = append(result, args[1:]...)
	return result
}

// shellQuote wraps s in single quotes, escaping any embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// runCommand executes a command and returns an error with its output on failure.
func runCommand(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
