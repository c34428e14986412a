package mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mirrorops/gitmirror/internal/cache"
	"github.com/mirrorops/gitmirror/internal/config"
	"github.com/mirrorops/gitmirror/internal/ignore"
	"github.com/mirrorops/gitmirror/internal/tree"
)

// mockClient records git interactions and fails on demand.
type mockClient struct {
	cloneErr    error
	cloneSetup  func(destDir string) error
	commitErr   error
	rollbackErr error

	cloneCalled    bool
	rollbackCalled bool
	commitMessages []string
	commitBranches []string
}

func (m *mockClient) Clone(_ context.Context, _, _, destDir string, _ []string) error {
	m.cloneCalled = true
	if m.cloneErr != nil {
		return m.cloneErr
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	if m.cloneSetup != nil {
		return m.cloneSetup(destDir)
	}
	return nil
}

func (m *mockClient) CommitAndPush(_ context.Context, _, message, newBranch string) (string, error) {
	m.commitMessages = append(m.commitMessages, message)
	m.commitBranches = append(m.commitBranches, newBranch)
	// The first commit carries the injected failure; the rollback commit that
	// may follow is allowed to succeed.
	if m.commitErr != nil && len(m.commitMessages) == 1 {
		return "", m.commitErr
	}
	return "abc123def456", nil
}

func (m *mockClient) Rollback(_ string, _ tree.Changes) error {
	m.rollbackCalled = true
	return m.rollbackErr
}

func newTestService(t *testing.T, cfg *config.Config, client *mockClient) *Service {
	t.Helper()
	store, err := cache.Open(filepath.Join(t.TempDir(), "cache.json"))
	if err != nil {
		t.Fatal(err)
	}
	matcher, err := ignore.New(cfg.IgnorePatterns())
	if err != nil {
		t.Fatal(err)
	}
	return NewService(cfg, client, tree.NewSynchronizer(store), matcher)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	if err := os.WriteFile(filepath.Join(base, "a.txt"), []byte("payload"), 0644); err != nil {
		t.Fatal(err)
	}
	return &config.Config{
		Paths: config.PathsConfig{BasePath: base},
		Git: config.GitConfig{
			CommitMsg:  "mirror update",
			BaseBranch: "main",
			NewBranch:  "mirror/update",
		},
		Repository: config.RepositoryConfig{Repository: "git@example.com:org/repo.git"},
	}
}

func TestRunSuccess(t *testing.T) {
	cfg := testConfig(t)
	client := &mockClient{}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", result.Status, StatusSuccess)
	}
	if result.CommitHash != "abc123def456" {
		t.Errorf("CommitHash = %q, want %q", result.CommitHash, "abc123def456")
	}
	if result.Changes["a.txt"] != tree.Added {
		t.Errorf("Changes = %v, want a.txt added", result.Changes)
	}
	if len(client.commitMessages) != 1 || client.commitMessages[0] != "mirror update" {
		t.Errorf("commit messages = %v, want the configured message once", client.commitMessages)
	}
	if client.commitBranches[0] != "mirror/update" {
		t.Errorf("commit branch = %q, want %q", client.commitBranches[0], "mirror/update")
	}
	if client.rollbackCalled {
		t.Error("rollback must not run on success")
	}
}

func TestRunNoChanges(t *testing.T) {
	cfg := testConfig(t)
	client := &mockClient{
		// The clone already contains exactly what the source tree holds.
		cloneSetup: func(destDir string) error {
			return os.WriteFile(filepath.Join(destDir, "a.txt"), []byte("payload"), 0644)
		},
	}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != StatusSuccess {
		t.Errorf("Status = %q, want %q", result.Status, StatusSuccess)
	}
	if len(result.Changes) != 0 {
		t.Errorf("Changes = %v, want empty", result.Changes)
	}
	if result.Message != "no changes detected" {
		t.Errorf("Message = %q, want %q", result.Message, "no changes detected")
	}
	if result.CommitHash != "" {
		t.Errorf("CommitHash = %q, want empty on a no-op run", result.CommitHash)
	}
	if len(client.commitMessages) != 0 {
		t.Errorf("no commit should be attempted without changes, got %v", client.commitMessages)
	}
}

func TestRunCloneFailure(t *testing.T) {
	cfg := testConfig(t)
	client := &mockClient{cloneErr: errors.New("remote unreachable")}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Status != StatusError {
		t.Errorf("Status = %q, want %q", result.Status, StatusError)
	}
	if result.Message != "remote unreachable" {
		t.Errorf("Message = %q, want the clone error", result.Message)
	}
	if client.rollbackCalled {
		t.Error("no rollback may run before a clone exists")
	}
	if len(client.commitMessages) != 0 {
		t.Errorf("no commit should be attempted after a failed clone, got %v", client.commitMessages)
	}
}

func TestRunCommitFailureCompensates(t *testing.T) {
	cfg := testConfig(t)
	client := &mockClient{commitErr: errors.New("push rejected")}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should absorb a compensated failure, got %v", err)
	}

	if result.Status != StatusError {
		t.Errorf("Status = %q, want %q", result.Status, StatusError)
	}
	if result.Message != "push rejected" {
		t.Errorf("Message = %q, want the original failure", result.Message)
	}
	if !client.rollbackCalled {
		t.Error("rollback should run after a commit failure")
	}
	if len(client.commitMessages) != 2 {
		t.Fatalf("commit messages = %v, want failed commit plus rollback commit", client.commitMessages)
	}
	if client.commitMessages[1] != rollbackMessage {
		t.Errorf("rollback commit message = %q, want %q", client.commitMessages[1], rollbackMessage)
	}
	if client.commitBranches[1] != "mirror/update" {
		t.Errorf("rollback commit branch = %q, want the configured branch", client.commitBranches[1])
	}
}

func TestRunRollbackFailureEscapes(t *testing.T) {
	cfg := testConfig(t)
	client := &mockClient{
		commitErr:   errors.New("push rejected"),
		rollbackErr: errors.New("backup missing"),
	}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("a failed rollback must escape as an error")
	}
	if result != nil {
		t.Errorf("result = %v, want nil when compensation fails", result)
	}
	if !errors.Is(err, client.rollbackErr) {
		t.Errorf("error should wrap the rollback failure, got %v", err)
	}
}

func TestRunDetectFailureCompensates(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.BasePath = filepath.Join(cfg.Paths.BasePath, "does-not-exist")
	client := &mockClient{}
	svc := newTestService(t, cfg, client)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run should absorb a compensated failure, got %v", err)
	}

	if result.Status != StatusError {
		t.Errorf("Status = %q, want %q", result.Status, StatusError)
	}
	if !client.rollbackCalled {
		t.Error("detection failure after a successful clone should trigger rollback")
	}
}
