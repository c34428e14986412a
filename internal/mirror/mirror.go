package mirror

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/mirrorops/gitmirror/internal/config"
	"github.com/mirrorops/gitmirror/internal/gitops"
	"github.com/mirrorops/gitmirror/internal/ignore"
	"github.com/mirrorops/gitmirror/internal/tree"
)

// Result status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// rollbackMessage is the commit message used for compensation commits.
const rollbackMessage = "Rollback: Undoing last mirror operation"

// Result is the terminal value of one mirror run. It is never partially
// filled: a run yields either the full success shape or the full error shape.
type Result struct {
	Status     string       `json:"status"`
	Changes    tree.Changes `json:"changes,omitempty"`
	CommitHash string       `json:"commit_hash,omitempty"`
	Message    string       `json:"message,omitempty"`
}

// Service drives one mirror run end to end: clone, detect, synchronize,
// commit and push, with compensation on failure.
type Service struct {
	cfg     *config.Config
	git     gitops.Client
	sync    *tree.Synchronizer
	matcher *ignore.Matcher
}

// NewService creates a mirror service. All collaborators are injected; the
// service holds no implicit defaults.
func NewService(cfg *config.Config, git gitops.Client, sync *tree.Synchronizer, matcher *ignore.Matcher) *Service {
	return &Service{
		cfg:     cfg,
		git:     git,
		sync:    sync,
		matcher: matcher,
	}
}

// Run executes one mirror operation inside a temporary working clone that is
// removed on every exit path. Primary failures after a successful clone are
// compensated with a rollback commit and reported in the Result; a failure
// during compensation itself is returned as an error instead. When no changes
// are detected, no commit or push is attempted.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	log := clog.FromContext(ctx)

	tmpDir, err := os.MkdirTemp("", "gitmirror-*")
	if err != nil {
		return errorResult(fmt.Errorf("failed to create working directory: %w", err)), nil
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()
	repoDir := filepath.Join(tmpDir, "repo")

	log.Infof("cloning %s (branch %s)", s.cfg.Repository.Repository, s.cfg.Git.BaseBranch)
	err = s.git.Clone(ctx, s.cfg.Repository.Repository, s.cfg.Git.BaseBranch, repoDir, s.cfg.Repository.IncludeFolders)
	if err != nil {
		// Nothing exists to roll back before the clone does.
		return errorResult(err), nil
	}

	changes, err := tree.Detect(s.cfg.Paths.BasePath, repoDir)
	if err != nil {
		return s.compensate(ctx, repoDir, nil, err)
	}
	log.Infof("detected %d changed paths", len(changes))

	if err := s.sync.Sync(ctx, s.cfg.Paths.BasePath, repoDir, s.matcher); err != nil {
		return s.compensate(ctx, repoDir, changes, err)
	}

	if len(changes) == 0 {
		log.Infof("no changes detected, skipping commit")
		return &Result{
			Status:  StatusSuccess,
			Changes: tree.Changes{},
			Message: "no changes detected",
		}, nil
	}

	commit, err := s.git.CommitAndPush(ctx, repoDir, s.cfg.Git.CommitMsg, s.cfg.Git.NewBranch)
	if err != nil {
		return s.compensate(ctx, repoDir, changes, err)
	}

	log.Infof("pushed commit %s", commit)
	return &Result{
		Status:     StatusSuccess,
		Changes:    changes,
		CommitHash: commit,
	}, nil
}

// compensate reverts the working clone and pushes a rollback commit. The
// original failure is reported in the returned Result; a failure during
// compensation escapes as an error carrying both causes.
func (s *Service) compensate(ctx context.Context, repoDir string, changes tree.Changes, cause error) (*Result, error) {
	clog.FromContext(ctx).Warnf("mirror failed, rolling back: %v", cause)

	if err := s.git.Rollback(repoDir, changes); err != nil {
		return nil, fmt.Errorf("rollback after mirror failure (%v): %w", cause, err)
	}
	if _, err := s.git.CommitAndPush(ctx, repoDir, rollbackMessage, s.cfg.Git.NewBranch); err != nil {
		return nil, fmt.Errorf("rollback push after mirror failure (%v): %w", cause, err)
	}

	return errorResult(cause), nil
}

func errorResult(err error) *Result {
	return &Result{
		Status:  StatusError,
		Message: err.Error(),
	}
}
