package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/mirrorops/gitmirror/internal/cache"
	"github.com/mirrorops/gitmirror/internal/config"
	"github.com/mirrorops/gitmirror/internal/gitops"
	"github.com/mirrorops/gitmirror/internal/ignore"
	"github.com/mirrorops/gitmirror/internal/mirror"
	"github.com/mirrorops/gitmirror/internal/provider"
	"github.com/mirrorops/gitmirror/internal/tree"
	"github.com/mirrorops/gitmirror/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitmirror",
	Short: "Mirror a local file tree into a Git repository",
	Long: `gitmirror synchronizes a local file tree into a Git repository: it detects
which files changed since the last run, copies only those into a disposable
working clone, and commits and pushes the result. If any step fails partway,
it compensates with a rollback commit.

After a successful push it can optionally open a pull request on GitHub,
GitLab, Bitbucket, AWS CodeCommit or Azure DevOps.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Perform a one-time mirror run and print the result as JSON",
	Long: `Sync clones the configured repository into a temporary directory, detects
changes between the source tree and the clone, copies changed files, and
commits and pushes the result. The mirror result is printed to stdout as JSON.

When no changes are detected, nothing is committed or pushed.`,
	RunE: runSync,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run as a webhook daemon that mirrors on every push event",
	Long: `Serve starts a long-running HTTP server that listens for GitHub push events
and triggers a mirror run whenever the configured repository is updated.

This mode requires additional configuration for the webhook secret and the
allowed refs.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("gitmirror %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gitmirror/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// syncOutput is the printed result of a sync run, optionally carrying the
// response document of a created pull request.
type syncOutput struct {
	*mirror.Result
	PullRequest map[string]any `json:"pull_request,omitempty"`
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()
	ctx = clog.WithLogger(ctx, setupLogger())

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}

	result, err := svc.Run(ctx)
	if err != nil {
		// Compensation failures are not downgraded to a printed result.
		return err
	}

	out := syncOutput{Result: result}
	if result.Status == mirror.StatusSuccess && result.CommitHash != "" && cfg.PullRequest.Create {
		out.PullRequest, err = createPullRequest(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to create pull request: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()
	ctx = clog.WithLogger(ctx, setupLogger())

	cfg, err := loadConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	svc, err := buildService(cfg)
	if err != nil {
		return err
	}

	server, err := webhook.NewServer(cfg, svc)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}

// buildService wires the mirror service from the configuration.
func buildService(cfg *config.Config) (*mirror.Service, error) {
	store, err := cache.Open(cfg.Cache.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open fingerprint cache: %w", err)
	}

	matcher, err := ignore.New(cfg.IgnorePatterns())
	if err != nil {
		return nil, err
	}

	gitClient := gitops.NewShellClient(cfg.Auth.SSHKeyFile, cfg.Auth.HTTPSTokenFile)
	return mirror.NewService(cfg, gitClient, tree.NewSynchronizer(store), matcher), nil
}

func createPullRequest(ctx context.Context, cfg *config.Config) (map[string]any, error) {
	prov, err := provider.New(cfg.Repository.GitServer, cfg.Repository.Repository)
	if err != nil {
		return nil, err
	}
	return prov.CreatePullRequest(ctx, provider.PullRequest{
		Title:        cfg.PullRequest.Title,
		Description:  cfg.PullRequest.Description,
		HeadBranch:   cfg.Git.NewBranch,
		BaseBranch:   cfg.Git.BaseBranch,
		CloseOnMerge: *cfg.PullRequest.CloseOnMerge,
		Rebase:       *cfg.PullRequest.Rebase,
	})
}

func setupLogger() *clog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so the JSON result on stdout stays machine-readable.
	var handler slog.Handler
	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return clog.New(handler)
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	log := clog.FromContext(ctx)

	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/gitmirror/config.yaml", home)
	}

	log.Infof("loading configuration from %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log.Debugf("configuration loaded: repository=%s base_branch=%s base_path=%s",
		cfg.Repository.Repository, cfg.Git.BaseBranch, cfg.Paths.BasePath)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
