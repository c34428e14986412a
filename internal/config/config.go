package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// supportedGitServers enumerates the hosting providers a pull request can be
// created on.
var supportedGitServers = []string{"github", "gitlab", "bitbucket", "aws", "azure"}

// Config represents the complete gitmirror configuration.
type Config struct {
	Paths       PathsConfig       `yaml:"paths"`
	Git         GitConfig         `yaml:"git"`
	Filters     FiltersConfig     `yaml:"filters"`
	Cache       CacheConfig       `yaml:"cache"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Auth        AuthConfig        `yaml:"auth"`
	PullRequest PullRequestConfig `yaml:"pull_request"`
	Serve       ServeConfig       `yaml:"serve"`
}

// PathsConfig configures local filesystem paths.
type PathsConfig struct {
	BasePath string `yaml:"base_path"`
}

// GitConfig configures the commit and branch handling of a mirror run.
type GitConfig struct {
	CommitMsg  string `yaml:"commit_msg"`
	BaseBranch string `yaml:"base_branch"`
	NewBranch  string `yaml:"new_branch"`
}

// FiltersConfig configures which source files are excluded from mirroring.
type FiltersConfig struct {
	// IgnorePatterns is a comma-separated list of shell-style globs; an empty
	// string ignores nothing.
	IgnorePatterns string `yaml:"ignore_patterns"`
}

// CacheConfig configures the fingerprint cache.
type CacheConfig struct {
	CacheFile string `yaml:"cache_file"`
}

// RepositoryConfig identifies the target repository.
type RepositoryConfig struct {
	GitServer      string   `yaml:"git_server"`
	Repository     string   `yaml:"repository"`
	IncludeFolders []string `yaml:"include_folders"`
}

// AuthConfig configures git authentication.
type AuthConfig struct {
	SSHKeyFile     string `yaml:"ssh_key_file"`
	HTTPSTokenFile string `yaml:"https_token_file"`
}

// PullRequestConfig configures the optional pull request created after a
// successful mirror run.
type PullRequestConfig struct {
	Create       bool   `yaml:"create"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	CloseOnMerge *bool  `yaml:"close_on_merge"`
	Rebase       *bool  `yaml:"rebase"`
}

// ServeConfig configures the webhook server.
type ServeConfig struct {
	ListenAddr              string   `yaml:"listen_addr"`
	GitHubWebhookSecretFile string   `yaml:"github_webhook_secret_file"`
	AllowedEventTypes       []string `yaml:"allowed_event_types"`
	AllowedRefs             []string `yaml:"allowed_refs"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields.
func (c *Config) expandEnv() {
	c.Paths.BasePath = os.ExpandEnv(c.Paths.BasePath)
	c.Git.CommitMsg = os.ExpandEnv(c.Git.CommitMsg)
	c.Git.BaseBranch = os.ExpandEnv(c.Git.BaseBranch)
	c.Git.NewBranch = os.ExpandEnv(c.Git.NewBranch)
	c.Cache.CacheFile = os.ExpandEnv(c.Cache.CacheFile)
	c.Repository.Repository = os.ExpandEnv(c.Repository.Repository)
	c.Auth.SSHKeyFile = os.ExpandEnv(c.Auth.SSHKeyFile)
	c.Auth.HTTPSTokenFile = os.ExpandEnv(c.Auth.HTTPSTokenFile)
	c.Serve.ListenAddr = os.ExpandEnv(c.Serve.ListenAddr)
	c.Serve.GitHubWebhookSecretFile = os.ExpandEnv(c.Serve.GitHubWebhookSecretFile)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Git.BaseBranch == "" {
		c.Git.BaseBranch = "main"
	}
	if c.Cache.CacheFile == "" {
		c.Cache.CacheFile = "file_cache.json"
	}
	if c.PullRequest.CloseOnMerge == nil {
		t := true
		c.PullRequest.CloseOnMerge = &t
	}
	if c.PullRequest.Rebase == nil {
		t := true
		c.PullRequest.Rebase = &t
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Paths.BasePath == "" {
		return fmt.Errorf("paths.base_path is required")
	}
	if !filepath.IsAbs(c.Paths.BasePath) {
		return fmt.Errorf("paths.base_path must be an absolute path: %s", c.Paths.BasePath)
	}
	if c.Git.CommitMsg == "" {
		return fmt.Errorf("git.commit_msg is required")
	}
	if c.Repository.Repository == "" {
		return fmt.Errorf("repository.repository is required")
	}

	if c.Repository.GitServer != "" && !isSupportedGitServer(c.Repository.GitServer) {
		return fmt.Errorf("invalid repository.git_server: %s (must be one of %s)",
			c.Repository.GitServer, strings.Join(supportedGitServers, ", "))
	}

	// Validate auth: only one auth method may be configured
	if c.Auth.SSHKeyFile != "" && c.Auth.HTTPSTokenFile != "" {
		return fmt.Errorf("auth: only one of ssh_key_file or https_token_file may be set")
	}

	if c.PullRequest.Create {
		if c.Repository.GitServer == "" {
			return fmt.Errorf("repository.git_server is required when pull_request.create is enabled")
		}
		if c.Git.NewBranch == "" {
			return fmt.Errorf("git.new_branch is required when pull_request.create is enabled")
		}
		if c.PullRequest.Title == "" {
			return fmt.Errorf("pull_request.title is required when pull_request.create is enabled")
		}
	}

	return nil
}

// ValidateServe checks the additional fields the webhook server requires.
func (c *Config) ValidateServe() error {
	if c.Serve.ListenAddr == "" {
		return fmt.Errorf("serve.listen_addr is required")
	}
	if c.Serve.GitHubWebhookSecretFile == "" {
		return fmt.Errorf("serve.github_webhook_secret_file is required")
	}
	return nil
}

// IgnorePatterns returns the configured ignore patterns as a slice. An empty
// configuration value yields no patterns.
func (c *Config) IgnorePatterns() []string {
	if strings.TrimSpace(c.Filters.IgnorePatterns) == "" {
		return nil
	}
	return strings.Split(c.Filters.IgnorePatterns, ",")
}

func isSupportedGitServer(server string) bool {
	for _, s := range supportedGitServers {
		if strings.EqualFold(server, s) {
			return true
		}
	}
	return false
}
