package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mirrorops/gitmirror/internal/config"
)

func TestSetupLogger(t *testing.T) {
	origLevel, origFormat := logLevel, logFormat
	t.Cleanup(func() {
		logLevel, logFormat = origLevel, origFormat
	})

	for _, tc := range []struct {
		name   string
		level  string
		format string
	}{
		{name: "debug text", level: "debug", format: "text"},
		{name: "info json", level: "info", format: "json"},
		{name: "warn text", level: "warn", format: "text"},
		{name: "error json", level: "error", format: "json"},
		{name: "unknown level falls back", level: "bogus", format: "text"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			logLevel = tc.level
			logFormat = tc.format
			if logger := setupLogger(); logger == nil {
				t.Fatal("setupLogger returned nil")
			}
		})
	}
}

// testLoadedConfig returns a config shaped like the output of config.Load.
func testLoadedConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{BasePath: dir},
		Git: config.GitConfig{
			CommitMsg:  "mirror update",
			BaseBranch: "main",
		},
		Cache:      config.CacheConfig{CacheFile: filepath.Join(dir, "cache.json")},
		Repository: config.RepositoryConfig{Repository: "git@example.com:org/repo.git"},
	}
}

func TestBuildService(t *testing.T) {
	svc, err := buildService(testLoadedConfig(t))
	if err != nil {
		t.Fatalf("buildService: %v", err)
	}
	if svc == nil {
		t.Fatal("buildService returned nil service")
	}
}

func TestBuildServiceInvalidIgnorePattern(t *testing.T) {
	cfg := testLoadedConfig(t)
	cfg.Filters.IgnorePatterns = "[unterminated"
	if _, err := buildService(cfg); err == nil {
		t.Fatal("buildService should reject an invalid ignore pattern")
	}
}

func TestBuildServiceCorruptCache(t *testing.T) {
	cfg := testLoadedConfig(t)
	if err := os.WriteFile(cfg.Cache.CacheFile, []byte("not json{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := buildService(cfg); err == nil {
		t.Fatal("buildService should fail on an unreadable cache")
	}
}

func TestVersionCommand(t *testing.T) {
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version command: %v", err)
	}
}
