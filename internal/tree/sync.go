package tree

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chainguard-dev/clog"

	"github.com/mirrorops/gitmirror/internal/cache"
	"github.com/mirrorops/gitmirror/internal/ignore"
)

// Synchronizer copies changed files from a source tree into a destination
// tree. The fingerprint cache, not the destination tree, is the oracle for
// whether a file needs copying: a file whose cached fingerprint matches its
// current content is skipped without touching the destination.
type Synchronizer struct {
	cache *cache.Store
}

// NewSynchronizer creates a synchronizer backed by the given cache store.
func NewSynchronizer(store *cache.Store) *Synchronizer {
	return &Synchronizer{cache: store}
}

// Sync walks every regular file under srcDir, skips paths matched by the
// ignore matcher, and copies each file whose fingerprint differs from the
// cached value into destDir, updating the cache after every successful copy.
// A copy or cache failure aborts the synchronization; the destination keeps
// whatever was copied up to that point.
func (s *Synchronizer) Sync(ctx context.Context, srcDir, destDir string, matcher *ignore.Matcher) error {
	log := clog.FromContext(ctx)

	return walkFiles(srcDir, func(rel, path string) error {
		if matcher.Match(rel) {
			log.Debugf("ignoring %s", rel)
			return nil
		}

		hash, err := Fingerprint(path)
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", rel, err)
		}
		if cached, ok := s.cache.Get(rel); ok && cached == hash {
			return nil
		}

		destPath := filepath.Join(destDir, filepath.FromSlash(rel))
		if err := CopyFile(path, destPath); err != nil {
			return fmt.Errorf("failed to copy %s: %w", rel, err)
		}
		if err := s.cache.Put(rel, hash); err != nil {
			return fmt.Errorf("failed to record fingerprint for %s: %w", rel, err)
		}

		log.Debugf("copied %s", rel)
		return nil
	})
}

// CopyFile copies src to dst atomically: content is written to a temp file in
// the destination directory, permissions are carried over from the source,
// and the temp file is renamed into place. Missing parent directories are
// created.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".gitmirror-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if _, err := io.Copy(tmpFile, srcFile); err != nil {
		_ = tmpFile.Close()
		return err
	}

	srcInfo, err := srcFile.Stat()
	if err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(srcInfo.Mode()); err != nil {
		_ = tmpFile.Close()
		return err
	}

	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}
