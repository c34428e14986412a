package tree

import (
	"fmt"
	"os"
	"path/filepath"
)

// Detect compares srcDir against destDir and classifies every regular file:
// present only in the source is added, present in both with differing content
// is modified, present only in the destination is deleted. Classification is
// based on content fingerprints, so files identical in both trees yield no
// record. Ignore patterns are deliberately not consulted here; detection
// reports the raw difference between the trees.
func Detect(srcDir, destDir string) (Changes, error) {
	changes := make(Changes)

	err := walkFiles(srcDir, func(rel, path string) error {
		destPath := filepath.Join(destDir, filepath.FromSlash(rel))
		if _, err := os.Stat(destPath); err != nil {
			if os.IsNotExist(err) {
				changes[rel] = Added
				return nil
			}
			return fmt.Errorf("failed to stat %s: %w", destPath, err)
		}

		srcHash, err := Fingerprint(path)
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", path, err)
		}
		destHash, err := Fingerprint(destPath)
		if err != nil {
			return fmt.Errorf("failed to fingerprint %s: %w", destPath, err)
		}
		if srcHash != destHash {
			changes[rel] = Modified
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = walkFiles(destDir, func(rel, _ string) error {
		srcPath := filepath.Join(srcDir, filepath.FromSlash(rel))
		if _, err := os.Stat(srcPath); err != nil {
			if os.IsNotExist(err) {
				changes[rel] = Deleted
				return nil
			}
			return fmt.Errorf("failed to stat %s: %w", srcPath, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return changes, nil
}
