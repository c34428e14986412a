package tree

import (
	"io/fs"
	"path/filepath"
)

// vcsDir is the version-control metadata directory excluded from all tree
// walks; the destination tree is a git clone and its internals must never be
// reported as mirrored content.
const vcsDir = ".git"

// walkFiles calls fn for every regular file under root with its
// slash-separated relative path and its absolute path.
func walkFiles(root string, fn func(rel, path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == vcsDir && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel), path)
	})
}
