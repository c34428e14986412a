package cache

import (
	"encoding/json"
	"fmt"
	"os"
)

// Store is a persisted mapping from slash-separated relative file path to a
// content fingerprint, used to skip unchanged files across mirror runs.
//
// The backing file is a flat JSON object loaded once at construction and
// rewritten in full on every update (write-through): a crash never records a
// fingerprint without the corresponding copy having completed first. Updates
// are infrequent relative to reads, so the full rewrite is acceptable.
//
// A Store assumes at most one writer; callers sharing a cache file must
// serialize their runs.
type Store struct {
	path    string
	entries map[string]string
}

// Open loads the store from path. A missing file yields an empty store; an
// unreadable or corrupt file is an error.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("failed to parse cache file %s: %w", path, err)
	}

	return s, nil
}

// Get returns the cached fingerprint for relPath, if any.
func (s *Store) Get(relPath string) (string, bool) {
	hash, ok := s.entries[relPath]
	return hash, ok
}

// Put records the fingerprint for relPath and durably persists the entire
// store before returning.
func (s *Store) Put(relPath, fingerprint string) error {
	s.entries[relPath] = fingerprint
	return s.save()
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	return len(s.entries)
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}
