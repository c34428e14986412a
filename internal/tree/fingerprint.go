package tree

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// fingerprintChunkSize is the buffer size used when streaming file content
// through the digest, so large files are never loaded fully into memory.
const fingerprintChunkSize = 64 * 1024

// Fingerprint returns the content digest of the file at path as a hex string.
// The digest depends only on file content, never on filesystem metadata.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()

	h := xxhash.New()
	buf := make([]byte, fingerprintChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return fmt.Sprintf("%016x", h.Sum64()), nil
}
