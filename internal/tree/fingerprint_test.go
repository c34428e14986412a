package tree

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")

	if err := os.WriteFile(path, []byte("test content"), 0644); err != nil {
		t.Fatal(err)
	}

	hash1, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	hash2, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if hash1 != hash2 {
		t.Errorf("fingerprint not stable: %s != %s", hash1, hash2)
	}

	if err := os.WriteFile(path, []byte("different content"), 0644); err != nil {
		t.Fatal(err)
	}
	hash3, err := Fingerprint(path)
	if err != nil {
		t.Fatal(err)
	}
	if hash1 == hash3 {
		t.Error("fingerprint should change when content changes")
	}
}

func TestFingerprintIgnoresMetadata(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")

	if err := os.WriteFile(a, []byte("same bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("same bytes"), 0600); err != nil {
		t.Fatal(err)
	}

	hashA, err := Fingerprint(a)
	if err != nil {
		t.Fatal(err)
	}
	hashB, err := Fingerprint(b)
	if err != nil {
		t.Fatal(err)
	}
	if hashA != hashB {
		t.Errorf("files with equal content should fingerprint equal: %s != %s", hashA, hashB)
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("Fingerprint should fail on a missing file")
	}
}
