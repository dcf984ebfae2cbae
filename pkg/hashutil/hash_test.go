package hashutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const helloWorldSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func TestSumMatchesKnownDigest(t *testing.T) {
	t.Parallel()

	digest, n, err := Sum(strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 bytes, got %d", n)
	}
	if digest != helloWorldSHA256 {
		t.Fatalf("unexpected digest %s", digest)
	}
}

func TestSumFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sample.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	digest, n, err := SumFile(path)
	if err != nil {
		t.Fatalf("SumFile: %v", err)
	}
	if digest != helloWorldSHA256 || n != 11 {
		t.Fatalf("unexpected result %s/%d", digest, n)
	}
}

func TestSumFileMissing(t *testing.T) {
	t.Parallel()

	if _, _, err := SumFile(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
