package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NameMax is the longest file name (single path component) the store
// will write. Longer names are truncated while preserving the
// extension so callers never see a failed write for a long name.
const NameMax = 255

// Store is a blob store rooted at a single upload directory. All paths
// exposed to callers are relative to the root; Save may return a
// different path than requested to avoid collisions or over-long
// names.
type Store struct {
	root string
}

// Entry describes one stored file during a Walk.
type Entry struct {
	RelPath string
	Size    int64
	ModTime time.Time
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens (creating if needed) a store rooted at dir.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload root is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// AbsPath maps a relative blob path to its absolute location.
func (s *Store) AbsPath(relPath string) string {
	return filepath.Join(s.root, filepath.FromSlash(relPath))
}

// Save writes the stream under relPath and returns the path actually
// used. The name component is truncated to NameMax preserving the
// extension; an existing file never gets overwritten, a fresh UUID
// segment is inserted instead.
func (s *Store) Save(relPath string, r io.Reader) (string, error) {
	clean, err := s.cleanRel(relPath)
	if err != nil {
		return "", err
	}

	dir, name := path.Split(clean)
	name = truncateName(name)
	if name == "" {
		name = uuid.NewString()
	}
	clean = path.Join(dir, name)

	final := clean
	for {
		exists, err := s.Exists(final)
		if err != nil {
			return "", err
		}
		if !exists {
			break
		}
		final = withUniqueSuffix(clean)
	}

	abs := s.AbsPath(final)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("creating blob directory: %w", err)
	}

	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("creating blob %s: %w", final, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(abs)
		return "", fmt.Errorf("writing blob %s: %w", final, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing blob %s: %w", final, err)
	}
	return final, nil
}

// Open returns a streaming reader for the blob at relPath.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	clean, err := s.cleanRel(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.AbsPath(clean))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes the blob at relPath; deleting a missing blob is not
// an error.
func (s *Store) Delete(relPath string) error {
	clean, err := s.cleanRel(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(s.AbsPath(clean)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", clean, err)
	}
	return nil
}

// Exists reports whether a blob is present at relPath.
func (s *Store) Exists(relPath string) (bool, error) {
	clean, err := s.cleanRel(relPath)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(s.AbsPath(clean))
	if statErr == nil {
		return true, nil
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		return false, nil
	}
	return false, statErr
}

// Stat returns size and modification time for the blob at relPath.
func (s *Store) Stat(relPath string) (Entry, error) {
	clean, err := s.cleanRel(relPath)
	if err != nil {
		return Entry{}, err
	}
	info, err := os.Stat(s.AbsPath(clean))
	if err != nil {
		return Entry{}, err
	}
	return Entry{RelPath: clean, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Walk visits every regular file under the root, honoring context
// cancellation between entries.
func (s *Store) Walk(ctx context.Context, visit func(Entry) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return visit(Entry{
			RelPath: filepath.ToSlash(rel),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	})
}

// Ping verifies the root is still reachable.
func (s *Store) Ping(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("upload root %s is not a directory", s.root)
	}
	return nil
}

func (s *Store) cleanRel(relPath string) (string, error) {
	clean := path.Clean(strings.TrimSpace(filepath.ToSlash(relPath)))
	if clean == "" || clean == "." {
		return "", errors.New("blob path is required")
	}
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("blob path %q escapes the upload root", relPath)
	}
	return clean, nil
}

func truncateName(name string) string {
	if len(name) <= NameMax {
		return name
	}
	ext := path.Ext(name)
	if len(ext) >= NameMax {
		ext = ext[:NameMax-1]
	}
	base := name[:len(name)-len(path.Ext(name))]
	keep := NameMax - len(ext)
	if keep < 1 {
		keep = 1
	}
	if len(base) > keep {
		base = base[:keep]
	}
	return base + ext
}

func withUniqueSuffix(relPath string) string {
	dir, name := path.Split(relPath)
	ext := path.Ext(name)
	base := strings.TrimSuffix(name, ext)
	suffix := "-" + uuid.NewString()[:8]

	name = base + suffix + ext
	if len(name) > NameMax {
		keep := NameMax - len(suffix) - len(ext)
		if keep < 1 {
			keep = 1
		}
		if len(base) > keep {
			base = base[:keep]
		}
		name = base + suffix + ext
	}
	return path.Join(dir, name)
}
