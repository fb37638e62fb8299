package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrS3NotConfigured is returned by Upload when no bucket is configured.
var ErrS3NotConfigured = errors.New("S3 storage is not configured")

const (
	uploadsDir = "uploads"
	exportsDir = "exports"
)

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps uploaded sources and finished exports in a work
// directory:
//
//	<root>/uploads/<name>_<random><ext>
//	<root>/exports/<job id>.mp4
type LocalStorage struct {
	root string
}

// NewLocalStorage creates the work directory layout under root. An empty
// root uses "tempo" under os.TempDir().
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "tempo")
	}
	for _, dir := range []string{root, filepath.Join(root, uploadsDir), filepath.Join(root, exportsDir)} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create work directory %s: %w", dir, err)
		}
	}
	return &LocalStorage{root: root}, nil
}

// Root returns the work directory.
func (s *LocalStorage) Root() string { return s.root }

// UploadDir returns the directory uploaded sources are written to.
func (s *LocalStorage) UploadDir() string { return filepath.Join(s.root, uploadsDir) }

// ExportDir returns the directory exports are written to by default.
func (s *LocalStorage) ExportDir() string { return filepath.Join(s.root, exportsDir) }

// SaveTemp copies data into a new file in the upload directory. Only the
// base of name is used and its extension is kept so the media engine can
// recognise the container.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save upload: %w", err)
	}

	base := filepath.Base(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = "upload"
	}

	f, err := os.CreateTemp(s.UploadDir(), stem+"_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	path := f.Name()

	if _, err := io.Copy(f, &ctxReader{ctx: ctx, r: data}); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// OutputPath returns <root>/exports/<name>.mp4.
func (s *LocalStorage) OutputPath(name string) string {
	return filepath.Join(s.ExportDir(), filepath.Base(name)+".mp4")
}

// Open opens a stored file for reading.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	f, err := os.Open(path) // #nosec G304 - paths come from job records
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// CleanupTemp removes paths, skipping empty and missing ones. It keeps
// going after a failure and returns the first error.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) && firstErr == nil {
			firstErr = fmt.Errorf("remove file %s: %w", p, err)
		}
	}
	return firstErr
}

// Upload always fails with ErrS3NotConfigured.
func (s *LocalStorage) Upload(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Within reports whether path names a file beneath one of roots. Both sides
// are made absolute and cleaned, and symlinks are followed where they exist,
// so "..", relative paths and links out of a root are all rejected.
func Within(path string, roots ...string) bool {
	target, err := resolvePath(path)
	if err != nil {
		return false
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		base, err := resolvePath(root)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(base, target)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}

// resolvePath returns the absolute, symlink-free form of path. When path does
// not exist yet its parent directory is resolved instead.
func resolvePath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(dir, filepath.Base(abs)), nil
	}
	return abs, nil
}
