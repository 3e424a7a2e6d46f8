package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem is the storage the engine reads from and writes to.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFileAtomic(path string, data []byte) error
}

// OSFileSystem is a FileSystem rooted at a directory on the local disk.
// Relative paths resolve against the root; paths that escape it are rejected.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates a FileSystem rooted at root. An empty root means
// the current working directory.
func NewOSFileSystem(root string) (*OSFileSystem, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		root = wd
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", root, err)
	}
	return &OSFileSystem{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory.
func (f *OSFileSystem) Root() string { return f.root }

// Resolve maps path onto the local disk.
func (f *OSFileSystem) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("empty path")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(f.root, resolved)
	}
	resolved = filepath.Clean(resolved)

	rel, err := filepath.Rel(f.root, resolved)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside %s", path, f.root)
	}
	return resolved, nil
}

func (f *OSFileSystem) ReadFile(path string) ([]byte, error) {
	resolved, err := f.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// WriteFileAtomic replaces the file at path with data. The content goes to a
// temporary file in the same directory which is synced and renamed over the
// target, so readers see either the old or the new content. Missing parent
// directories are created and an existing file keeps its permission bits.
func (f *OSFileSystem) WriteFileAtomic(path string, data []byte) error {
	resolved, err := f.Resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(resolved)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(resolved); err == nil {
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", resolved)
		}
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(resolved)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, resolved); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
