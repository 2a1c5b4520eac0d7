package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem stores blobs under a root directory on local disk.
type FileSystem struct {
	root string
}

var _ Backend = (*FileSystem)(nil)

// NewFileSystem creates the root directory if needed.
func NewFileSystem(root string) (*FileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileSystem{root: abs}, nil
}

// path maps a key to a filesystem path, refusing escapes from the root.
func (fs *FileSystem) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(fs.root, clean), nil
}

func (fs *FileSystem) Put(ctx context.Context, key string, r io.Reader) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	// Write to a temp file in the same directory, then rename, so readers
	// never observe a partial blob.
	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed to move blob into place: %w", err)
	}
	return nil
}

func (fs *FileSystem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

type limitedReadCloser struct {
	io.Reader
	closer io.Closer
}

func (l *limitedReadCloser) Close() error { return l.closer.Close() }

func (fs *FileSystem) GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error) {
	p, err := fs.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	if _, err := f.Seek(start, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek blob: %w", err)
	}
	return &limitedReadCloser{
		Reader: io.LimitReader(f, end-start+1),
		closer: f,
	}, nil
}

func (fs *FileSystem) Size(ctx context.Context, key string) (int64, error) {
	p, err := fs.path(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrKeyNotFound
		}
		return 0, fmt.Errorf("failed to stat blob: %w", err)
	}
	return info.Size(), nil
}

func (fs *FileSystem) Delete(ctx context.Context, key string) error {
	p, err := fs.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	fs.pruneEmptyDirs(filepath.Dir(p))
	return nil
}

func (fs *FileSystem) DeletePrefix(ctx context.Context, prefix string) error {
	p, err := fs.path(prefix)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("failed to delete prefix: %w", err)
	}
	fs.pruneEmptyDirs(filepath.Dir(p))
	return nil
}

func (fs *FileSystem) List(ctx context.Context, prefix string) ([]string, error) {
	p, err := fs.path(prefix)
	if err != nil {
		return nil, err
	}
	var keys []string
	err = filepath.Walk(p, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(fs.root, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prefix: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// pruneEmptyDirs removes empty parent directories up to, but not including,
// the storage root.
func (fs *FileSystem) pruneEmptyDirs(dir string) {
	for dir != fs.root && strings.HasPrefix(dir, fs.root) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
