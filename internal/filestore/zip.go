package filestore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zip"

	"github.com/askanna-io/askanna-core/internal/models"
)

// zipReader spools the blob to a temp file so the archive directory can be
// read with an io.ReaderAt regardless of the storage backend. The caller
// must invoke cleanup.
func (s *Service) zipReader(ctx context.Context, f *models.File) (*zip.Reader, func(), error) {
	if !f.IsComplete() {
		return nil, nil, ErrNotComplete
	}
	if !isZipContentType(f.ContentType) {
		return nil, nil, fmt.Errorf("%w: content type %s", ErrNotAZipFile, f.ContentType)
	}

	r, err := s.Open(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	tmp, err := os.CreateTemp("", "askanna-zip-*")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to spool zip: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to spool zip: %w", err)
	}

	zr, err := zip.NewReader(tmp, f.Size)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("%w: %v", ErrNotAZipFile, err)
	}
	return zr, cleanup, nil
}

// ZipNamelist returns the entry paths of a zip file in archive order.
func (s *Service) ZipNamelist(ctx context.Context, f *models.File) ([]string, error) {
	zr, cleanup, err := s.zipReader(ctx, f)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	names := make([]string, 0, len(zr.File))
	for _, entry := range zr.File {
		names = append(names, entry.Name)
	}
	return names, nil
}

// OpenZipEntry reads one entry of a zip file into memory.
func (s *Service) OpenZipEntry(ctx context.Context, f *models.File, entryPath string) ([]byte, error) {
	zr, cleanup, err := s.zipReader(ctx, f)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	for _, entry := range zr.File {
		if entry.Name != entryPath {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s: %w", entryPath, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to read zip entry %s: %w", entryPath, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryMissing, entryPath)
}
