// Package filestore implements the chunked upload contract: a file row is
// reserved, parts land in a scoped upload directory in arbitrary order, and
// complete assembles, validates and finalizes the content. Completed files
// serve range reads and, for zip archives, entry listing and extraction.
package filestore

import (
	"bytes"
	"context"
	"crypto/md5" // #nosec G501 - upload integrity etag, not a security control
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store"
	"github.com/askanna-io/askanna-core/internal/telemetry"
)

// completeLockTTL bounds how long a crashed finalizer can block a file.
const completeLockTTL = 30 * time.Second

// Service coordinates file rows, part blobs and assembled content.
type Service struct {
	files   store.FileStore
	backend storage.Backend
	locks   lock.Locker
}

// NewService wires the filestore.
func NewService(files store.FileStore, backend storage.Backend, locks lock.Locker) *Service {
	return &Service{files: files, backend: backend, locks: locks}
}

// Slot describes a reservation request for a new file.
type Slot struct {
	Owner       *models.ObjectReference
	CreatedBy   *uuid.UUID
	Name        string
	Description string
	Size        int64
	Etag        string
	ContentType string
}

// CreateSlot reserves a file row with completed_at null. Size and etag are
// the caller's declared values; they are validated on Complete.
func (s *Service) CreateSlot(ctx context.Context, slot Slot) (*models.File, error) {
	if err := slot.Owner.Validate(); err != nil {
		return nil, err
	}
	f := &models.File{
		Name:        slot.Name,
		Description: slot.Description,
		Size:        slot.Size,
		Etag:        strings.ToLower(slot.Etag),
		ContentType: slot.ContentType,
		CreatedFor:  slot.Owner.UUID,
		CreatedBy:   slot.CreatedBy,
	}
	if err := s.files.CreateFile(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to reserve file slot: %w", err)
	}
	log.Info().Str("file", f.SUUID).Str("name", f.Name).Int64("size", f.Size).Msg("Reserved file slot")
	return f, nil
}

// UploadPart stores one part. Parts may arrive in any order; re-uploading a
// part number overwrites the previous content. Part numbers start at 1.
func (s *Service) UploadPart(ctx context.Context, f *models.File, partNumber int, content io.Reader) error {
	if f.IsComplete() {
		return ErrAlreadyComplete
	}
	if partNumber < 1 || partNumber > 99999 {
		return fmt.Errorf("part number %d out of range", partNumber)
	}
	ref, err := s.files.GetObjectReference(ctx, f.CreatedFor)
	if err != nil {
		return err
	}
	counted := &countingReader{r: content}
	if err := s.backend.Put(ctx, partKey(ref, f.SUUID, partNumber), counted); err != nil {
		return fmt.Errorf("failed to store part %d: %w", partNumber, err)
	}
	m := telemetry.GetMetrics()
	m.UploadPartsTotal.Add(ctx, 1)
	m.UploadBytesTotal.Add(ctx, counted.n)
	log.Debug().Str("file", f.SUUID).Int("part", partNumber).Msg("Stored upload part")
	return nil
}

// countingReader counts the bytes passed through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Complete assembles the parts in part-number order, validates size and MD5
// etag against the declared values, resolves the content type and marks the
// file complete. Finalization is serialized per file; a concurrent Complete
// fails fast with ErrLocked.
func (s *Service) Complete(ctx context.Context, f *models.File) (*models.File, error) {
	release, err := s.locks.TryAcquire(ctx, "file:complete:"+f.UUID.String(), completeLockTTL)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock; a concurrent finalize may have won.
	current, err := s.files.GetFileByUUID(ctx, f.UUID)
	if err != nil {
		return nil, err
	}
	if current.IsComplete() {
		return nil, ErrAlreadyComplete
	}

	ref, err := s.files.GetObjectReference(ctx, current.CreatedFor)
	if err != nil {
		return nil, err
	}

	parts, err := s.backend.List(ctx, uploadDir(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to list parts: %w", err)
	}
	var fileParts []string
	for _, key := range parts {
		if strings.Contains(key, current.SUUID+"_part_") {
			fileParts = append(fileParts, key)
		}
	}
	if len(fileParts) == 0 {
		return nil, fmt.Errorf("%w: no parts uploaded", ErrIntegrityMismatch)
	}

	assembled := blobKey(ref, current)
	size, etag, head, err := s.assemble(ctx, fileParts, assembled)
	if err != nil {
		return nil, err
	}

	if size != current.Size || !strings.EqualFold(etag, current.Etag) {
		// Leave the parts for a retry, drop the bad assembly.
		if err := s.backend.Delete(ctx, assembled); err != nil {
			log.Warn().Err(err).Str("key", assembled).Msg("Failed to remove rejected assembly")
		}
		telemetry.GetMetrics().UploadsConflicted.Add(ctx, 1)
		return nil, fmt.Errorf("%w: declared size=%d etag=%s, got size=%d etag=%s",
			ErrIntegrityMismatch, current.Size, current.Etag, size, etag)
	}

	now := time.Now()
	current.CompletedAt = &now
	current.ContentType = resolveContentType(current.ContentType, current.Name, head)
	if err := s.files.UpdateFile(ctx, current); err != nil {
		return nil, fmt.Errorf("failed to finalize file: %w", err)
	}

	// Parts and the upload directory are no longer needed.
	if err := s.backend.DeletePrefix(ctx, uploadDir(ref)); err != nil {
		log.Warn().Err(err).Str("file", current.SUUID).Msg("Failed to clean upload directory")
	}

	log.Info().
		Str("file", current.SUUID).
		Str("content_type", current.ContentType).
		Int64("size", current.Size).
		Msg("Completed file upload")
	telemetry.GetMetrics().UploadsCompleted.Add(ctx, 1)
	return current, nil
}

// assemble concatenates parts by sorted key into the destination blob while
// hashing and counting, and captures the sniff head.
func (s *Service) assemble(ctx context.Context, partKeys []string, dest string) (int64, string, []byte, error) {
	hasher := md5.New() // #nosec G401 - etag, not a security control
	var size int64
	head := make([]byte, 0, sniffLen)

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.backend.Put(ctx, dest, pr)
	}()

	writeErr := func() error {
		defer pw.Close()
		for _, key := range partKeys {
			r, err := s.backend.Get(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to open part %s: %w", key, err)
			}
			buf := make([]byte, 32*1024)
			for {
				n, readErr := r.Read(buf)
				if n > 0 {
					chunk := buf[:n]
					size += int64(n)
					hasher.Write(chunk)
					if len(head) < sniffLen {
						take := sniffLen - len(head)
						if take > n {
							take = n
						}
						head = append(head, chunk[:take]...)
					}
					if _, err := pw.Write(chunk); err != nil {
						r.Close()
						return fmt.Errorf("failed to write assembly: %w", err)
					}
				}
				if readErr == io.EOF {
					break
				}
				if readErr != nil {
					r.Close()
					return fmt.Errorf("failed to read part %s: %w", key, readErr)
				}
			}
			r.Close()
		}
		return nil
	}()
	if writeErr != nil {
		pw.CloseWithError(writeErr)
		<-done
		return 0, "", nil, writeErr
	}
	if err := <-done; err != nil {
		return 0, "", nil, fmt.Errorf("failed to store assembled blob: %w", err)
	}

	return size, hex.EncodeToString(hasher.Sum(nil)), head, nil
}

// Abort removes every stored part and the file row.
func (s *Service) Abort(ctx context.Context, f *models.File) error {
	if f.IsComplete() {
		return ErrAlreadyComplete
	}
	ref, err := s.files.GetObjectReference(ctx, f.CreatedFor)
	if err != nil {
		return err
	}
	if err := s.backend.DeletePrefix(ctx, uploadDir(ref)); err != nil {
		return fmt.Errorf("failed to remove parts: %w", err)
	}
	if err := s.files.DeleteFile(ctx, f.UUID); err != nil {
		return err
	}
	log.Info().Str("file", f.SUUID).Msg("Aborted file upload")
	return nil
}

// Open returns a reader over the full assembled content.
func (s *Service) Open(ctx context.Context, f *models.File) (io.ReadCloser, error) {
	if !f.IsComplete() {
		return nil, ErrNotComplete
	}
	ref, err := s.files.GetObjectReference(ctx, f.CreatedFor)
	if err != nil {
		return nil, err
	}
	return s.backend.Get(ctx, blobKey(ref, f))
}

// OpenRange resolves a Range header against the file and returns the reader
// plus the resolved range.
func (s *Service) OpenRange(ctx context.Context, f *models.File, rangeHeader string) (io.ReadCloser, ByteRange, error) {
	if !f.IsComplete() {
		return nil, ByteRange{}, ErrNotComplete
	}
	br, err := ParseRange(rangeHeader, f.Size)
	if err != nil {
		return nil, ByteRange{}, err
	}
	ref, err := s.files.GetObjectReference(ctx, f.CreatedFor)
	if err != nil {
		return nil, ByteRange{}, err
	}
	r, err := s.backend.GetRange(ctx, blobKey(ref, f), br.Start, br.End)
	if err != nil {
		return nil, ByteRange{}, err
	}
	return r, br, nil
}

// WriteDirect stores content as a complete file in one call, bypassing the
// part protocol. Used for server-generated files: payloads, flushed logs,
// results.
func (s *Service) WriteDirect(ctx context.Context, slot Slot, content []byte) (*models.File, error) {
	if err := slot.Owner.Validate(); err != nil {
		return nil, err
	}
	sum := md5.Sum(content) // #nosec G401 - etag, not a security control
	now := time.Now()

	head := content
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	f := &models.File{
		Name:        slot.Name,
		Description: slot.Description,
		Size:        int64(len(content)),
		Etag:        hex.EncodeToString(sum[:]),
		ContentType: resolveContentType(slot.ContentType, slot.Name, head),
		CompletedAt: &now,
		CreatedFor:  slot.Owner.UUID,
		CreatedBy:   slot.CreatedBy,
	}
	if err := s.files.CreateFile(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create file row: %w", err)
	}
	if err := s.backend.Put(ctx, blobKey(slot.Owner, f), bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to store file content: %w", err)
	}
	return f, nil
}

// RemoveOwner deletes every blob belonging to an owner: in-flight parts and
// assembled content. Row-level soft deletion is the store's concern.
func (s *Service) RemoveOwner(ctx context.Context, ref *models.ObjectReference) error {
	if err := s.backend.DeletePrefix(ctx, uploadDir(ref)); err != nil {
		return fmt.Errorf("failed to remove upload directory: %w", err)
	}
	if err := s.backend.DeletePrefix(ctx, ownerPrefix(ref)); err != nil {
		return fmt.Errorf("failed to remove owner blobs: %w", err)
	}
	return nil
}
