package filestore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store/memory"
	"github.com/askanna-io/askanna-core/internal/suuid"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.NewStore()
	backend, err := storage.NewFileSystem(t.TempDir())
	require.NoError(t, err)
	return NewService(st, backend, lock.NewLocal()), st
}

func runOwner(t *testing.T, st *memory.Store) *models.ObjectReference {
	t.Helper()
	ownerUUID, ownerSUUID := suuid.NewPair()
	ref, err := st.ObjectReferenceFor(context.Background(), models.OwnerRun, ownerUUID, ownerSUUID)
	require.NoError(t, err)
	return ref
}

func md5hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestUploadRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	content := []byte(`{"k":"v"}`)

	f, err := svc.CreateSlot(ctx, Slot{
		Owner: owner,
		Name:  "payload.json",
		Size:  int64(len(content)),
		Etag:  md5hex(content),
	})
	require.NoError(t, err)
	require.False(t, f.IsComplete())

	// Parts arrive out of order.
	require.NoError(t, svc.UploadPart(ctx, f, 2, bytes.NewReader(content[5:])))
	require.NoError(t, svc.UploadPart(ctx, f, 1, bytes.NewReader(content[:5])))

	completed, err := svc.Complete(ctx, f)
	require.NoError(t, err)
	require.True(t, completed.IsComplete())
	require.Equal(t, "application/json", completed.ContentType)
	require.Equal(t, int64(len(content)), completed.Size)

	r, err := svc.Open(ctx, completed)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestCompleteIntegrityMismatch(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	f, err := svc.CreateSlot(ctx, Slot{
		Owner: owner,
		Name:  "data.bin",
		Size:  100, // wrong on purpose
		Etag:  strings.Repeat("0", 32),
	})
	require.NoError(t, err)

	require.NoError(t, svc.UploadPart(ctx, f, 1, strings.NewReader("short")))

	_, err = svc.Complete(ctx, f)
	require.ErrorIs(t, err, ErrIntegrityMismatch)

	// The row is still reserved, not finalized.
	current, err := st.GetFileByUUID(ctx, f.UUID)
	require.NoError(t, err)
	require.False(t, current.IsComplete())
}

func TestCompleteTwice(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	content := []byte("hello world")
	f, err := svc.CreateSlot(ctx, Slot{
		Owner: owner,
		Name:  "greeting.txt",
		Size:  int64(len(content)),
		Etag:  md5hex(content),
	})
	require.NoError(t, err)
	require.NoError(t, svc.UploadPart(ctx, f, 1, bytes.NewReader(content)))

	_, err = svc.Complete(ctx, f)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, f)
	require.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestDuplicatePartOverwrites(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	content := []byte("final")
	f, err := svc.CreateSlot(ctx, Slot{
		Owner: owner,
		Name:  "data.txt",
		Size:  int64(len(content)),
		Etag:  md5hex(content),
	})
	require.NoError(t, err)

	require.NoError(t, svc.UploadPart(ctx, f, 1, strings.NewReader("draft")))
	require.NoError(t, svc.UploadPart(ctx, f, 1, bytes.NewReader(content)))

	completed, err := svc.Complete(ctx, f)
	require.NoError(t, err)

	r, err := svc.Open(ctx, completed)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func TestAbortRemovesPartsAndRow(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	f, err := svc.CreateSlot(ctx, Slot{Owner: owner, Name: "x.bin", Size: 2, Etag: md5hex([]byte("xy"))})
	require.NoError(t, err)
	require.NoError(t, svc.UploadPart(ctx, f, 1, strings.NewReader("xy")))

	require.NoError(t, svc.Abort(ctx, f))

	_, err = st.GetFileByUUID(ctx, f.UUID)
	require.Error(t, err)
}

func uploadComplete(t *testing.T, svc *Service, owner *models.ObjectReference, name string, content []byte) *models.File {
	t.Helper()
	ctx := context.Background()
	f, err := svc.CreateSlot(ctx, Slot{Owner: owner, Name: name, Size: int64(len(content)), Etag: md5hex(content)})
	require.NoError(t, err)
	require.NoError(t, svc.UploadPart(ctx, f, 1, bytes.NewReader(content)))
	completed, err := svc.Complete(ctx, f)
	require.NoError(t, err)
	return completed
}

func TestOpenRange(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	f := uploadComplete(t, svc, owner, "alphabet.bin", []byte("abcdefghijklmnopqrstuvwxyz"))

	t.Run("middle range", func(t *testing.T) {
		r, br, err := svc.OpenRange(ctx, f, "bytes=10-19")
		require.NoError(t, err)
		defer r.Close()
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, "klmnopqrst", string(got))
		require.Equal(t, int64(10), br.Length())
		require.Equal(t, "bytes 10-19/26", br.ContentRange(f.Size))
	})

	t.Run("open ended", func(t *testing.T) {
		r, _, err := svc.OpenRange(ctx, f, "bytes=20-")
		require.NoError(t, err)
		defer r.Close()
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, "uvwxyz", string(got))
	})

	t.Run("oversized suffix serves full file", func(t *testing.T) {
		r, br, err := svc.OpenRange(ctx, f, "bytes=-1000")
		require.NoError(t, err)
		defer r.Close()
		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Len(t, got, 26)
		require.Equal(t, int64(0), br.Start)
	})

	t.Run("start beyond size", func(t *testing.T) {
		_, _, err := svc.OpenRange(ctx, f, "bytes=26-100")
		require.ErrorIs(t, err, ErrRangeNotSatisfiable)
	})
}

func zipBytes(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestZipIntrospection(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	archive := zipBytes(t, map[string]string{
		"askanna.yml":    "timezone: UTC\n",
		"src/train.py":   "print('hi')\n",
	})
	f := uploadComplete(t, svc, owner, "package.zip", archive)
	require.Equal(t, "application/zip", f.ContentType)

	names, err := svc.ZipNamelist(ctx, f)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"askanna.yml", "src/train.py"}, names)

	data, err := svc.OpenZipEntry(ctx, f, "askanna.yml")
	require.NoError(t, err)
	require.Equal(t, "timezone: UTC\n", string(data))

	_, err = svc.OpenZipEntry(ctx, f, "missing.txt")
	require.ErrorIs(t, err, ErrEntryMissing)
}

func TestZipOnNonZipFile(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	f := uploadComplete(t, svc, owner, "notes.txt", []byte("just text"))

	_, err := svc.ZipNamelist(ctx, f)
	require.ErrorIs(t, err, ErrNotAZipFile)
}

func TestWriteDirect(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t)
	owner := runOwner(t, st)

	f, err := svc.WriteDirect(ctx, Slot{Owner: owner, Name: "payload.json"}, []byte(`{"k":"v"}`))
	require.NoError(t, err)
	require.True(t, f.IsComplete())
	require.Equal(t, int64(9), f.Size)
	require.Equal(t, "application/json", f.ContentType)

	r, err := svc.Open(ctx, f)
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, string(got))
}
