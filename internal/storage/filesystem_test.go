package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileSystemPutGet(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "runs/abcd/payload.json", strings.NewReader(`{"k":"v"}`)))

	r, err := fs.Get(ctx, "runs/abcd/payload.json")
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, `{"k":"v"}`, string(data))

	size, err := fs.Size(ctx, "runs/abcd/payload.json")
	require.NoError(t, err)
	require.Equal(t, int64(9), size)
}

func TestFileSystemGetRange(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "blob", strings.NewReader("abcdefghijklmnopqrstuvwxyz")))

	r, err := fs.GetRange(ctx, "blob", 10, 19)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "klmnopqrst", string(data))
}

func TestFileSystemMissingKey(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)

	_, err = fs.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrKeyNotFound)

	_, err = fs.Size(ctx, "nope")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileSystemRejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)

	require.Error(t, fs.Put(ctx, "../outside", strings.NewReader("x")))
	require.Error(t, fs.Put(ctx, "/abs", strings.NewReader("x")))
}

func TestFileSystemDeletePrunesEmptyDirs(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs, err := NewFileSystem(root)
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "a/b/c/blob", strings.NewReader("x")))
	require.NoError(t, fs.Delete(ctx, "a/b/c/blob"))

	// The empty chain a/b/c is gone but the root survives.
	_, err = os.Stat(filepath.Join(root, "a"))
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(root)
	require.NoError(t, err)
}

func TestFileSystemDeletePrefixAndList(t *testing.T) {
	ctx := context.Background()
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, fs.Put(ctx, "up/f1_part_00001.part", strings.NewReader("aa")))
	require.NoError(t, fs.Put(ctx, "up/f1_part_00002.part", strings.NewReader("bb")))
	require.NoError(t, fs.Put(ctx, "other/keep", strings.NewReader("cc")))

	keys, err := fs.List(ctx, "up")
	require.NoError(t, err)
	require.Equal(t, []string{"up/f1_part_00001.part", "up/f1_part_00002.part"}, keys)

	require.NoError(t, fs.DeletePrefix(ctx, "up"))

	keys, err = fs.List(ctx, "up")
	require.NoError(t, err)
	require.Empty(t, keys)

	keys, err = fs.List(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, []string{"other/keep"}, keys)
}
