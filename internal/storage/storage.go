// Package storage abstracts the blob store that holds uploaded bytes: file
// parts, assembled files, packages and avatars. Keys are slash-separated
// paths. The filesystem backend serves single-node deployments and tests;
// the s3 backend serves any S3-compatible object store.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrKeyNotFound is returned when a key does not exist in the backend.
var ErrKeyNotFound = errors.New("storage key not found")

// Backend stores blobs under slash-separated keys.
type Backend interface {
	// Put writes the full content of r under key, replacing any existing blob.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the blob for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// GetRange opens a reader over bytes [start, end] inclusive.
	GetRange(ctx context.Context, key string, start, end int64) (io.ReadCloser, error)

	// Size returns the byte size of the blob.
	Size(ctx context.Context, key string) (int64, error)

	// Delete removes one blob. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every blob under the prefix and garbage-collects
	// any directory structure left behind, up to but not including the root.
	DeletePrefix(ctx context.Context, prefix string) error

	// List returns the keys under a prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
}
