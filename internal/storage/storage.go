// Package storage provides the object stores that hold table snapshots.
package storage

import (
	"context"
	"errors"
)

// Common errors for storage operations.
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrUploadFailed   = errors.New("upload failed")
	ErrDownloadFailed = errors.New("download failed")
	ErrDeleteFailed   = errors.New("delete failed")
)

// ObjectStore abstracts object storage for snapshot files.
// Implementations are the local filesystem and S3.
type ObjectStore interface {
	// Get returns the full contents of an object, or ErrObjectNotFound.
	Get(ctx context.Context, objectPath string) ([]byte, error)

	// Put writes an object, replacing any existing one.
	Put(ctx context.Context, objectPath string, data []byte) error

	// Exists checks if an object exists.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, objectPath string) error

	// List returns all object paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
