// Package storage places export files on local disk and optionally uploads
// finished exports to S3. It defines the Storage interface (port) and
// implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines where uploaded sources and export outputs live.
type Storage interface {
	// SaveTemp saves an uploaded source to a temporary file and returns its
	// path. The name is used as a hint for the filename.
	SaveTemp(ctx context.Context, name string, data io.Reader) (path string, err error)

	// OutputPath returns the path an export named name is written to.
	OutputPath(name string) string

	// Open opens a stored file for reading.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// CleanupTemp removes the specified files.
	// It continues cleanup even if some files fail to delete.
	CleanupTemp(ctx context.Context, paths []string) error

	// Upload stores data under key in S3 and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Upload(ctx context.Context, key string, data io.Reader) (url string, err error)
}
