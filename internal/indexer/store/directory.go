// Package store persists index files and manifests. A Directory holds
// immutable, write-once data files (segments and deletion bitmaps) plus a
// sequence of manifests; committing a manifest is atomic, so readers observe
// either the previous or the next generation and never a mixture.
package store

import (
	"io"
)

// Output is a data file being written. Close publishes it under its final
// name; Abort discards it. Until Close returns, no reader can observe the
// file.
type Output interface {
	io.Writer
	Name() string
	Close() error
	Abort() error
}

// Input is a published data file opened for random access.
type Input interface {
	io.ReaderAt
	Name() string
	Size() int64
	Close() error
}

// Lock is the exclusive writer lock of a Directory.
type Lock interface {
	Release() error
}

// Directory is the storage backend of an index. Implementations are safe for
// concurrent use.
type Directory interface {
	// CreateOutput starts a new data file. Writing an existing name fails.
	CreateOutput(name string) (Output, error)
	// OpenInput opens a published data file.
	OpenInput(name string) (Input, error)
	// ListSegmentFiles returns the names of all data files, including
	// unpublished leftovers of interrupted writes.
	ListSegmentFiles() ([]string, error)
	// Commit durably installs m as the current manifest.
	Commit(m *Manifest) error
	// ReadManifest returns the current manifest, or an error matching
	// errors.ErrNotFound when nothing has been committed yet.
	ReadManifest() (*Manifest, error)
	// ReadManifestGeneration returns the manifest of a retained generation.
	ReadManifestGeneration(gen uint64) (*Manifest, error)
	// DeleteFile removes a data file. Deleting a missing file is not an error.
	DeleteFile(name string) error
	// ObtainLock acquires the writer lock or fails with errors.ErrLocked.
	ObtainLock() (Lock, error)
	// Refs tracks data files pinned by open readers.
	Refs() *Refs
	// String describes the location for logs.
	String() string
	Close() error
}
