// Package storage is the object-storage collaborator spec.md §4.6/§6
// assumes: exclusive-create Writables, seekable Readables, and a Remove/List
// surface a writer/reader/recovery path builds SSTable component files on
// top of. Adapted from the teacher's lib/go-fs/objstorage.go, whose
// (ObjectType, generation) addressing is replaced with the flat filename
// string spec.md §6's grammar produces (internal/filenames), since this
// domain's objects are named components of one SSTable, not opaque numbered
// blobs.
package storage

import (
	"errors"
	"io"
)

var (
	ErrNotFound = errors.New("storage: object not found")
	ErrExists   = errors.New("storage: object already exists")
	ErrClosed   = errors.New("storage: object is closed")
)

// Syncer flushes previously written data to stable storage.
type Syncer interface {
	Sync() error
}

// Writable is the handle for a storage object open for writing, mirroring
// the teacher's go-fs.Writable contract.
type Writable interface {
	io.WriteCloser
	Syncer

	// Finish completes the object and makes the data durable. No further
	// calls are allowed after Finish.
	Finish() error

	// Abort gives up on finishing the object; no further calls are allowed
	// after Abort, and the object may or may not exist afterwards.
	Abort()
}

// Readable is the handle for a storage object open for reading.
type Readable interface {
	io.ReaderAt
	Size() int64
	Close() error
}

// Storage addresses SSTable component files by name (spec.md §6's
// "mc-<gen>-big-<Component>.db" grammar, see internal/filenames), rather
// than the teacher's (ObjectType, generation) tuple, since a single
// directory here holds many distinctly-named siblings per generation.
type Storage interface {
	// Create creates name for writing, failing with ErrExists if it is
	// already present (spec.md §4.6 "exclusive-create").
	Create(name string) (Writable, error)

	// Open opens an existing object read-only.
	Open(name string) (Readable, error)

	// Rename renames oldName to newName, both within this Storage's
	// directory. Used by the TemporaryTOC → TOC sealing step.
	Rename(oldName, newName string) error

	// Remove deletes name. ENOENT is forgiven (spec.md §7 "ENOENT during
	// delete is forgiven"): removing an absent object is not an error.
	Remove(name string) error

	// List returns every object name currently present.
	List() ([]string, error)

	// SyncDir fsyncs the directory itself, the linearisation point for
	// sealing (spec.md §4.6/§5).
	SyncDir() error

	Close() error
}
