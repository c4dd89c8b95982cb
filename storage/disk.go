package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/nogodb/mcsstable/internal/errs"
)

// diskStorage is the local-disk Storage backend spec.md §4.6's sealing
// protocol needs (real O_EXCL create, rename, directory fsync) that the
// teacher never shipped — go-fs only has the in-memory implementation used
// by its own tests. It satisfies the same Storage contract as memStorage.
type diskStorage struct {
	dir string
}

// NewDisk opens dir (which must already exist) as a Storage.
func NewDisk(dir string) (Storage, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err)
	}
	if !info.IsDir() {
		return nil, errs.Newf(errs.Malformed, "storage: %q is not a directory", dir)
	}
	return &diskStorage{dir: dir}, nil
}

type diskWritable struct {
	f *os.File
}

func (w *diskWritable) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	if err != nil {
		return n, errs.Wrap(errs.Io, err)
	}
	return n, nil
}

func (w *diskWritable) Sync() error {
	if err := w.f.Sync(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (w *diskWritable) Finish() error {
	if err := w.f.Sync(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	if err := w.f.Close(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (w *diskWritable) Close() error {
	if err := w.f.Close(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (w *diskWritable) Abort() {
	name := w.f.Name()
	_ = w.f.Close()
	_ = os.Remove(name)
}

type diskReadable struct {
	f    *os.File
	size int64
}

func (r *diskReadable) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.f.ReadAt(p, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, errs.Wrap(errs.Io, err)
	}
	return n, err
}

func (r *diskReadable) Size() int64 { return r.size }

func (r *diskReadable) Close() error {
	if err := r.f.Close(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (s *diskStorage) path(name string) string { return filepath.Join(s.dir, name) }

func (s *diskStorage) Create(name string) (Writable, error) {
	f, err := os.OpenFile(s.path(name), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrExists
		}
		return nil, errs.Wrap(errs.Io, err)
	}
	return &diskWritable{f: f}, nil
}

func (s *diskStorage) Open(name string) (Readable, error) {
	f, err := os.Open(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errs.Wrap(errs.Io, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errs.Wrap(errs.Io, err)
	}
	return &diskReadable{f: f, size: info.Size()}, nil
}

func (s *diskStorage) Rename(oldName, newName string) error {
	if err := os.Rename(s.path(oldName), s.path(newName)); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (s *diskStorage) Remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (s *diskStorage) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errs.Wrap(errs.Io, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// SyncDir fsyncs the directory entry, the linearisation point spec.md §4.6
// requires before and after the TemporaryTOC→TOC rename.
func (s *diskStorage) SyncDir() error {
	f, err := os.Open(s.dir)
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return errs.Wrap(errs.Io, err)
	}
	return nil
}

func (s *diskStorage) Close() error { return nil }

var _ Storage = (*diskStorage)(nil)
