package storage

import (
	"bytes"
	"sort"
	"sync"
)

// memStorage is an in-memory Storage, adapted from the teacher's
// lib/go-fs inmemStorage: same open/close bookkeeping and single-writer
// discipline, keyed by name instead of (ObjectType, generation).
type memStorage struct {
	mu    sync.Mutex
	files map[string]*memFile
}

type memFile struct {
	buf     bytes.Buffer
	open    bool
	aborted bool
}

// NewMem returns an in-memory Storage, used by this engine's own tests the
// same way the teacher used its inmemStorage.
func NewMem() Storage {
	return &memStorage{files: make(map[string]*memFile)}
}

type memWriter struct {
	name    string
	storage *memStorage
	file    *memFile
}

func (w *memWriter) Write(p []byte) (int, error) {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	if !w.file.open {
		return 0, ErrClosed
	}
	return w.file.buf.Write(p)
}

func (w *memWriter) Sync() error { return nil }

func (w *memWriter) Finish() error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	if !w.file.open {
		return ErrClosed
	}
	w.file.open = false
	return nil
}

func (w *memWriter) Close() error {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.file.open = false
	return nil
}

func (w *memWriter) Abort() {
	w.storage.mu.Lock()
	defer w.storage.mu.Unlock()
	w.file.open = false
	w.file.aborted = true
	delete(w.storage.files, w.name)
}

type memReader struct {
	*bytes.Reader
}

func (r memReader) Size() int64  { return int64(r.Len()) }
func (r memReader) Close() error { return nil }

func (s *memStorage) Create(name string) (Writable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; ok {
		return nil, ErrExists
	}
	f := &memFile{open: true}
	s.files[name] = f
	return &memWriter{name: name, storage: s, file: f}, nil
}

func (s *memStorage) Open(name string) (Readable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil, ErrNotFound
	}
	return memReader{Reader: bytes.NewReader(f.buf.Bytes())}, nil
}

func (s *memStorage) Rename(oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[oldName]
	if !ok {
		return ErrNotFound
	}
	delete(s.files, oldName)
	s.files[newName] = f
	return nil
}

func (s *memStorage) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name) // absent is not an error, per spec.md §7
	return nil
}

func (s *memStorage) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for n := range s.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *memStorage) SyncDir() error { return nil }
func (s *memStorage) Close() error   { return nil }

var _ Storage = (*memStorage)(nil)
