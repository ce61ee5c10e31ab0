// Package fsutil abstracts the filesystem operations performed on
// catalog files, extent-cache sidecars and archive trees, so the
// resolver and stores can run against an in-memory filesystem in tests.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileSystem is the surface the catalog and archive layers need.
// OS is the production implementation; Memory backs tests.
type FileSystem interface {
	// Open opens the named file for reading.
	Open(name string) (io.ReadCloser, error)

	// ReadFile reads the named file in full.
	ReadFile(name string) ([]byte, error)

	// WriteFile writes data to the named file, creating or
	// truncating it.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Append appends a line of data to the named file, creating it
	// if necessary.
	Append(name string, data []byte) error

	// Stat returns file info for the named file.
	Stat(name string) (fs.FileInfo, error)

	// Exists reports whether the named file exists.
	Exists(name string) bool

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm os.FileMode) error

	// Remove removes the named file.
	Remove(name string) error
}

// OS implements FileSystem against the real filesystem.
type OS struct{}

// Open opens the named file.
func (OS) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

// ReadFile reads the named file.
func (OS) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

// WriteFile writes data to the named file.
func (OS) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Append appends data to the named file.
func (OS) Append(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Stat returns file info for the named file.
func (OS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// Exists reports whether the named file exists.
func (OS) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MkdirAll creates a directory path.
func (OS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// Remove removes the named file.
func (OS) Remove(name string) error { return os.Remove(name) }

// Memory is an in-memory FileSystem for tests.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty in-memory filesystem.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// Open opens a stored file for reading.
func (m *Memory) Open(name string) (io.ReadCloser, error) {
	data, err := m.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(data))), nil
}

// ReadFile returns a copy of the stored file's contents.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// WriteFile stores data under name.
func (m *Memory) WriteFile(name string, data []byte, _ os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[filepath.Clean(name)] = cp
	return nil
}

// Append appends data to the stored file, creating it if absent.
func (m *Memory) Append(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := filepath.Clean(name)
	m.files[key] = append(m.files[key], data...)
	return nil
}

// Stat returns synthetic file info for a stored file.
func (m *Memory) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return memInfo{name: filepath.Base(name), size: int64(len(data))}, nil
}

// Exists reports whether name is stored.
func (m *Memory) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[filepath.Clean(name)]
	return ok
}

// MkdirAll is a no-op: the memory filesystem is flat.
func (m *Memory) MkdirAll(string, os.FileMode) error { return nil }

// Remove deletes a stored file.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := filepath.Clean(name)
	if _, ok := m.files[key]; !ok {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	delete(m.files, key)
	return nil
}

// Names returns the sorted paths currently stored, for test assertions.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for k := range m.files {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memInfo struct {
	name string
	size int64
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) Mode() fs.FileMode  { return 0o644 }
func (i memInfo) ModTime() time.Time { return time.Time{} }
func (i memInfo) IsDir() bool        { return false }
func (i memInfo) Sys() any           { return nil }
