package loader

import (
	"io/fs"
	"path/filepath"
	"time"
)

// memoryFileSystem implements FileSystem over an in-memory map, so the
// loader's cache/cycle-detection tests can build a tree of ".star"
// helper modules without touching disk. Unexported: nothing outside
// this package's own tests needs an in-memory FileSystem.
type memoryFileSystem struct {
	files map[string][]byte
}

// newMemoryFileSystem creates an empty in-memory filesystem.
func newMemoryFileSystem() *memoryFileSystem {
	return &memoryFileSystem{files: make(map[string][]byte)}
}

// addFile adds a file to the in-memory filesystem.
func (f *memoryFileSystem) addFile(path string, content []byte) {
	f.files[path] = content
}

func (f *memoryFileSystem) ReadFile(path string) ([]byte, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrNotExist}
	}
	return content, nil
}

func (f *memoryFileSystem) Stat(path string) (fs.FileInfo, error) {
	content, ok := f.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
	}
	return &memFileInfo{name: filepath.Base(path), size: int64(len(content))}, nil
}

func (f *memoryFileSystem) Join(elem ...string) string { return filepath.Join(elem...) }

// Abs treats every in-memory path as already absolute: there is no real
// working directory to resolve against.
func (f *memoryFileSystem) Abs(path string) (string, error) { return path, nil }

// memFileInfo implements fs.FileInfo for a memoryFileSystem entry.
type memFileInfo struct {
	name string
	size int64
}

func (fi *memFileInfo) Name() string       { return fi.name }
func (fi *memFileInfo) Size() int64        { return fi.size }
func (fi *memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi *memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *memFileInfo) IsDir() bool        { return false }
func (fi *memFileInfo) Sys() any           { return nil }
