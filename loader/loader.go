// Package loader implements load() of shared helper modules: plain
// Starlark files, conventionally named "*.star", that factor common
// Builder/helper-function definitions out of individual REMAKEFILEs.
//
// Unlike a Bazel .bzl label, a remake load() path is just a filesystem
// path (relative to the loading file's directory, or absolute) — there
// is no external-repository concept here, so resolution collapses to a
// single case. Caching and cycle detection follow the same shape as a
// Bazel .bzl loader: modules are loaded at most once, and a load stack
// carried on the thread detects circular load() chains.
package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.starlark.net/starlark"
)

const (
	threadKeyLoader     = "remake:loader"
	threadKeyCurrentPkg = "remake:current_package"
	threadKeyLoadStack  = "remake:load_stack"
)

// FileSystem abstracts file system operations so tests can substitute an
// in-memory tree instead of touching disk.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
	Join(elem ...string) string
	Abs(path string) (string, error)
}

// Loader loads a Starlark source file by path.
type Loader interface {
	Load(path string) ([]byte, error)
}

// ModuleLoader resolves and loads helper modules with caching and cycle
// detection, implementing the thread.Load hook that go.starlark.net
// calls for every load() statement.
type ModuleLoader interface {
	Load(thread *starlark.Thread, module string) (starlark.StringDict, error)
}

// OSFileSystem implements FileSystem using the operating system, rooted
// at a directory.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates an OSFileSystem rooted at root ("." if empty).
func NewOSFileSystem(root string) *OSFileSystem {
	if root == "" {
		root = "."
	}
	return &OSFileSystem{root: root}
}

func (f *OSFileSystem) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.root, path)
}

func (f *OSFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(f.resolve(path)) }
func (f *OSFileSystem) Stat(path string) (fs.FileInfo, error) { return os.Stat(f.resolve(path)) }
func (f *OSFileSystem) Join(elem ...string) string            { return filepath.Join(elem...) }
func (f *OSFileSystem) Abs(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(f.resolve(path))
}

// FileSystemLoader implements Loader over a FileSystem.
type FileSystemLoader struct {
	fs FileSystem
}

// NewFileSystemLoader wraps fs as a Loader.
func NewFileSystemLoader(fs FileSystem) *FileSystemLoader { return &FileSystemLoader{fs: fs} }

func (l *FileSystemLoader) Load(path string) ([]byte, error) { return l.fs.ReadFile(path) }

// SetModuleLoader stores l in thread for use by load() statements.
func SetModuleLoader(thread *starlark.Thread, l ModuleLoader) {
	thread.SetLocal(threadKeyLoader, l)
}

// SetCurrentDir records the directory a build/helper file was loaded
// from, used to resolve relative load() paths.
func SetCurrentDir(thread *starlark.Thread, dir string) {
	thread.SetLocal(threadKeyCurrentPkg, dir)
}

func getCurrentDir(thread *starlark.Thread) string {
	if d := thread.Local(threadKeyCurrentPkg); d != nil {
		return d.(string)
	}
	return ""
}

// loadEntry is a cached module, or one currently being loaded: ready is
// closed once globals/err are populated, letting a second concurrent
// load() of the same module block on the first instead of re-reading
// the file.
type loadEntry struct {
	globals starlark.StringDict
	err     error
	ready   chan struct{}
}

// FileModuleLoader loads helper modules from a FileSystem, caching each
// by its resolved absolute path.
type FileModuleLoader struct {
	fs          FileSystem
	predeclared starlark.StringDict

	mu    sync.Mutex
	cache map[string]*loadEntry
}

// FileModuleLoaderOption configures a FileModuleLoader.
type FileModuleLoaderOption func(*FileModuleLoader)

// WithPredeclared sets the predeclared environment helper modules
// execute in. Typically the same builtins a REMAKEFILE sees, so a
// helper module can define Builders using the same API.
func WithPredeclared(predeclared starlark.StringDict) FileModuleLoaderOption {
	return func(l *FileModuleLoader) { l.predeclared = predeclared }
}

// NewFileModuleLoader creates a loader reading from fs.
func NewFileModuleLoader(fs FileSystem, opts ...FileModuleLoaderOption) *FileModuleLoader {
	l := &FileModuleLoader{
		fs:          fs,
		predeclared: make(starlark.StringDict),
		cache:       make(map[string]*loadEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load implements ModuleLoader. module is a relative or absolute
// filesystem path to a ".star" helper file.
func (l *FileModuleLoader) Load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	path, err := l.resolvePath(thread, module)
	if err != nil {
		return nil, fmt.Errorf("load(%q): %w", module, err)
	}

	stack := l.getLoadStack(thread)
	for _, entry := range stack {
		if entry == path {
			return nil, &CycleError{Module: module, Stack: append(append([]string(nil), stack...), path)}
		}
	}

	l.mu.Lock()
	entry, ok := l.cache[path]
	if !ok {
		entry = &loadEntry{ready: make(chan struct{})}
		l.cache[path] = entry
		l.mu.Unlock()

		globals, loadErr := l.loadFile(thread, path, stack)
		entry.globals = globals
		entry.err = loadErr
		close(entry.ready)
	} else {
		l.mu.Unlock()
		<-entry.ready
	}

	if entry.err != nil {
		return nil, entry.err
	}
	return entry.globals, nil
}

func (l *FileModuleLoader) resolvePath(thread *starlark.Thread, module string) (string, error) {
	if !strings.HasSuffix(module, ".star") {
		return "", fmt.Errorf("helper module path must end in .star, got %q", module)
	}
	if filepath.IsAbs(module) {
		return filepath.Clean(module), nil
	}
	return l.fs.Join(getCurrentDir(thread), module), nil
}

func (l *FileModuleLoader) loadFile(thread *starlark.Thread, path string, parentStack []string) (starlark.StringDict, error) {
	source, err := l.fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	childThread := &starlark.Thread{
		Name:  path,
		Print: thread.Print,
		Load:  l.Load,
	}
	SetModuleLoader(childThread, l)
	SetCurrentDir(childThread, filepath.Dir(path))
	l.setLoadStack(childThread, append(append([]string(nil), parentStack...), path))

	globals, err := starlark.ExecFile(childThread, path, source, l.predeclared)
	if err != nil {
		return nil, fmt.Errorf("executing %s: %w", path, err)
	}
	return globals, nil
}

func (l *FileModuleLoader) getLoadStack(thread *starlark.Thread) []string {
	if stack := thread.Local(threadKeyLoadStack); stack != nil {
		return stack.([]string)
	}
	return nil
}

func (l *FileModuleLoader) setLoadStack(thread *starlark.Thread, stack []string) {
	thread.SetLocal(threadKeyLoadStack, stack)
}

// ClearCache drops every cached module. Useful for tests and for a
// future "watch" mode that re-evaluates on file change.
func (l *FileModuleLoader) ClearCache() {
	l.mu.Lock()
	l.cache = make(map[string]*loadEntry)
	l.mu.Unlock()
}

// CycleError reports a circular load() chain.
type CycleError struct {
	Module string
	Stack  []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("load cycle: %v", e.Stack)
}

// MakeLoadFunc adapts a ModuleLoader to the func signature
// starlark.Thread.Load expects.
func MakeLoadFunc(l ModuleLoader) func(*starlark.Thread, string) (starlark.StringDict, error) {
	return func(thread *starlark.Thread, module string) (starlark.StringDict, error) {
		return l.Load(thread, module)
	}
}
