// Package artifact implements the tagged Artifact value described in the
// build engine's data model: a file or a virtual name, normalized at
// construction time so that two artifacts naming the same thing compare
// equal regardless of how they were spelled by the user.
package artifact

import (
	"path/filepath"
	"strings"
)

// Kind distinguishes a filesystem artifact from a virtual (never-on-disk)
// one. Whether an artifact was declared in a rule's target list or its dep
// list is a declaration-site role, not part of its identity: a path named
// as a dep of one rule must compare equal to the same path named as the
// target of another, or the dependency graph could never join across
// rules. So Kind carries exactly the File/Virtual distinction, and the
// Target/Dep vocabulary survives only in the constructor names below.
type Kind int

const (
	// FileKind is a path on disk.
	FileKind Kind = iota
	// VirtualKind is an opaque name with no filesystem representation.
	VirtualKind
)

func (k Kind) String() string {
	if k == VirtualKind {
		return "virtual"
	}
	return "file"
}

// Artifact is a normalized, comparable reference to a target or dependency.
// The zero value is not a valid Artifact.
type Artifact struct {
	kind Kind
	key  string
}

// NewFileTarget builds a file artifact from a path, normalized against cwd.
func NewFileTarget(cwd, path string) Artifact { return newFile(cwd, path) }

// NewFileDep builds a file artifact from a path, normalized against cwd.
func NewFileDep(cwd, path string) Artifact { return newFile(cwd, path) }

// NewVirtualTarget builds a virtual artifact from an opaque name.
func NewVirtualTarget(name string) Artifact { return Artifact{kind: VirtualKind, key: name} }

// NewVirtualDep builds a virtual artifact from an opaque name.
func NewVirtualDep(name string) Artifact { return Artifact{kind: VirtualKind, key: name} }

func newFile(cwd, path string) Artifact {
	return Artifact{kind: FileKind, key: Normalize(cwd, path)}
}

// Normalize resolves path to an absolute form against cwd, with trailing
// separators stripped. Symlinks are never resolved.
func Normalize(cwd, path string) string {
	if path == "" {
		return cwd
	}
	p := path
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	} else {
		p = filepath.Clean(p)
	}
	for len(p) > 1 && strings.HasSuffix(p, string(filepath.Separator)) {
		p = p[:len(p)-1]
	}
	return p
}

// Kind reports whether this is a file or virtual artifact.
func (a Artifact) Kind() Kind { return a.kind }

// Path returns the normalized filesystem path. Only meaningful for file
// artifacts.
func (a Artifact) Path() string { return a.key }

// Name returns the virtual name. Only meaningful for virtual artifacts.
func (a Artifact) Name() string { return a.key }

// Key returns the identity string used for equality, hashing, and map
// keys: the normalized path for file artifacts, the bare name for virtual
// ones.
func (a Artifact) Key() string { return a.key }

// IsVirtual reports whether this artifact has no filesystem representation.
func (a Artifact) IsVirtual() bool { return a.kind == VirtualKind }

// Valid reports whether a was constructed through one of the New* funcs.
func (a Artifact) Valid() bool { return a.key != "" }

func (a Artifact) String() string {
	if a.kind == VirtualKind {
		return ":" + a.key
	}
	return a.key
}
