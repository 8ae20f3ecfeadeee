// Package subbuild implements sub-build composition: a REMAKEFILE can
// call SubReMakeFile(subdir) to evaluate another build file in a nested
// Registry. The Orchestrator owns every Registry created this way and
// answers cross-registry File-artifact lookups so a parent rule can
// depend on a file a child build file produces, while Virtual artifacts
// stay isolated per Registry (see the resolver package's doc comment for
// why the split falls on File/Virtual).
//
// Orchestrator depends only on registry and artifact/rule, not on
// starlarkfile: evaluating a build file is injected as a callback
// (EvalFile) so the two packages never import each other.
package subbuild

import (
	"fmt"
	"path/filepath"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/registry"
	"github.com/remake-build/remake/rule"
)

// EvalFile evaluates the build file at path, registering its rules into
// reg. Supplied by starlarkfile; kept as a function value here to avoid
// an import cycle.
type EvalFile func(reg *registry.Registry, path string) error

// Orchestrator tracks every Registry created while evaluating a build
// and its sub-builds.
type Orchestrator struct {
	eval       EvalFile
	buildfile  string
	root       *registry.Registry
	byCwd      map[string]*registry.Registry
	registries []*registry.Registry
}

// New constructs an Orchestrator. buildfile is the conventional build
// file name (e.g. "REMAKEFILE") resolved inside each sub-directory.
func New(eval EvalFile, buildfile string) *Orchestrator {
	return &Orchestrator{
		eval:      eval,
		buildfile: buildfile,
		byCwd:     make(map[string]*registry.Registry),
	}
}

// LoadRoot evaluates the top-level build file in rootDir and returns its
// Registry.
func (o *Orchestrator) LoadRoot(rootDir string) (*registry.Registry, error) {
	reg := registry.New(rootDir)
	o.root = reg
	o.track(reg)
	path := filepath.Join(rootDir, o.buildfile)
	if err := o.eval(reg, path); err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", path, err)
	}
	return reg, nil
}

// SubBuild evaluates subdir's build file (relative to parent.Cwd) in a
// new child Registry, registers it under parent, and returns it. This is
// what the starlarkfile binding for SubReMakeFile(subdir) calls.
func (o *Orchestrator) SubBuild(parent *registry.Registry, subdir string) (*registry.Registry, error) {
	childCwd := artifact.Normalize(parent.Cwd, subdir)
	if existing, ok := o.byCwd[childCwd]; ok {
		return existing, nil
	}
	child := parent.NewChild(childCwd)
	o.track(child)
	path := filepath.Join(childCwd, o.buildfile)
	if err := o.eval(child, path); err != nil {
		return nil, &SubBuildError{Dir: childCwd, Err: err}
	}
	return child, nil
}

// SubBuildError wraps a failure that originated while evaluating a
// nested build file, annotated with the sub-directory it came from.
type SubBuildError struct {
	Dir string
	Err error
}

func (e *SubBuildError) Error() string { return fmt.Sprintf("sub-build %s: %v", e.Dir, e.Err) }

func (e *SubBuildError) Unwrap() error { return e.Err }

func (o *Orchestrator) track(reg *registry.Registry) {
	o.byCwd[reg.Cwd] = reg
	o.registries = append(o.registries, reg)
}

// ExternalLookup returns a resolver.ExternalLookup that searches every
// tracked Registry except from (already searched by the caller) for a
// File-kind producer. Search order follows registration order, which is
// depth-first since SubBuild runs (and so tracks its child) the moment
// the Starlark evaluator reaches the SubReMakeFile() call.
func (o *Orchestrator) ExternalLookup(from *registry.Registry) func(artifact.Artifact) (*rule.Rule, bool) {
	return func(target artifact.Artifact) (*rule.Rule, bool) {
		if target.IsVirtual() {
			return nil, false
		}
		for _, reg := range o.registries {
			if reg == from {
				continue
			}
			rl, err := reg.FindProducer(target)
			if err == nil && rl != nil {
				return rl, true
			}
		}
		return nil, false
	}
}

// Registries returns every Registry created so far, root first.
func (o *Orchestrator) Registries() []*registry.Registry {
	return append([]*registry.Registry(nil), o.registries...)
}

// Root returns the top-level Registry, or nil if LoadRoot hasn't run.
func (o *Orchestrator) Root() *registry.Registry { return o.root }
