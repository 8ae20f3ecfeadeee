// Package builder implements the Builder value: an action template or a
// native callback, bound against a set of targets and dependencies to
// produce a concrete, runnable command.
package builder

import (
	"fmt"
	"strings"

	"github.com/remake-build/remake/artifact"
)

// Kind distinguishes how a Builder's action is expressed.
type Kind int

const (
	// TemplateKind expands a shell command line, substituting the $@ $^
	// $< automatic-variable tokens from the bound targets/deps.
	TemplateKind Kind = iota
	// NativeKind invokes a Go callback instead of spawning a process.
	NativeKind
)

// NativeFunc is a Go-side action. It receives the resolved deps/targets
// paths (not Artifacts — the builder layer is artifact-agnostic about
// anything beyond path/name strings) and any builder kwargs.
type NativeFunc func(deps, targets []string, kwargs map[string]string) error

// Builder is a named, reusable action. Ephemeral builders leave no
// registry trace, most useful for one-off phony/virtual work.
type Builder struct {
	Name      string
	Kind      Kind
	Template  string
	Native    NativeFunc
	Ephemeral bool
}

// NewTemplate constructs a shell-template Builder.
func NewTemplate(name, template string) *Builder {
	return &Builder{Name: name, Kind: TemplateKind, Template: template}
}

// NewNative constructs a native-callback Builder.
func NewNative(name string, fn NativeFunc) *Builder {
	return &Builder{Name: name, Kind: NativeKind, Native: fn}
}

// Action is a builder bound to concrete targets and dependencies, ready
// to run.
type Action struct {
	Builder *Builder
	Deps    []artifact.Artifact
	Targets []artifact.Artifact
	Kwargs  map[string]string
}

// Describe renders a human-readable summary of the action, for the
// console reporter and dry-run output. It never executes anything.
func (a *Action) Describe() string {
	if a.Builder.Kind == NativeKind {
		return fmt.Sprintf("<native:%s> %s", a.Builder.Name, joinKeys(a.Targets))
	}
	return a.Command()
}

// Command expands the template against the bound deps/targets. Only
// meaningful for TemplateKind builders.
func (a *Action) Command() string {
	return expand(a.Builder.Template, a.Deps, a.Targets)
}

// Run executes the action via runner for template builders, or invokes
// the native callback directly for native builders.
func (a *Action) Run(runner CommandRunner) error {
	if a.Builder.Kind == NativeKind {
		return a.Builder.Native(pathsOf(a.Deps), pathsOf(a.Targets), a.Kwargs)
	}
	cmd := a.Command()
	if cmd == "" {
		return nil
	}
	return runner.Run(cmd)
}

// CommandRunner spawns a shell command. Abstracted so tests can record
// invocations instead of touching the real filesystem/process table.
type CommandRunner interface {
	Run(command string) error
}

func pathsOf(arts []artifact.Artifact) []string {
	out := make([]string, len(arts))
	for i, a := range arts {
		out[i] = a.Key()
	}
	return out
}

func joinKeys(arts []artifact.Artifact) string {
	return strings.Join(pathsOf(arts), " ")
}

// expand substitutes the automatic-variable tokens:
//
//	$@  all targets, space separated
//	$^  all dependencies, space separated
//	$<  first dependency only
//
// No other variables are defined. A missing dep for $< (or an empty dep/
// target list for $^/$@) expands to the empty string.
func expand(template string, deps, targets []artifact.Artifact) string {
	r := strings.NewReplacer(
		"$@", joinKeys(targets),
		"$^", joinKeys(deps),
		"$<", firstKey(deps),
	)
	return r.Replace(template)
}

func firstKey(arts []artifact.Artifact) string {
	if len(arts) == 0 {
		return ""
	}
	return arts[0].Key()
}
