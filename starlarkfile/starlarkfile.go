// Package starlarkfile binds the data model (artifact, builder, rule,
// pattern) and the per-file registry to a Starlark predeclared
// environment: an Evaluator owns the predeclared StringDict and exposes
// EvalFile, which execs a REMAKEFILE against it with the active
// Registry carried as thread-local state.
package starlarkfile

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
	"github.com/remake-build/remake/loader"
	"github.com/remake-build/remake/pattern"
	"github.com/remake-build/remake/registry"
	"github.com/remake-build/remake/rule"
)

const threadKeyRegistry = "remake:registry"

// SubBuilder evaluates a nested build file for SubReMakeFile(subdir).
// Implemented by subbuild.Orchestrator; declared here (rather than
// imported from subbuild) so starlarkfile and subbuild never import one
// another — subbuild instead takes an Evaluator method as its own
// EvalFile callback type. Wiring both directions together is cmd/remake's
// job.
type SubBuilder interface {
	SubBuild(parent *registry.Registry, subdir string) (*registry.Registry, error)
}

// Options configures an Evaluator.
type Options struct {
	ModuleLoader loader.ModuleLoader
	SubBuilder   SubBuilder
	PrintHandler func(msg string)
}

// Evaluator evaluates REMAKEFILEs and helper modules against remake's
// predeclared API.
type Evaluator struct {
	moduleLoader loader.ModuleLoader
	subBuilder   SubBuilder
	printHandler func(string)
	predeclared  starlark.StringDict
}

// New constructs an Evaluator.
func New(opts Options) *Evaluator {
	e := &Evaluator{
		moduleLoader: opts.ModuleLoader,
		subBuilder:   opts.SubBuilder,
		printHandler: opts.PrintHandler,
	}
	e.predeclared = e.makePredeclared()
	return e
}

// EvalFile reads and executes the REMAKEFILE at path, registering
// whatever it declares into reg. Its signature matches
// subbuild.EvalFile, so it plugs directly into subbuild.New.
func (e *Evaluator) EvalFile(reg *registry.Registry, path string) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	thread := &starlark.Thread{
		Name: path,
		Print: func(_ *starlark.Thread, msg string) {
			if e.printHandler != nil {
				e.printHandler(msg)
			}
		},
	}
	thread.SetLocal(threadKeyRegistry, reg)
	if e.moduleLoader != nil {
		thread.Load = loader.MakeLoadFunc(e.moduleLoader)
		loader.SetModuleLoader(thread, e.moduleLoader)
	}
	loader.SetCurrentDir(thread, reg.Cwd)

	_, err = starlark.ExecFile(thread, path, source, e.predeclared)
	if err != nil {
		return fmt.Errorf("evaluating %s: %w", path, err)
	}
	return nil
}

func getRegistry(thread *starlark.Thread) (*registry.Registry, error) {
	reg, ok := thread.Local(threadKeyRegistry).(*registry.Registry)
	if !ok || reg == nil {
		return nil, fmt.Errorf("internal error: no registry bound to thread")
	}
	return reg, nil
}

func (e *Evaluator) makePredeclared() starlark.StringDict {
	return starlark.StringDict{
		"Builder":          starlark.NewBuiltin("Builder", builderBuiltin),
		"Rule":             starlark.NewBuiltin("Rule", ruleBuiltin),
		"PatternRule":      starlark.NewBuiltin("PatternRule", patternRuleBuiltin),
		"VirtualTarget":    starlark.NewBuiltin("VirtualTarget", virtualBuiltin),
		"VirtualDep":       starlark.NewBuiltin("VirtualDep", virtualBuiltin),
		"AddTarget":        starlark.NewBuiltin("AddTarget", addTargetBuiltin),
		"AddVirtualTarget": starlark.NewBuiltin("AddVirtualTarget", addVirtualTargetBuiltin),
		"SubReMakeFile":    starlark.NewBuiltin("SubReMakeFile", e.subReMakeFileBuiltin()),
		"glob":             starlark.NewBuiltin("glob", globBuiltin),
	}
}

// Predeclared exposes the builtin environment REMAKEFILEs execute in, so
// a module loader can give load()ed helper files the same API (minus the
// registry-bound builtins, which fail outside a build-file thread).
func (e *Evaluator) Predeclared() starlark.StringDict { return e.predeclared }

// SetModuleLoader installs the loader used for load() statements. Split
// out of New because the loader itself typically wants this Evaluator's
// Predeclared as the environment for helper modules, which doesn't exist
// until New returns.
func (e *Evaluator) SetModuleLoader(l loader.ModuleLoader) { e.moduleLoader = l }

// starlarkArtifact wraps an artifact.Artifact as a Starlark value, so
// VirtualTarget("name") can be placed directly in a targets/deps list
// alongside bare path strings.
type starlarkArtifact struct {
	art artifact.Artifact
}

var _ starlark.Value = (*starlarkArtifact)(nil)

func (v *starlarkArtifact) String() string       { return v.art.String() }
func (v *starlarkArtifact) Type() string         { return "Artifact" }
func (v *starlarkArtifact) Freeze()              {}
func (v *starlarkArtifact) Truth() starlark.Bool { return starlark.True }
func (v *starlarkArtifact) Hash() (uint32, error) { return starlark.String(v.art.Key()).Hash() }

func virtualBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	return &starlarkArtifact{art: artifact.NewVirtualTarget(name)}, nil
}

// starlarkBuilder wraps a *builder.Builder as a Starlark value, the
// return value of Builder(...), passed as Rule(builder=...).
type starlarkBuilder struct {
	b *builder.Builder
}

var _ starlark.Value = (*starlarkBuilder)(nil)

func (v *starlarkBuilder) String() string        { return fmt.Sprintf("<Builder %s>", v.b.Name) }
func (v *starlarkBuilder) Type() string          { return "Builder" }
func (v *starlarkBuilder) Freeze()               {}
func (v *starlarkBuilder) Truth() starlark.Bool  { return starlark.True }
func (v *starlarkBuilder) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: Builder") }

func builderBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		action    starlark.Value
		ephemeral starlark.Bool
		name      string
	)
	if err := starlark.UnpackArgs("Builder", args, kwargs,
		"action", &action,
		"ephemeral?", &ephemeral,
		"name?", &name,
	); err != nil {
		return nil, err
	}

	var bl *builder.Builder
	switch a := action.(type) {
	case starlark.String:
		bl = builder.NewTemplate(name, string(a))
	case starlark.Callable:
		bl = builder.NewNative(name, nativeFuncFromCallable(a))
	default:
		return nil, fmt.Errorf("%s: action must be a string template or a callable, got %s", b.Name(), action.Type())
	}
	bl.Ephemeral = bool(ephemeral)
	return &starlarkBuilder{b: bl}, nil
}

// nativeFuncFromCallable adapts a Starlark callable into a
// builder.NativeFunc: the callable receives (deps, targets, kwargs) as
// Starlark lists/dict.
func nativeFuncFromCallable(fn starlark.Callable) builder.NativeFunc {
	return func(deps, targets []string, kwargs map[string]string) error {
		thread := &starlark.Thread{Name: "native-action"}
		depList := make([]starlark.Value, len(deps))
		for i, d := range deps {
			depList[i] = starlark.String(d)
		}
		targetList := make([]starlark.Value, len(targets))
		for i, t := range targets {
			targetList[i] = starlark.String(t)
		}
		kwDict := starlark.NewDict(len(kwargs))
		for k, v := range kwargs {
			_ = kwDict.SetKey(starlark.String(k), starlark.String(v))
		}
		args := starlark.Tuple{starlark.NewList(depList), starlark.NewList(targetList), kwDict}
		_, err := starlark.Call(thread, fn, args, nil)
		return err
	}
}

func ruleBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reg, err := getRegistry(thread)
	if err != nil {
		return nil, err
	}

	var (
		targets    starlark.Value
		deps       starlark.Value
		builderVal *starlarkBuilder
		name       string
	)
	if err := starlark.UnpackArgs("Rule", args, kwargs,
		"targets", &targets,
		"deps?", &deps,
		"builder", &builderVal,
		"name?", &name,
	); err != nil {
		return nil, err
	}

	// UnpackArgs stops enforcing "required" at the first optional
	// parameter, so a missing builder= arrives here as a nil pointer.
	if builderVal == nil {
		return nil, fmt.Errorf("%s: missing argument for builder", b.Name())
	}

	targetArts, err := toArtifacts(reg.Cwd, targets, true)
	if err != nil {
		return nil, fmt.Errorf("%s: targets: %w", b.Name(), err)
	}
	depArts, err := toArtifacts(reg.Cwd, deps, false)
	if err != nil {
		return nil, fmt.Errorf("%s: deps: %w", b.Name(), err)
	}

	rl, err := rule.New(name, targetArts, depArts, builderVal.b, nil)
	if err != nil {
		return nil, err
	}
	reg.AddRule(rl)
	return starlark.None, nil
}

func patternRuleBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reg, err := getRegistry(thread)
	if err != nil {
		return nil, err
	}

	var (
		targets    starlark.Value
		deps       starlark.Value
		builderVal *starlarkBuilder
		name       string
		exclude    starlark.Value
	)
	// PatternRule's first keyword is singular "target" (one wildcarded
	// target pattern per rule), unlike Rule's plural "targets".
	if err := starlark.UnpackArgs("PatternRule", args, kwargs,
		"target", &targets,
		"deps?", &deps,
		"builder", &builderVal,
		"name?", &name,
		"exclude?", &exclude,
	); err != nil {
		return nil, err
	}

	if builderVal == nil {
		return nil, fmt.Errorf("%s: missing argument for builder", b.Name())
	}

	targetPatterns, err := toStrings(targets)
	if err != nil {
		return nil, fmt.Errorf("%s: targets: %w", b.Name(), err)
	}
	depPatterns, err := toStrings(deps)
	if err != nil {
		return nil, fmt.Errorf("%s: deps: %w", b.Name(), err)
	}
	excludeArts, err := toArtifacts(reg.Cwd, exclude, true)
	if err != nil {
		return nil, fmt.Errorf("%s: exclude: %w", b.Name(), err)
	}

	pr, err := pattern.NewWithExclude(reg.Cwd, name, targetPatterns, depPatterns, builderVal.b, nil, excludeArts)
	if err != nil {
		return nil, err
	}
	reg.AddPatternRule(pr)
	return &starlarkPatternRule{p: pr}, nil
}

// starlarkPatternRule is the handle PatternRule(...) returns: a Starlark
// value exposing the `allTargets` property, so a REMAKEFILE can write
// `AddTarget(r.allTargets)`. Enumeration touches the filesystem each
// time it's read — build-file evaluation is not a pure operation.
type starlarkPatternRule struct {
	p *pattern.PatternRule
}

var _ starlark.Value = (*starlarkPatternRule)(nil)
var _ starlark.HasAttrs = (*starlarkPatternRule)(nil)

func (v *starlarkPatternRule) String() string       { return fmt.Sprintf("<PatternRule %s>", v.p.Name) }
func (v *starlarkPatternRule) Type() string         { return "PatternRule" }
func (v *starlarkPatternRule) Freeze()              {}
func (v *starlarkPatternRule) Truth() starlark.Bool { return starlark.True }
func (v *starlarkPatternRule) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: PatternRule")
}

func (v *starlarkPatternRule) Attr(name string) (starlark.Value, error) {
	if name != "allTargets" {
		return nil, nil
	}
	targets, err := v.p.AllTargets()
	if err != nil {
		return nil, fmt.Errorf("PatternRule %q: allTargets: %w", v.p.Name, err)
	}
	items := make([]starlark.Value, len(targets))
	for i, t := range targets {
		items[i] = starlark.String(t.Path())
	}
	return starlark.NewList(items), nil
}

func (v *starlarkPatternRule) AttrNames() []string { return []string{"allTargets"} }

func addTargetBuiltin(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reg, err := getRegistry(thread)
	if err != nil {
		return nil, err
	}
	var target starlark.Value
	if err := starlark.UnpackArgs("AddTarget", args, kwargs, "target", &target); err != nil {
		return nil, err
	}
	arts, err := toArtifacts(reg.Cwd, target, true)
	if err != nil {
		return nil, err
	}
	for _, a := range arts {
		reg.AddTarget(a)
	}
	return starlark.None, nil
}

func addVirtualTargetBuiltin(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	reg, err := getRegistry(thread)
	if err != nil {
		return nil, err
	}
	var name string
	if err := starlark.UnpackArgs("AddVirtualTarget", args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	reg.AddTarget(artifact.NewVirtualTarget(name))
	return starlark.None, nil
}

func (e *Evaluator) subReMakeFileBuiltin() func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		reg, err := getRegistry(thread)
		if err != nil {
			return nil, err
		}
		var subdir string
		if err := starlark.UnpackArgs("SubReMakeFile", args, kwargs, "subdir", &subdir); err != nil {
			return nil, err
		}
		if e.subBuilder == nil {
			return nil, fmt.Errorf("SubReMakeFile: no sub-build orchestrator configured")
		}
		if _, err := e.subBuilder.SubBuild(reg, subdir); err != nil {
			return nil, err
		}
		return starlark.None, nil
	}
}

// toArtifacts coerces a Starlark value that may be a bare string, a
// single starlarkArtifact (from VirtualTarget/VirtualDep), or a list
// mixing either, into a slice of artifact.Artifact. This is the single
// point where the scalar-or-list convenience of the REMAKEFILE surface
// is resolved, before any Artifact exists.
func toArtifacts(cwd string, v starlark.Value, isTarget bool) ([]artifact.Artifact, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	values, err := asList(v)
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, 0, len(values))
	for _, item := range values {
		a, err := toArtifact(cwd, item, isTarget)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func toArtifact(cwd string, v starlark.Value, isTarget bool) (artifact.Artifact, error) {
	switch val := v.(type) {
	case starlark.String:
		if isTarget {
			return artifact.NewFileTarget(cwd, string(val)), nil
		}
		return artifact.NewFileDep(cwd, string(val)), nil
	case *starlarkArtifact:
		return val.art, nil
	default:
		return artifact.Artifact{}, fmt.Errorf("expected a path string or Virtual artifact, got %s", v.Type())
	}
}

// asList normalizes a scalar-or-list Starlark value into a slice,
// wrapping a bare scalar as a single-element slice.
func asList(v starlark.Value) ([]starlark.Value, error) {
	switch val := v.(type) {
	case *starlark.List:
		out := make([]starlark.Value, 0, val.Len())
		iter := val.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			out = append(out, item)
		}
		return out, nil
	case starlark.Tuple:
		return append([]starlark.Value(nil), val...), nil
	default:
		return []starlark.Value{val}, nil
	}
}

func toStrings(v starlark.Value) ([]string, error) {
	values, err := asList(v)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, item := range values {
		s, ok := item.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("expected a string, got %s", item.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}
