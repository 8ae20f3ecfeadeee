package starlarkfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/registry"
)

func writeRemakefile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "REMAKEFILE")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEvalFileRegistersRuleFromTemplateBuilder(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
cc = Builder("cc -c $< -o $@")
Rule(targets = "out.o", deps = "in.c", builder = cc, name = "compile")
AddTarget("out.o")
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	r, ok := reg.RuleByName("compile")
	require.True(t, ok)
	assert.Equal(t, []artifact.Artifact{artifact.NewFileTarget(dir, "out.o")}, r.Targets)
	assert.Equal(t, []artifact.Artifact{artifact.NewFileDep(dir, "in.c")}, r.Deps)
	assert.Equal(t, "cc -c "+filepath.Join(dir, "in.c")+" -o "+filepath.Join(dir, "out.o"), r.Action().Command())

	require.Len(t, reg.Requested(), 1)
	assert.Equal(t, artifact.NewFileTarget(dir, "out.o"), reg.Requested()[0])
}

func TestEvalFileSupportsListTargetsAndDeps(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
gen = Builder("gen $^ -> $@")
Rule(targets = ["a.out", "b.out"], deps = ["x.in", "y.in"], builder = gen)
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	require.Len(t, reg.Rules(), 1)
	r := reg.Rules()[0]
	assert.Len(t, r.Targets, 2)
	assert.Len(t, r.Deps, 2)
}

func TestEvalFileRegistersPatternRule(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
cc = Builder("cc -c $< -o $@")
PatternRule(target = "%.o", deps = "%.c", builder = cc, name = "compile-pattern")
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	require.Len(t, reg.PatternRules(), 1)
	target := artifact.NewFileTarget(dir, "foo.o")
	rl, ok := reg.PatternRules()[0].Matches(target)
	require.True(t, ok)
	assert.Equal(t, artifact.NewFileDep(dir, "foo.c"), rl.Deps[0])
}

func TestEvalFileAllTargetsEnumeratesAndAddTarget(t *testing.T) {
	// With x.foo and y.foo on disk,
	// PatternRule(target="*.bar", deps="*.foo", ...) followed by
	// AddTarget(r.allTargets) requests both x.bar and y.bar, sorted.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.foo"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.foo"), nil, 0o644))
	path := writeRemakefile(t, dir, `
touch = Builder("touch $@")
r = PatternRule(target = "*.bar", deps = "*.foo", builder = touch, name = "bars")
AddTarget(r.allTargets)
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	require.Len(t, reg.Requested(), 2)
	assert.Equal(t, artifact.NewFileTarget(dir, "x.bar"), reg.Requested()[0])
	assert.Equal(t, artifact.NewFileTarget(dir, "y.bar"), reg.Requested()[1])
}

func TestEvalFilePatternRuleExcludeNarrowsAllTargets(t *testing.T) {
	// Same as above but exclude=["x.bar"] drops x.bar from allTargets.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.foo"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.foo"), nil, 0o644))
	path := writeRemakefile(t, dir, `
touch = Builder("touch $@")
r = PatternRule(target = "%.bar", deps = "%.foo", builder = touch, name = "bars", exclude = ["x.bar"])
AddTarget(r.allTargets)
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	require.Len(t, reg.Requested(), 1)
	assert.Equal(t, artifact.NewFileTarget(dir, "y.bar"), reg.Requested()[0])
}

func TestEvalFileSupportsVirtualTargetsAndEphemeralBuilders(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
echo = Builder("echo done", ephemeral = True)
Rule(targets = VirtualTarget("all"), deps = [], builder = echo, name = "all")
AddVirtualTarget("all")
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	r, ok := reg.RuleByName("all")
	require.True(t, ok)
	assert.True(t, r.Targets[0].IsVirtual())
	assert.True(t, r.Builder.Ephemeral)

	require.Len(t, reg.Requested(), 1)
	assert.True(t, reg.Requested()[0].IsVirtual())
}

func TestEvalFileSupportsNativeCallableBuilder(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
def do_copy(deps, targets, kwargs):
    pass

copy = Builder(do_copy)
Rule(targets = "out.txt", deps = "in.txt", builder = copy, name = "copy")
`)
	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))

	r, ok := reg.RuleByName("copy")
	require.True(t, ok)
	require.NotNil(t, r.Builder.Native)
	assert.NoError(t, r.Builder.Native([]string{"in.txt"}, []string{"out.txt"}, nil))
}
