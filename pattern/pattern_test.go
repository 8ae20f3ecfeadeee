package pattern

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
)

func TestNewRejectsTargetPatternsWithNoStem(t *testing.T) {
	_, err := New("/p", "compile", []string{"out.o"}, nil, builder.NewTemplate("cc", "cc"), nil)
	assert.Error(t, err)
}

func TestNewRejectsPatternWithMultipleWildcards(t *testing.T) {
	_, err := New("/p", "compile", []string{"%.o"}, []string{"%.c.%"}, builder.NewTemplate("cc", "cc"), nil)
	var malformed *MalformedPatternError
	assert.ErrorAs(t, err, &malformed)
}

func TestNewRejectsTargetPatternWithTwoStarWildcards(t *testing.T) {
	_, err := New("/p", "compile", []string{"*.o.*"}, []string{"%.c"}, builder.NewTemplate("cc", "cc"), nil)
	var malformed *MalformedPatternError
	assert.ErrorAs(t, err, &malformed)
}

func TestStarWildcardIsEquivalentToPercent(t *testing.T) {
	// "*" and "%" are interchangeable spellings of the stem wildcard.
	p, err := New("/p", "bars", []string{"*.bar"}, []string{"*.foo"}, builder.NewTemplate("touch", "touch $@"), nil)
	require.NoError(t, err)

	stem, ok := p.Stem("/p/x.bar")
	require.True(t, ok)
	assert.Equal(t, "x", stem)

	r := p.Instantiate("x")
	assert.Equal(t, []artifact.Artifact{artifact.NewFileTarget("/p", "x.bar")}, r.Targets)
	assert.Equal(t, []artifact.Artifact{artifact.NewFileDep("/p", "x.foo")}, r.Deps)
}

func TestAllTargetsWithStarWildcardPatterns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.foo"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.foo"), nil, 0o644))

	p, err := New(dir, "bars", []string{"*.bar"}, []string{"*.foo"}, builder.NewTemplate("touch", "touch $@"), nil)
	require.NoError(t, err)

	targets, err := p.AllTargets()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, filepath.Join(dir, "x.bar"), targets[0].Path())
	assert.Equal(t, filepath.Join(dir, "y.bar"), targets[1].Path())
}

func TestStemExtractsWildcardPortion(t *testing.T) {
	p, err := New("/p", "compile", []string{"%.o"}, []string{"%.c"}, builder.NewTemplate("cc", "cc"), nil)
	require.NoError(t, err)

	stem, ok := p.Stem("/p/foo.o")
	require.True(t, ok)
	assert.Equal(t, "foo", stem)

	_, ok = p.Stem("/p/foo.txt")
	assert.False(t, ok)
}

func TestInstantiateSubstitutesStemIntoDeps(t *testing.T) {
	p, err := New("/p", "compile", []string{"%.o"}, []string{"%.c", "common.h"}, builder.NewTemplate("cc", "cc -c $< -o $@"), nil)
	require.NoError(t, err)

	r := p.Instantiate("foo")
	require.Len(t, r.Deps, 2)
	assert.Equal(t, artifact.NewFileDep("/p", "foo.c"), r.Deps[0])
	assert.Equal(t, artifact.NewFileDep("/p", "common.h"), r.Deps[1])
	assert.Equal(t, []artifact.Artifact{artifact.NewFileTarget("/p", "foo.o")}, r.Targets)
}

func TestMatchesPatternWithDirectoryComponent(t *testing.T) {
	// obj/%.o built from src/%.c: the directory components live in the
	// pattern, not the stem.
	p, err := New("/proj", "objects", []string{"obj/%.o"}, []string{"src/%.c"}, builder.NewTemplate("cc", "cc -c $< -o $@"), nil)
	require.NoError(t, err)

	r, ok := p.Matches(artifact.NewFileTarget("/proj", "obj/foo.o"))
	require.True(t, ok)
	assert.Equal(t, []artifact.Artifact{artifact.NewFileDep("/proj", "src/foo.c")}, r.Deps)

	_, ok = p.Matches(artifact.NewFileTarget("/proj", "src/foo.o"))
	assert.False(t, ok, "a target outside the pattern's directory must not match")
}

func TestAllTargetsWithDirectoryComponentPatterns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "a.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "b.c"), nil, 0o644))

	p, err := New(dir, "objects", []string{"obj/%.o"}, []string{"src/%.c"}, builder.NewTemplate("cc", "cc"), nil)
	require.NoError(t, err)

	targets, err := p.AllTargets()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, filepath.Join(dir, "obj", "a.o"), targets[0].Path())
	assert.Equal(t, filepath.Join(dir, "obj", "b.o"), targets[1].Path())
}

func TestMatchesRejectsVirtualTargets(t *testing.T) {
	p, err := New("/p", "compile", []string{"%.o"}, []string{"%.c"}, builder.NewTemplate("cc", "cc"), nil)
	require.NoError(t, err)

	_, ok := p.Matches(artifact.NewVirtualTarget("all"))
	assert.False(t, ok)
}

func TestAllTargetsGlobsTheDepPatternNotTheTarget(t *testing.T) {
	// AllTargets globs the *dep* pattern against the filesystem (targets
	// like a.o don't exist yet) and substitutes the matched stem into
	// the target pattern.
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.txt"), nil, 0o644))

	p, err := New(dir, "objects", []string{"%.o"}, []string{"%.c"}, builder.NewTemplate("cc", "cc"), nil)
	require.NoError(t, err)

	targets, err := p.AllTargets()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, filepath.Join(dir, "a.o"), targets[0].Path())
	assert.Equal(t, filepath.Join(dir, "b.o"), targets[1].Path())
}

func TestAllTargetsSubtractsExclude(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.foo"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "y.foo"), nil, 0o644))

	excluded := artifact.NewFileTarget(dir, "x.bar")
	p, err := NewWithExclude(dir, "bars", []string{"%.bar"}, []string{"%.foo"},
		builder.NewTemplate("touch", "touch $@"), nil, []artifact.Artifact{excluded})
	require.NoError(t, err)

	targets, err := p.AllTargets()
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, filepath.Join(dir, "y.bar"), targets[0].Path())
}

func TestMatchesHonorsExclude(t *testing.T) {
	dir := t.TempDir()
	excluded := artifact.NewFileTarget(dir, "x.bar")
	p, err := NewWithExclude(dir, "bars", []string{"%.bar"}, []string{"%.foo"},
		builder.NewTemplate("touch", "touch $@"), nil, []artifact.Artifact{excluded})
	require.NoError(t, err)

	_, ok := p.Matches(artifact.NewFileTarget(dir, "x.bar"))
	assert.False(t, ok)
	_, ok = p.Matches(artifact.NewFileTarget(dir, "y.bar"))
	assert.True(t, ok)
}
