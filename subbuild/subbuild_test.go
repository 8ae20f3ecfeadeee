package subbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remake-build/remake/artifact"
	"github.com/remake-build/remake/builder"
	"github.com/remake-build/remake/registry"
	"github.com/remake-build/remake/rule"
)

// fakeEval installs rules/targets directly into a Registry instead of
// actually parsing a build file, standing in for starlarkfile.Evaluator
// without depending on it.
func fakeEval(setup map[string]func(*registry.Registry)) EvalFile {
	return func(reg *registry.Registry, path string) error {
		if f, ok := setup[path]; ok {
			f(reg)
		}
		return nil
	}
}

func TestSubBuildTracksChildRegistry(t *testing.T) {
	eval := fakeEval(nil)
	o := New(eval, "REMAKEFILE")
	root, err := o.LoadRoot("/root")
	require.NoError(t, err)

	child, err := o.SubBuild(root, "lib")
	require.NoError(t, err)
	assert.Equal(t, "/root/lib", child.Cwd)
	assert.Len(t, o.Registries(), 2)
}

func TestExternalLookupFindsFileProducerInSiblingRegistry(t *testing.T) {
	libOut := artifact.NewFileTarget("/root/lib", "lib.a")
	eval := fakeEval(map[string]func(*registry.Registry){
		"/root/lib/REMAKEFILE": func(reg *registry.Registry) {
			r, err := rule.New("lib", []artifact.Artifact{libOut}, nil, builder.NewTemplate("ar", "ar rcs $@"), nil)
			require.NoError(t, err)
			reg.AddRule(r)
		},
	})
	o := New(eval, "REMAKEFILE")
	root, err := o.LoadRoot("/root")
	require.NoError(t, err)
	_, err = o.SubBuild(root, "lib")
	require.NoError(t, err)

	lookup := o.ExternalLookup(root)
	rl, ok := lookup(artifact.NewFileDep("/root/lib", "lib.a"))
	require.True(t, ok)
	assert.True(t, rl.Produces(libOut))
}

func TestExternalLookupNeverMatchesVirtualArtifacts(t *testing.T) {
	eval := fakeEval(map[string]func(*registry.Registry){
		"/root/lib/REMAKEFILE": func(reg *registry.Registry) {
			r, err := rule.New("all", []artifact.Artifact{artifact.NewVirtualTarget("all")}, nil,
				builder.NewTemplate("b", "true"), nil)
			require.NoError(t, err)
			reg.AddRule(r)
		},
	})
	o := New(eval, "REMAKEFILE")
	root, err := o.LoadRoot("/root")
	require.NoError(t, err)
	_, err = o.SubBuild(root, "lib")
	require.NoError(t, err)

	lookup := o.ExternalLookup(root)
	_, ok := lookup(artifact.NewVirtualTarget("all"))
	assert.False(t, ok, "virtual targets in a child registry must stay invisible to the parent")
}

func TestSubBuildWrapsChildEvaluationFailure(t *testing.T) {
	eval := func(reg *registry.Registry, path string) error {
		if path == "/root/lib/REMAKEFILE" {
			return assert.AnError
		}
		return nil
	}
	o := New(eval, "REMAKEFILE")
	root, err := o.LoadRoot("/root")
	require.NoError(t, err)

	_, err = o.SubBuild(root, "lib")
	require.Error(t, err)
	var subErr *SubBuildError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "/root/lib", subErr.Dir)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSubBuildIsIdempotentForSameSubdir(t *testing.T) {
	calls := 0
	eval := func(reg *registry.Registry, path string) error {
		calls++
		return nil
	}
	o := New(eval, "REMAKEFILE")
	root, err := o.LoadRoot("/root")
	require.NoError(t, err)

	first, err := o.SubBuild(root, "lib")
	require.NoError(t, err)
	second, err := o.SubBuild(root, "lib")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, calls, "root + one lib evaluation, not two")
}
