package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remake-build/remake/artifact"
)

func TestExpandSubstitutesAutomaticVariables(t *testing.T) {
	targets := []artifact.Artifact{artifact.NewFileTarget("/p", "out.o")}
	deps := []artifact.Artifact{
		artifact.NewFileDep("/p", "a.c"),
		artifact.NewFileDep("/p", "b.c"),
	}
	got := expand("cc -c $< -o $@ # all: $^", deps, targets)
	assert.Contains(t, got, "out.o")
	assert.Contains(t, got, "a.c")
	assert.Contains(t, got, "/p/a.c /p/b.c")
}

// TestExpandTemplateRoundtrip pins the exact expansion: for action
// "$< $@ $^" and a rule with targets [t1,t2] and deps [d1,d2], the
// command must equal "d1 t1 t2 d1 d2" exactly, each name spelled as its
// normalized absolute path.
func TestExpandTemplateRoundtrip(t *testing.T) {
	targets := []artifact.Artifact{
		artifact.NewFileTarget("/p", "t1"),
		artifact.NewFileTarget("/p", "t2"),
	}
	deps := []artifact.Artifact{
		artifact.NewFileDep("/p", "d1"),
		artifact.NewFileDep("/p", "d2"),
	}
	got := expand("$< $@ $^", deps, targets)
	assert.Equal(t, "/p/d1 /p/t1 /p/t2 /p/d1 /p/d2", got)
}

func TestExpandMissingDepsYieldEmptyString(t *testing.T) {
	targets := []artifact.Artifact{artifact.NewFileTarget("/p", "out")}
	got := expand("[$<][$^]", nil, targets)
	assert.Equal(t, "[][]", got)
}

func TestActionRunDispatchesToRunnerForTemplateBuilder(t *testing.T) {
	b := NewTemplate("compile", "cc -o $@ $^")
	action := &Action{
		Builder: b,
		Deps:    []artifact.Artifact{artifact.NewFileDep("/p", "a.c")},
		Targets: []artifact.Artifact{artifact.NewFileTarget("/p", "a.o")},
	}
	runner := NewRecordingRunner()
	require.NoError(t, action.Run(runner))
	require.Len(t, runner.Commands, 1)
	assert.Contains(t, runner.Commands[0], "a.o")
}

func TestActionRunInvokesNativeFuncDirectly(t *testing.T) {
	var gotDeps, gotTargets []string
	b := NewNative("copy", func(deps, targets []string, kwargs map[string]string) error {
		gotDeps = deps
		gotTargets = targets
		return nil
	})
	action := &Action{
		Builder: b,
		Deps:    []artifact.Artifact{artifact.NewFileDep("/p", "a.txt")},
		Targets: []artifact.Artifact{artifact.NewFileTarget("/p", "b.txt")},
	}
	runner := NewRecordingRunner()
	require.NoError(t, action.Run(runner))
	assert.Empty(t, runner.Commands)
	require.Len(t, gotDeps, 1)
	require.Len(t, gotTargets, 1)
}

func TestRecordingRunnerReturnsConfiguredFailure(t *testing.T) {
	runner := NewRecordingRunner()
	runner.Fail["boom"] = assert.AnError
	assert.ErrorIs(t, runner.Run("boom"), assert.AnError)
}
