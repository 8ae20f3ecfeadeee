package starlarkfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remake-build/remake/registry"
)

func TestGlobBuiltinListsMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.c"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), nil, 0o644))
	path := writeRemakefile(t, dir, `
srcs = glob(["*.c"])
AddTarget(srcs)
`)

	ev := New(Options{})
	reg := registry.New(dir)
	require.NoError(t, ev.EvalFile(reg, path))
	require.Len(t, reg.Requested(), 2)
}

func TestGlobBuiltinRejectsForbiddenPatterns(t *testing.T) {
	dir := t.TempDir()
	path := writeRemakefile(t, dir, `
glob(["../escape.c"])
`)

	ev := New(Options{})
	reg := registry.New(dir)
	err := ev.EvalFile(reg, path)
	assert.Error(t, err)
}
