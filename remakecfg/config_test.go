package remakecfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsDefaultsWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, "REMAKEFILE", cfg.Build.File)
}

func TestLoadParsesTomlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[build]
file = "BUILDFILE"

[log]
level = "debug"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "BUILDFILE", cfg.Build.File)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestEnvOverridesTakePrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[build]
file = "BUILDFILE"
`), 0o644))
	t.Setenv("REMAKE_FILE", "ENVFILE")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ENVFILE", cfg.Build.File)
}
