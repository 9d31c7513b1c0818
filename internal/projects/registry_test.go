package projects

// Registry tests - loading, lookup and hook document path resolution.

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "projects.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestRegistry_Load verifies entries become resolvable by name.
func TestRegistry_Load(t *testing.T) {
	path := writeRegistry(t, `{
		"projects": [
			{"name": "webapp", "path": "/srv/webapp", "env": {"NODE_ENV": "production"}, "config": {"lint": true}},
			{"name": "api", "path": "/srv/api"}
		]
	}`)

	r, err := Load(path)
	require.NoError(t, err)

	info, ok := r.Resolve("webapp")
	require.True(t, ok)
	assert.Equal(t, "/srv/webapp", info.Path)
	assert.Equal(t, "production", info.Env["NODE_ENV"])
	assert.Equal(t, true, info.Config["lint"])

	assert.ElementsMatch(t, []string{"webapp", "api"}, r.Names())

	_, ok = r.Resolve("unknown")
	assert.False(t, ok)
}

// TestRegistry_MissingFile verifies graceful degradation to an empty
// registry.
func TestRegistry_MissingFile(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

// TestRegistry_EmptyPath verifies the no-registry deployment.
func TestRegistry_EmptyPath(t *testing.T) {
	r, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, r.Names())
}

// TestRegistry_CorruptFile verifies an operator typo is an error, not a
// silent empty set.
func TestRegistry_CorruptFile(t *testing.T) {
	path := writeRegistry(t, `{"projects": [`)
	_, err := Load(path)
	assert.Error(t, err)
}

// TestRegistry_SkipsIncompleteEntries verifies entries missing name or
// path are dropped with the rest preserved.
func TestRegistry_SkipsIncompleteEntries(t *testing.T) {
	path := writeRegistry(t, `{
		"projects": [
			{"name": "good", "path": "/srv/good"},
			{"name": "", "path": "/srv/anon"},
			{"name": "pathless"}
		]
	}`)

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"good"}, r.Names())
}

// TestRegistry_HookDocPath verifies resolution into the project's own
// directory tree.
func TestRegistry_HookDocPath(t *testing.T) {
	path := writeRegistry(t, `{"projects": [{"name": "webapp", "path": "/srv/webapp"}]}`)
	r, err := Load(path)
	require.NoError(t, err)

	docPath, err := r.HookDocPath("webapp")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/webapp", HookDirName, "hooks.json"), docPath)

	_, err = r.HookDocPath("ghost")
	assert.Error(t, err)
}

// TestRegistry_Reload verifies edits to the file are picked up.
func TestRegistry_Reload(t *testing.T) {
	path := writeRegistry(t, `{"projects": [{"name": "a", "path": "/srv/a"}]}`)
	r, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, r.Names())

	require.NoError(t, os.WriteFile(path, []byte(`{"projects": [{"name": "b", "path": "/srv/b"}]}`), 0o644))
	require.NoError(t, r.Reload())
	assert.Equal(t, []string{"b"}, r.Names())
}
