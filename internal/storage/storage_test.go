package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyDir(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestNewIsSideEffectFree(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	st, err := New(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, st.Dir())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st, err := New(t.TempDir())
	require.NoError(t, err)

	doc := []byte(`[{"id":"files"}]`)
	require.NoError(t, st.Save("servers", doc))

	got, err := st.Load("servers")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	// No stray temp file after the atomic rename.
	_, err = os.Stat(filepath.Join(st.Dir(), "servers.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadMissingDefaultsToEmptyArray(t *testing.T) {
	st, err := New(t.TempDir())
	require.NoError(t, err)

	got, err := st.Load("never-written")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), got)
}

func TestSaveOverwrites(t *testing.T) {
	st, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Save("meta", []byte(`{"v":1}`)))
	require.NoError(t, st.Save("meta", []byte(`{"v":2}`)))

	got, err := st.Load("meta")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(got))
}

func TestDelete(t *testing.T) {
	st, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, st.Save("meta", []byte(`{}`)))
	require.NoError(t, st.Delete("meta"))

	got, err := st.Load("meta")
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), got)

	require.NoError(t, st.Delete("meta"), "deleting a missing document is a no-op")
}

func TestServersDirCreatesKindSubdir(t *testing.T) {
	st, err := New(t.TempDir())
	require.NoError(t, err)

	for _, kind := range []string{"npm", "github"} {
		dir, err := st.ServersDir(kind)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(st.Dir(), "mcp_servers", kind), dir)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
