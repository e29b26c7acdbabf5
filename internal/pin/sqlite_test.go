package pin

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreCRUD(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "pins.db"))
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("/a")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Set("/a", "/a/main.typ"))
	require.NoError(t, s.Set("/b", "/b/thesis.typ"))
	require.NoError(t, s.Set("/a", "/a/other.typ"))

	got, err = s.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, "/a/other.typ", got)

	all, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"/a": "/a/other.typ", "/b": "/b/thesis.typ"}, all)
	assert.Equal(t, []string{"/a", "/b"}, Projects(all))

	require.NoError(t, s.Clear("/a"))
	got, err = s.Get("/a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("/a", "/a/main.typ"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, "/a/main.typ", got)
}

func TestMemoryStoreListIsACopy(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set("/a", "/a/main.typ"))
	all, err := s.List()
	require.NoError(t, err)
	all["/a"] = "mutated"
	got, _ := s.Get("/a")
	assert.Equal(t, "/a/main.typ", got)
}
