package pin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type brokenStore struct{ MemoryStore }

func (brokenStore) Get(string) (string, error) { return "", errors.New("disk on fire") }

func TestResolveWithoutPinReturnsRequestedPath(t *testing.T) {
	r := NewResolver(NewMemoryStore(), nil)
	assert.Equal(t, "/a/b.typ", r.Resolve("/a", "/a/b.typ"))
}

func TestResolveWithPinReturnsPinnedMain(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set("/a", "/a/main.typ")
	r := NewResolver(store, nil)

	for _, requested := range []string{"/a/b.typ", "/a/chapters/c.typ", "/a/main.typ"} {
		assert.Equal(t, "/a/main.typ", r.Resolve("/a", requested))
	}
	assert.Equal(t, "/other/x.typ", r.Resolve("/other", "/other/x.typ"), "pins are per project")
}

func TestResolveIgnoresBlankPin(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set("/a", "   ")
	assert.Equal(t, "/a/b.typ", NewResolver(store, nil).Resolve("/a", "/a/b.typ"))
}

func TestResolveFallsBackOnStoreError(t *testing.T) {
	assert.Equal(t, "/a/b.typ", NewResolver(&brokenStore{}, nil).Resolve("/a", "/a/b.typ"))
}
