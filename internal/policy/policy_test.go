package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentResolvesRelativeToProject(t *testing.T) {
	e, err := New([]string{"/srv/docs"})
	require.NoError(t, err)

	project, doc, err := e.Document("/srv/docs/thesis/", "chapters/intro.typ")
	require.NoError(t, err)
	assert.Equal(t, "/srv/docs/thesis", project)
	assert.Equal(t, "/srv/docs/thesis/chapters/intro.typ", doc)
}

func TestDocumentRejectsEscapes(t *testing.T) {
	e, err := New([]string{"/srv/docs"})
	require.NoError(t, err)

	_, _, err = e.Document("/srv/docs/thesis", "../../../etc/passwd")
	assert.ErrorIs(t, err, ErrForbiddenPath)

	_, _, err = e.Document("/srv/docs-evil", "main.typ")
	assert.ErrorIs(t, err, ErrForbiddenPath)

	_, _, err = e.Document("relative/project", "main.typ")
	assert.ErrorIs(t, err, ErrRelativeProject)
}

func TestNoRootsAllowsAnyAbsolutePath(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)

	_, doc, err := e.Document("/anywhere", "/elsewhere/main.typ")
	require.NoError(t, err)
	assert.Equal(t, "/elsewhere/main.typ", doc)
	assert.Empty(t, e.AllowedRoots())
}
