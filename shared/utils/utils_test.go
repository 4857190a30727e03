package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashContent(t *testing.T) {
	// FNV-1a 64 offset basis for empty input
	assert.Equal(t, "cbf29ce484222325", HashContent(nil))
	assert.Equal(t, HashString("abc"), HashContent([]byte("abc")))
	assert.NotEqual(t, HashString("abc"), HashString("abd"))
	assert.Len(t, HashString("anything at all"), 16)
}

func TestRepoIDForPath(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(dir, link))

	assert.Equal(t, RepoIDForPath(dir), RepoIDForPath(dir+string(filepath.Separator)))
	assert.Equal(t, RepoIDForPath(dir), RepoIDForPath(link))
	assert.NotEqual(t, RepoIDForPath(dir), RepoIDForPath(t.TempDir()))
}

func TestNormalizeRepoPath(t *testing.T) {
	assert.Equal(t, "src/main.go", NormalizeRepoPath("./src/main.go"))
	assert.Equal(t, "src/main.go", NormalizeRepoPath("src\\main.go"))
	assert.Equal(t, "a.txt", NormalizeRepoPath("././a.txt"))
}
