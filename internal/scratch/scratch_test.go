package scratch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveAndRemove(t *testing.T) {
	t.Parallel()
	m, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := m.Save("post1", "img.png", []byte("bytes"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte("bytes"), data)

	require.NoError(t, m.Remove("post1"))
	_, err = os.Stat(filepath.Dir(path))
	require.True(t, os.IsNotExist(err))
}

func TestSaveCreatesNestedDirectories(t *testing.T) {
	t.Parallel()
	m, err := New(t.TempDir())
	require.NoError(t, err)

	path, err := m.Save("post2", filepath.Join("a", "b.png"), []byte("x"))
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestSaveRejectsPathTraversal(t *testing.T) {
	t.Parallel()
	m, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = m.Save("post3", "../../etc/passwd", []byte("x"))
	require.Error(t, err)
}

func TestRemoveMissingDirIsNoError(t *testing.T) {
	t.Parallel()
	m, err := New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Remove("never-existed"))
}

func TestNewCreatesRoot(t *testing.T) {
	t.Parallel()
	root := filepath.Join(t.TempDir(), "deeper", "scratch")
	_, err := New(root)
	require.NoError(t, err)
	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRejectsFileRoot(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "afile")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	_, err := New(path)
	require.Error(t, err)
}

func TestFilenameFromURL(t *testing.T) {
	t.Parallel()
	name, err := FilenameFromURL("https://i.imgur.com/abc123.png")
	require.NoError(t, err)
	require.Equal(t, "abc123.png", name)

	_, err = FilenameFromURL("https://i.imgur.com")
	require.Error(t, err)
}
