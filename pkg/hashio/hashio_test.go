package hashio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdbot/sentinel/pkg/hashio"
)

func TestHashBytes_Prefixed(t *testing.T) {
	h := hashio.HashBytes([]byte("hello"))
	assert.Regexp(t, `^sha256:[0-9a-f]{64}$`, h)
	assert.Equal(t, "sha256:"+hashio.HashHex([]byte("hello")), h)
}

func TestHashFile_MatchesHashBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	sum, err := hashio.HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, hashio.HashHex([]byte("content")), sum)
}

func TestCollectDir_SortedSlashPaths(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"b.txt", "a/nested.txt", "a/deep/file.txt"} {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(rel), 0o644))
	}

	entries, err := hashio.CollectDir(root)
	require.NoError(t, err)

	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.RelPath
	}
	assert.Equal(t, []string{"a/deep/file.txt", "a/nested.txt", "b.txt"}, paths)
}

// The same content must always produce byte-identical archives, regardless
// of insertion order or when the archive is written.
func TestWriteArchiveBytes_Deterministic(t *testing.T) {
	files := map[string][]byte{
		"z.json": []byte(`{"z":1}`),
		"a.json": []byte(`{"a":1}`),
		"m/n.txt": []byte("nested"),
	}

	pathA := filepath.Join(t.TempDir(), "a.tar.gz")
	pathB := filepath.Join(t.TempDir(), "b.tar.gz")
	require.NoError(t, hashio.WriteArchiveBytes(pathA, files))
	require.NoError(t, hashio.WriteArchiveBytes(pathB, files))

	a, err := os.ReadFile(pathA)
	require.NoError(t, err)
	b, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestWriteArchive_MatchesWriteArchiveBytes(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "x.txt"), []byte("payload"), 0o600))

	archiveA := filepath.Join(t.TempDir(), "a.tar.gz")
	require.NoError(t, hashio.WriteArchive(archiveA, []hashio.ArchiveEntry{
		{RelPath: "x.txt", AbsPath: filepath.Join(root, "x.txt")},
	}))

	archiveB := filepath.Join(t.TempDir(), "b.tar.gz")
	require.NoError(t, hashio.WriteArchiveBytes(archiveB, map[string][]byte{
		"x.txt": []byte("payload"),
	}))

	a, err := os.ReadFile(archiveA)
	require.NoError(t, err)
	b, err := os.ReadFile(archiveB)
	require.NoError(t, err)
	assert.Equal(t, a, b, "file modes and mtimes must not leak into archives")
}
