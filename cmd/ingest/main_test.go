package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDocuments(t *testing.T) {
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	write("a.txt", "plain text")
	write("b.md", "# markdown")
	write("c.HTML", "<html><body>hi</body></html>")
	write("d.pdf", "binary, ignored")
	write(".hidden/e.txt", "skipped with its directory")
	write("sub/f.txt", "nested")

	files, err := collectDocuments(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "c.HTML"),
		filepath.Join(dir, "sub", "f.txt"),
	}, files)
}

func TestCollectDocuments_MissingDir(t *testing.T) {
	_, err := collectDocuments(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}
