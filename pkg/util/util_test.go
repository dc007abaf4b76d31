package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileExists(t *testing.T) {
	tempDir := t.TempDir()

	existingFile := filepath.Join(tempDir, "exists.txt")
	os.WriteFile(existingFile, []byte{}, 0644)
	nonExistingFile := filepath.Join(tempDir, "non-exists.txt")

	assert.True(t, FileExists(existingFile))
	assert.False(t, FileExists(nonExistingFile))
}

func TestIsFileEmpty(t *testing.T) {
	tempDir := t.TempDir()

	emptyFile := filepath.Join(tempDir, "empty.txt")
	os.WriteFile(emptyFile, []byte{}, 0644)
	nonEmptyFile := filepath.Join(tempDir, "non-empty.txt")
	os.WriteFile(nonEmptyFile, []byte("not empty"), 0644)
	nonExistingFile := filepath.Join(tempDir, "non-existing.txt")

	assert.True(t, IsFileEmpty(emptyFile))
	assert.False(t, IsFileEmpty(nonEmptyFile))
	assert.True(t, IsFileEmpty(nonExistingFile))
}

func TestListFileRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	frames := []string{
		filepath.Join(tempDir, "dsv", "p1", "cam1", "large", "20240101090000.jpg"),
		filepath.Join(tempDir, "dsv", "p1", "cam1", "large", "20240103130000.jpg"),
	}
	listPath := filepath.Join(tempDir, "exports", "image_list_abc.txt")

	require.NoError(t, WriteListFile(listPath, frames))

	raw, err := os.ReadFile(listPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "file '"+filepath.ToSlash(frames[0])+"'", lines[0])

	got, err := ReadListFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, frames, got)
}

func TestReadListFileSkipsOtherDirectives(t *testing.T) {
	listPath := filepath.Join(t.TempDir(), "list.txt")
	os.WriteFile(listPath, []byte("ffconcat version 1.0\nfile '/a/b.jpg'\nduration 0.04\n\nfile '/a/c.jpg'\n"), 0644)

	got, err := ReadListFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.FromSlash("/a/b.jpg"), filepath.FromSlash("/a/c.jpg")}, got)
}
