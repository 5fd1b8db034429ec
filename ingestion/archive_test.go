package ingestion

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadArchive_Zip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, entry := range []struct{ name, body string }{
		{"episodes/", ""},
		{"episodes/01-intro.txt", "Host: welcome."},
		{"episodes/02-growth.md", "# Growth\n\nGuest: keep going."},
		{"__MACOSX/episodes/._01-intro.txt", "junk"},
		{".DS_Store", "junk"},
		{"episodes/.hidden.txt", "secret"},
		{"episodes/cover.pdf", "binary"},
		{"episodes/blank.txt", "  \n\t "},
	} {
		w, err := zw.Create(entry.name)
		require.NoError(t, err)
		_, err = w.Write([]byte(entry.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	transcripts, err := ReadArchive(path)
	require.NoError(t, err)
	require.Len(t, transcripts, 2)
	assert.Equal(t, "episodes/01-intro.txt", transcripts[0].Filename)
	assert.Equal(t, "Host: welcome.", transcripts[0].Text)
	assert.Equal(t, "episodes/02-growth.md", transcripts[1].Filename)
}

func TestReadArchive_Directory(t *testing.T) {
	dir := writeArchive(t, map[string]string{
		"b.txt":          "second",
		"a.TXT":          "\ufefffirst",
		".git/notes.txt": "ignored",
		"sub/c.md":       "third",
		"sub/d.docx":     "ignored",
	})

	transcripts, err := ReadArchive(dir)
	require.NoError(t, err)
	require.Len(t, transcripts, 3)
	assert.Equal(t, "a.TXT", transcripts[0].Filename)
	assert.Equal(t, "first", transcripts[0].Text)
	assert.Equal(t, "b.txt", transcripts[1].Filename)
	assert.Equal(t, "sub/c.md", transcripts[2].Filename)
}

func TestReadArchive_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	_, err := ReadArchive(path)
	assert.Error(t, err)

	_, err = ReadArchive(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestIsTranscript(t *testing.T) {
	assert.True(t, isTranscript("a.txt"))
	assert.True(t, isTranscript("dir/b.MD"))
	assert.False(t, isTranscript("c.pdf"))
	assert.False(t, isTranscript("__MACOSX/a.txt"))
	assert.False(t, isTranscript(".a.txt"))
}
