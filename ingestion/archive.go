package ingestion

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// maxTranscriptSize bounds a single extracted transcript.
const maxTranscriptSize = 32 << 20

// Transcript is one text file read from an upload.
type Transcript struct {
	Filename string
	Text     string
}

// ReadArchive reads the transcripts in a zip archive or a directory, in
// archive order (lexical order for directories). Only .txt and .md files
// are read; hidden entries, __MACOSX metadata and blank files are ignored.
func ReadArchive(src string) ([]Transcript, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return readDir(src)
	}
	return readZip(src)
}

func readZip(src string) ([]Transcript, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer r.Close()

	var out []Transcript
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isTranscript(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, maxTranscriptSize+1))
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		if len(data) > maxTranscriptSize {
			return nil, fmt.Errorf("%s: %w", f.Name, ErrTranscriptTooLarge)
		}
		if t, ok := newTranscript(f.Name, data); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func readDir(root string) ([]Transcript, error) {
	var out []Transcript
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && ignored(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTranscript(rel) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxTranscriptSize {
			return fmt.Errorf("%s: %w", rel, ErrTranscriptTooLarge)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		if t, ok := newTranscript(rel, data); ok {
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newTranscript(name string, data []byte) (Transcript, bool) {
	text := strings.ToValidUTF8(string(data), "")
	text = strings.TrimPrefix(text, "\ufeff")
	if strings.TrimSpace(text) == "" {
		return Transcript{}, false
	}
	return Transcript{Filename: name, Text: text}, true
}

// isTranscript reports whether an archive entry is a transcript to ingest.
func isTranscript(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if ignored(part) {
			return false
		}
	}
	switch strings.ToLower(path.Ext(name)) {
	case ".txt", ".md":
		return true
	}
	return false
}

func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || name == "__MACOSX"
}
