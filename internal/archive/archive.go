// Package archive unpacks submission zip payloads and normalizes their
// layout. Students routinely zip a wrapper directory (or several), so any
// chain of single-child root directories is collapsed to the real content
// root before files are written out.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrInvalidArchive indicates the payload could not be read as a zip.
	ErrInvalidArchive = errors.New("invalid zip archive")
	// ErrUnsafePath indicates an entry tries to escape its extraction root.
	ErrUnsafePath = errors.New("archive entry has an unsafe path")
)

// Entry is one extracted archive file.
type Entry struct {
	Path string
	Data []byte
}

// IsZip reports whether the payload looks like a zip archive.
func IsZip(data []byte) bool {
	mime := mimetype.Detect(data)
	return mime.Is("application/zip") || mime.Is("application/x-zip-compressed")
}

// Extract reads every regular file of the archive. Entries with absolute or
// parent-escaping paths reject the whole archive.
func Extract(data []byte) ([]Entry, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	var entries []Entry
	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}

		name := path.Clean(strings.ReplaceAll(file.Name, `\`, "/"))
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("%w: %q", ErrUnsafePath, file.Name)
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %q: %v", ErrInvalidArchive, file.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %q: %v", ErrInvalidArchive, file.Name, err)
		}

		entries = append(entries, Entry{Path: name, Data: content})
	}
	return entries, nil
}

// Flatten collapses any chain of single-child root directories: as long as
// every entry lives under the same first path segment, that segment is
// stripped. A zip containing wrapper/inner/real.txt and wrapper/inner/b.txt
// flattens to real.txt and b.txt only if no entry sits beside the wrappers.
func Flatten(entries []Entry) []Entry {
	for {
		root := ""
		shared := true
		for _, e := range entries {
			dir, _, found := strings.Cut(e.Path, "/")
			if !found {
				shared = false
				break
			}
			if root == "" {
				root = dir
			} else if dir != root {
				shared = false
				break
			}
		}
		if !shared || root == "" || len(entries) == 0 {
			return entries
		}

		for i := range entries {
			entries[i].Path = strings.TrimPrefix(entries[i].Path, root+"/")
		}
	}
}
