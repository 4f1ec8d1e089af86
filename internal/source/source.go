// Package source enumerates the documents a rebuild indexes.
package source

import (
	"context"
	"strings"
	"time"
)

// File is one document handed to the indexer.
type File struct {
	// Path is absolute for files on disk and the configured path column
	// for database rows.
	Path    string
	Name    string
	Text    string
	ModTime time.Time
}

// Stats summarizes a walk. Skipped counts entries that matched the filters
// but could not be turned into a File.
type Stats struct {
	Files   int
	Skipped int
	Bytes   int64
}

// Source produces documents. Walk calls fn once per document from a single
// goroutine; an error from fn stops the walk and is returned.
type Source interface {
	Walk(ctx context.Context, fn func(File) error) (Stats, error)
}

// normalizeLines terminates every line with a single "\n".
func normalizeLines(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return s
}
