package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

type FileOptions struct {
	// Include holds filepath.Match patterns tested against base names. An
	// empty list includes everything.
	Include []string
	// Extensions is an allowlist such as ".txt" or "md". Empty allows all.
	Extensions []string
	// MaxFileBytes skips larger files. Zero means no limit.
	MaxFileBytes int64
	// Workers bounds concurrent reads. Zero means 4.
	Workers int
	Logger  *slog.Logger
}

// FileSource walks a directory tree. A root that is a regular file yields
// itself and a missing root yields nothing.
type FileSource struct {
	root   string
	opts   FileOptions
	exts   map[string]bool
	logger *slog.Logger
}

func NewFileSource(root string, opts FileOptions) (*FileSource, error) {
	for _, p := range opts.Include {
		if _, err := filepath.Match(p, ""); err != nil {
			return nil, apperrors.Configf("include pattern %q: %v", p, err)
		}
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving source root %q: %w", root, err)
	}
	s := &FileSource{
		root:   abs,
		opts:   opts,
		logger: logger.OrDefault(opts.Logger, "file-source").With("root", abs),
	}
	if len(opts.Extensions) > 0 {
		s.exts = make(map[string]bool, len(opts.Extensions))
		for _, e := range opts.Extensions {
			e = strings.ToLower(e)
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			s.exts[e] = true
		}
	}
	return s, nil
}

func (s *FileSource) Root() string { return s.root }

// Walk lists matching files in lexical order and reads them in batches on
// a bounded worker pool. fn sees files in listing order.
func (s *FileSource) Walk(ctx context.Context, fn func(File) error) (Stats, error) {
	var stats Stats
	paths, err := s.list(ctx, &stats)
	if err != nil {
		return stats, err
	}

	batchSize := s.opts.Workers * 4
	for start := 0; start < len(paths); start += batchSize {
		batch := paths[start:min(start+batchSize, len(paths))]
		files := make([]*File, len(batch))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.opts.Workers)
		for i, p := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				f, err := s.read(p)
				if err != nil {
					s.logger.Warn("skipping file", "path", p, "error", err)
					return nil
				}
				files[i] = f
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		for _, f := range files {
			if f == nil {
				stats.Skipped++
				continue
			}
			if err := fn(*f); err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += int64(len(f.Text))
		}
	}
	s.logger.Info("walk complete", "files", stats.Files, "skipped", stats.Skipped, "bytes", stats.Bytes)
	return stats, nil
}

// list collects candidate paths. Directories that cannot be listed are
// skipped and counted.
func (s *FileSource) list(ctx context.Context, stats *Stats) ([]string, error) {
	info, err := os.Stat(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("source root does not exist")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat source root: %w", err)
	}
	if !info.IsDir() {
		return []string{s.root}, nil
	}

	var paths []string
	err = filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == s.root {
				return err
			}
			s.logger.Warn("skipping unreadable entry", "path", p, "error", err)
			stats.Skipped++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && s.matches(d.Name()) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	return paths, nil
}

func (s *FileSource) matches(name string) bool {
	if s.exts != nil && !s.exts[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	if len(s.opts.Include) == 0 {
		return true
	}
	return slices.ContainsFunc(s.opts.Include, func(p string) bool {
		ok, _ := filepath.Match(p, name)
		return ok
	})
}

func (s *FileSource) read(p string) (*File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if s.opts.MaxFileBytes > 0 && info.Size() > s.opts.MaxFileBytes {
		return nil, fmt.Errorf("size %d exceeds limit %d", info.Size(), s.opts.MaxFileBytes)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, errors.New("content is not valid UTF-8")
	}
	return &File{
		Path:    p,
		Name:    filepath.Base(p),
		Text:    normalizeLines(string(data)),
		ModTime: info.ModTime(),
	}, nil
}
