// Package rebuild replaces the contents of an index with the documents of a
// source in a single commit.
package rebuild

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/source"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/tracing"
)

// Event announces a committed rebuild.
type Event struct {
	Index       string    `json:"index"`
	Generation  uint64    `json:"generation"`
	Added       int       `json:"added"`
	Skipped     int       `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

// Notifier is told about every successful rebuild.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type Options struct {
	Logger   *slog.Logger
	Metrics  metrics.Recorder
	Notifier Notifier
	// MaxBufferedBytes is passed to the writer.
	MaxBufferedBytes int64
	Now              func() time.Time
}

type Report struct {
	Added      int
	Skipped    int
	Generation uint64
	Duration   time.Duration
	// Notified is false when there was no Notifier or it failed. The
	// rebuild is committed either way.
	Notified bool
}

// Document builds the indexed form of f. updateTime holds the modification
// time in Unix milliseconds.
func Document(f source.File) index.Document {
	updated := ""
	if !f.ModTime.IsZero() {
		updated = strconv.FormatInt(f.ModTime.UnixMilli(), 10)
	}
	return index.NewDocument(
		index.TextField(index.FieldFileName, f.Name),
		index.TextField(index.FieldFilePath, f.Path),
		index.TextField(index.FieldContent, f.Text),
		index.TextField(index.FieldUpdateTime, updated),
	)
}

// Run deletes everything in dir, adds one document per file of src and
// commits. Readers keep seeing the previous generation until the commit
// lands; on any error the index is left untouched.
func Run(ctx context.Context, src source.Source, dir store.Directory, analyzer *tokenizer.Analyzer, opts Options) (report *Report, err error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.OrDefault(opts.Logger, "rebuild")
	start := opts.Now()

	ctx, root := tracing.StartSpan(ctx, "rebuild")
	defer func() {
		root.End(err)
		root.Log(l)
	}()

	w, err := indexer.OpenWriter(dir, analyzer, indexer.WriterOptions{
		Logger:           opts.Logger,
		Metrics:          opts.Metrics,
		MaxBufferedBytes: opts.MaxBufferedBytes,
		Now:              opts.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("opening writer: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := w.Rollback(); rbErr != nil {
				l.Warn("rollback failed", "error", rbErr)
			}
		}
	}()

	if err := w.DeleteAll(); err != nil {
		return nil, err
	}

	report = &Report{}
	_, walkSpan := tracing.StartChildSpan(ctx, "walk")
	stats, err := src.Walk(ctx, func(f source.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := w.AddDocument(Document(f)); err != nil {
			return fmt.Errorf("adding %s: %w", f.Path, err)
		}
		report.Added++
		return nil
	})
	walkSpan.SetAttr("files", stats.Files)
	walkSpan.SetAttr("skipped", stats.Skipped)
	walkSpan.SetAttr("bytes", stats.Bytes)
	walkSpan.End(err)
	if err != nil {
		return nil, fmt.Errorf("walking source: %w", err)
	}
	report.Skipped = stats.Skipped
	for range stats.Skipped {
		opts.Metrics.DocumentSkipped("unreadable")
	}

	_, commitSpan := tracing.StartChildSpan(ctx, "commit")
	gen, err := w.Commit()
	commitSpan.SetAttr("generation", gen)
	commitSpan.End(err)
	if err != nil {
		return nil, fmt.Errorf("committing rebuild: %w", err)
	}
	committed = true
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing writer: %w", err)
	}
	report.Generation = gen
	report.Duration = opts.Now().Sub(start)
	root.SetAttr("generation", gen)
	root.SetAttr("added", report.Added)

	l.Info("rebuild complete",
		"generation", gen,
		"added", report.Added,
		"skipped", report.Skipped,
		"duration_ms", report.Duration.Milliseconds(),
	)

	if opts.Notifier != nil {
		nctx, notifySpan := tracing.StartChildSpan(ctx, "notify")
		nerr := opts.Notifier.Notify(nctx, Event{
			Index:       fmt.Sprint(dir),
			Generation:  gen,
			Added:       report.Added,
			Skipped:     report.Skipped,
			CompletedAt: opts.Now().UTC(),
		})
		notifySpan.End(nerr)
		if nerr != nil {
			l.Warn("index-complete notification failed", "generation", gen, "error", nerr)
		} else {
			report.Notified = true
		}
	}
	return report, nil
}
