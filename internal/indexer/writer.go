// Package indexer builds and reads segmented inverted indexes. A Writer is
// the single mutator of an index location; Readers are immutable snapshots
// of one committed generation.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/metrics"
)

// WriterOptions tunes a Writer. The zero value is usable.
type WriterOptions struct {
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// MaxBufferedBytes flushes the posting buffer into a segment once its
	// estimated size reaches this many bytes. Zero flushes only on Commit.
	MaxBufferedBytes int64
	Now              func() time.Time
}

type pendingSegment struct {
	info    store.SegmentInfo
	deletes *roaring.Bitmap
	dirty   bool
	reader  *segment.Reader
}

// Writer adds, deletes and commits documents. Changes become visible to new
// Readers only when Commit returns. A Writer holds the directory lock until
// Close or Rollback; every method is safe for concurrent use.
type Writer struct {
	mu       sync.Mutex
	dir      store.Directory
	analyzer *tokenizer.Analyzer
	lock     store.Lock
	seg      *segment.Writer
	logger   *slog.Logger
	metrics  metrics.Recorder
	opts     WriterOptions

	base          *store.Manifest
	nextGen       uint64
	seq           int
	segments      []*pendingSegment
	buffer        *index.PostingBuffer
	bufferDeletes *roaring.Bitmap
	deleteAll     bool
	mismatch      bool
	closed        bool
}

// OpenWriter takes the directory lock, removes files left behind by earlier
// interrupted sessions and loads the current generation. It fails with
// errors.ErrLocked when another Writer holds the location.
func OpenWriter(dir store.Directory, analyzer *tokenizer.Analyzer, opts WriterOptions) (*Writer, error) {
	if analyzer == nil {
		return nil, apperrors.Configf("writer requires an analyzer")
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	l := logger.OrDefault(opts.Logger, "writer")

	lock, err := dir.ObtainLock()
	if err != nil {
		return nil, err
	}
	w := &Writer{
		dir:           dir,
		analyzer:      analyzer,
		lock:          lock,
		seg:           segment.NewWriter(dir),
		logger:        l,
		metrics:       opts.Metrics,
		opts:          opts,
		buffer:        index.NewPostingBuffer(),
		bufferDeletes: roaring.New(),
		nextGen:       1,
	}
	if err := w.load(); err != nil {
		lock.Release()
		return nil, err
	}
	return w, nil
}

func (w *Writer) load() error {
	if _, err := store.Cleanup(w.dir, w.logger); err != nil {
		return fmt.Errorf("cleaning up index: %w", err)
	}
	m, err := w.dir.ReadManifest()
	if errors.Is(err, apperrors.ErrNotFound) {
		w.logger.Info("opened writer on empty index", "location", w.dir.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	w.base = m
	w.nextGen = m.Generation + 1
	w.mismatch = m.AnalyzerFingerprint != w.analyzer.Fingerprint()

	for _, info := range m.Segments {
		if info.LiveDocs() <= 0 {
			continue
		}
		ps := &pendingSegment{info: info}
		if info.DelFile != "" {
			bm, err := segment.ReadDeletes(w.dir, info.DelFile)
			if err != nil {
				return fmt.Errorf("loading deletions of %s: %w", info.Name, err)
			}
			ps.deletes = bm
		}
		w.segments = append(w.segments, ps)
	}
	w.logger.Info("opened writer",
		"location", w.dir.String(),
		"generation", m.Generation,
		"segments", len(w.segments),
		"docs", m.TotalDocs,
		"analyzer_mismatch", w.mismatch,
	)
	return nil
}

// AddDocument buffers doc and returns the ID it will have in the generation
// produced by the next Commit.
func (w *Writer) AddDocument(doc index.Document) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writable(); err != nil {
		return 0, err
	}
	return w.addDocument(doc)
}

func (w *Writer) writable() error {
	if w.closed {
		return apperrors.ErrClosed
	}
	if w.mismatch && !w.deleteAll {
		return apperrors.Configf("analyzer fingerprint %s does not match the index; call DeleteAll to rebuild", w.analyzer.Fingerprint())
	}
	return nil
}

func (w *Writer) addDocument(doc index.Document) (uint32, error) {
	base := w.docBase()
	local := w.buffer.Add(doc, w.analyzer)
	w.metrics.DocumentIndexed()

	if w.opts.MaxBufferedBytes > 0 && w.buffer.Size() >= w.opts.MaxBufferedBytes {
		w.logger.Info("posting buffer reached max size, flushing segment",
			"size", w.buffer.Size(),
			"threshold", w.opts.MaxBufferedBytes,
		)
		if err := w.flush(); err != nil {
			return 0, fmt.Errorf("flushing posting buffer: %w", err)
		}
	}
	return base + local, nil
}

func (w *Writer) docBase() uint32 {
	var base uint32
	for _, s := range w.segments {
		base += s.info.DocCount
	}
	return base
}

// DeleteAll drops every committed and buffered document. The previous
// generation stays visible to readers until Commit.
func (w *Writer) DeleteAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return apperrors.ErrClosed
	}
	w.closeSegmentReaders()
	w.segments = nil
	w.buffer.Reset()
	w.bufferDeletes.Clear()
	w.deleteAll = true
	w.logger.Info("all documents marked for deletion")
	return nil
}

// DeleteDocuments marks every document whose stored field equals value as
// deleted and returns how many were newly marked.
func (w *Writer) DeleteDocuments(field, value string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	return w.deleteDocuments(field, value)
}

func (w *Writer) deleteDocuments(field, value string) (int, error) {
	deleted := 0
	for _, s := range w.segments {
		ids, err := w.matchSegment(s, field, value)
		if err != nil {
			return deleted, err
		}
		for _, id := range ids {
			if s.deletes == nil {
				s.deletes = roaring.New()
			}
			if s.deletes.CheckedAdd(id) {
				s.dirty = true
				deleted++
			}
		}
	}
	for _, id := range w.buffer.Matching(field, value) {
		if w.bufferDeletes.CheckedAdd(id) {
			deleted++
		}
	}
	return deleted, nil
}

// matchSegment finds local docs of s whose stored field equals value. When
// the field is indexed with the current analyzer, only docs containing the
// rarest term of value are verified; otherwise every doc is scanned.
func (w *Writer) matchSegment(s *pendingSegment, field, value string) ([]uint32, error) {
	if s.reader == nil {
		in, err := w.dir.OpenInput(s.info.Name)
		if err != nil {
			return nil, err
		}
		r, err := segment.Open(in)
		if err != nil {
			return nil, err
		}
		s.reader = r
	}
	r := s.reader

	var candidates []uint32
	var terms []string
	if !w.mismatch {
		terms = w.analyzer.Terms(field, value)
	}
	if len(terms) > 0 && r.HasField(field) {
		best := index.Term{Field: field, Text: terms[0]}
		for _, t := range terms[1:] {
			tt := index.Term{Field: field, Text: t}
			if r.DocFreq(tt) < r.DocFreq(best) {
				best = tt
			}
		}
		postings, ok, err := r.Postings(best)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		for _, p := range postings {
			candidates = append(candidates, p.DocID)
		}
	} else {
		for id := range r.DocCount() {
			candidates = append(candidates, id)
		}
	}

	var out []uint32
	for _, id := range candidates {
		if s.deletes != nil && s.deletes.Contains(id) {
			continue
		}
		fields, err := r.StoredFields(id)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if f.Name == field && f.Value == value {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

// UpdateDocument replaces every document whose stored field equals value
// with doc. No Commit can observe the delete without the replacement.
func (w *Writer) UpdateDocument(field, value string, doc index.Document) (uint32, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writable(); err != nil {
		return 0, err
	}
	if _, err := w.deleteDocuments(field, value); err != nil {
		return 0, err
	}
	return w.addDocument(doc)
}

// BufferedDocs is the number of documents added since the last flush.
func (w *Writer) BufferedDocs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return int(w.buffer.DocCount())
}

func (w *Writer) flush() error {
	if w.buffer.DocCount() == 0 {
		return nil
	}
	start := w.opts.Now()
	name := fmt.Sprintf("seg_%06d_%03d", w.nextGen, w.seq)
	w.seq++
	info, err := w.seg.Write(name, w.buffer.Snapshot())
	if err != nil {
		return fmt.Errorf("writing segment: %w", err)
	}
	ps := &pendingSegment{info: info}
	if !w.bufferDeletes.IsEmpty() {
		ps.deletes = w.bufferDeletes.Clone()
		ps.dirty = true
	}
	w.segments = append(w.segments, ps)
	elapsed := w.opts.Now().Sub(start)
	w.metrics.SegmentFlushed(int(info.DocCount), elapsed)
	w.logger.Info("segment flushed",
		"segment", name,
		"docs", info.DocCount,
		"bytes", info.SizeBytes,
		"duration", elapsed,
	)
	w.buffer.Reset()
	w.bufferDeletes.Clear()
	return nil
}

func (w *Writer) hasChanges() bool {
	if w.base == nil || w.deleteAll || w.buffer.DocCount() > 0 {
		return true
	}
	for _, s := range w.segments {
		if s.dirty {
			return true
		}
	}
	return len(w.segments) != len(w.base.Segments)
}

// Commit flushes buffered documents, persists changed deletions and
// atomically installs the next generation. It returns the committed
// generation; a Commit without changes returns the current one.
func (w *Writer) Commit() (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, apperrors.ErrClosed
	}
	return w.commit()
}

func (w *Writer) commit() (uint64, error) {
	if !w.hasChanges() {
		return w.base.Generation, nil
	}
	if err := w.flush(); err != nil {
		return 0, err
	}

	gen := w.nextGen
	m := &store.Manifest{
		Version:             store.ManifestVersion,
		Generation:          gen,
		CommitID:            uuid.NewString(),
		Timestamp:           w.opts.Now().UTC(),
		AnalyzerFingerprint: w.analyzer.Fingerprint(),
	}
	if w.base != nil {
		m.PreviousGeneration = w.base.Generation
	}
	if w.mismatch && !w.deleteAll {
		// Only deletions changed; the segments still carry the old analysis.
		m.AnalyzerFingerprint = w.base.AnalyzerFingerprint
		m.Analyzer = w.base.Analyzer
	} else {
		cfg, err := json.Marshal(w.analyzer.Config())
		if err != nil {
			return 0, fmt.Errorf("encoding analyzer config: %w", err)
		}
		m.Analyzer = cfg
	}

	for _, s := range w.segments {
		if s.dirty {
			name := segment.DeletesName(s.info.Name, gen)
			if _, err := segment.WriteDeletes(w.dir, name, s.deletes); err != nil {
				return 0, err
			}
			s.info.DelFile = name
			s.info.DelCount = uint32(s.deletes.GetCardinality())
		}
		m.Segments = append(m.Segments, s.info)
		m.TotalDocs += s.info.LiveDocs()
	}

	if err := w.dir.Commit(m); err != nil {
		return 0, fmt.Errorf("committing generation %d: %w", gen, err)
	}
	for _, s := range w.segments {
		s.dirty = false
	}
	w.base = m
	w.nextGen = gen + 1
	w.seq = 0
	w.mismatch = m.AnalyzerFingerprint != w.analyzer.Fingerprint()
	w.deleteAll = false

	w.metrics.CommitCompleted(gen, m.TotalDocs)
	w.logger.Info("commit complete",
		"generation", gen,
		"commit_id", m.CommitID,
		"segments", len(m.Segments),
		"docs", m.TotalDocs,
	)
	if _, err := store.Cleanup(w.dir, w.logger); err != nil {
		w.logger.Warn("post-commit cleanup failed", "error", err)
	}
	return gen, nil
}

// Close commits pending changes and releases the lock. The lock is released
// even when the commit fails.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	_, err := w.commit()
	w.release()
	return err
}

// Rollback discards every change since the last commit and releases the
// lock.
func (w *Writer) Rollback() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.buffer.Reset()
	w.closeSegmentReaders()
	w.segments = nil
	if _, err := store.Cleanup(w.dir, w.logger); err != nil {
		w.logger.Warn("rollback cleanup failed", "error", err)
	}
	w.logger.Info("writer rolled back")
	return w.release()
}

func (w *Writer) release() error {
	w.closed = true
	w.closeSegmentReaders()
	return w.lock.Release()
}

func (w *Writer) closeSegmentReaders() {
	for _, s := range w.segments {
		if s.reader != nil {
			if err := s.reader.Close(); err != nil {
				w.logger.Warn("closing segment reader", "segment", s.info.Name, "error", err)
			}
			s.reader = nil
		}
	}
}
