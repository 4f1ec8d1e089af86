package indexer

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

const openAttempts = 3

// ReaderOptions tunes OpenReader.
type ReaderOptions struct {
	Logger *slog.Logger
	// Analyzer, when set, must have the fingerprint recorded by the commit
	// being opened.
	Analyzer *tokenizer.Analyzer
}

type readerSegment struct {
	reader  *segment.Reader
	base    uint32
	deletes *roaring.Bitmap
}

func (s *readerSegment) deleted(local uint32) bool {
	return s.deletes != nil && s.deletes.Contains(local)
}

// Reader is a point-in-time view of one committed generation. Commits made
// after OpenReader returns are invisible to it, and the files it reads stay
// on disk until Close. A Reader is safe for concurrent use.
type Reader struct {
	dir      store.Directory
	manifest *store.Manifest
	segments []*readerSegment
	pinned   []string
	maxDoc   uint32
	live     int
	logger   *slog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
}

// OpenReader snapshots the current generation of dir. It fails with an
// error matching errors.ErrNotFound when nothing has been committed yet and
// with a configuration error when opts.Analyzer does not match the index.
func OpenReader(dir store.Directory, opts ReaderOptions) (*Reader, error) {
	l := logger.OrDefault(opts.Logger, "reader")
	var lastErr error
	for range openAttempts {
		m, err := dir.ReadManifest()
		if err != nil {
			return nil, err
		}
		if opts.Analyzer != nil && m.AnalyzerFingerprint != opts.Analyzer.Fingerprint() {
			return nil, apperrors.Configf("analyzer fingerprint %s does not match index generation %d (%s)",
				opts.Analyzer.Fingerprint(), m.Generation, m.AnalyzerFingerprint)
		}
		r, err := openSnapshot(dir, m, l)
		if err == nil {
			l.Debug("reader opened",
				"generation", m.Generation,
				"segments", len(r.segments),
				"docs", r.live,
			)
			return r, nil
		}
		// A concurrent commit may have retired files between reading the
		// manifest and pinning them; retry against the newer manifest.
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		lastErr = err
		l.Warn("segment vanished while opening reader, retrying", "generation", m.Generation, "error", err)
	}
	return nil, fmt.Errorf("opening reader: %w", lastErr)
}

func openSnapshot(dir store.Directory, m *store.Manifest, l *slog.Logger) (*Reader, error) {
	files := m.Files()
	dir.Refs().Pin(files...)
	r := &Reader{
		dir:      dir,
		manifest: m,
		pinned:   files,
		logger:   l,
	}
	for _, info := range m.Segments {
		s, err := openReaderSegment(dir, info, r.maxDoc)
		if err != nil {
			r.release()
			return nil, err
		}
		r.segments = append(r.segments, s)
		r.maxDoc += info.DocCount
		r.live += info.LiveDocs()
	}
	return r, nil
}

func openReaderSegment(dir store.Directory, info store.SegmentInfo, base uint32) (*readerSegment, error) {
	in, err := dir.OpenInput(info.Name)
	if err != nil {
		return nil, err
	}
	sr, err := segment.Open(in)
	if err != nil {
		return nil, err
	}
	if sr.Checksum() != info.Checksum {
		sr.Close()
		return nil, apperrors.Storage("open segment "+info.Name,
			fmt.Errorf("checksum %08x does not match manifest %08x", sr.Checksum(), info.Checksum))
	}
	s := &readerSegment{reader: sr, base: base}
	if info.DelFile != "" {
		bm, err := segment.ReadDeletes(dir, info.DelFile)
		if err != nil {
			sr.Close()
			return nil, err
		}
		s.deletes = bm
	}
	return s, nil
}

// OpenIfChanged returns a new Reader when dir holds a newer generation than
// r, and r itself with false otherwise. The caller still owns r either way.
func OpenIfChanged(dir store.Directory, r *Reader, opts ReaderOptions) (*Reader, bool, error) {
	m, err := dir.ReadManifest()
	if err != nil {
		return r, false, err
	}
	if r != nil && m.Generation == r.Generation() {
		return r, false, nil
	}
	nr, err := OpenReader(dir, opts)
	if err != nil {
		return r, false, err
	}
	return nr, true, nil
}

// Postings returns the live postings of t with global doc IDs in ascending
// order. The bool is false when no live document contains t.
func (r *Reader) Postings(t index.Term) (index.PostingList, bool, error) {
	if r.closed.Load() {
		return nil, false, apperrors.ErrClosed
	}
	var out index.PostingList
	for _, s := range r.segments {
		postings, ok, err := s.reader.Postings(t)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		for _, p := range postings {
			if s.deleted(p.DocID) {
				continue
			}
			p.DocID += s.base
			out = append(out, p)
		}
	}
	return out, len(out) > 0, nil
}

// DocFreq is the number of documents containing t. Deleted documents still
// count until their segment is rebuilt.
func (r *Reader) DocFreq(t index.Term) (int, error) {
	if r.closed.Load() {
		return 0, apperrors.ErrClosed
	}
	n := 0
	for _, s := range r.segments {
		n += s.reader.DocFreq(t)
	}
	return n, nil
}

// Terms yields the distinct terms of field in ascending order, starting at
// the first term >= from. The sequence must be consumed before Close.
func (r *Reader) Terms(field, from string) (iter.Seq[string], error) {
	if r.closed.Load() {
		return nil, apperrors.ErrClosed
	}
	return func(yield func(string) bool) {
		type head struct {
			next func() (string, int, bool)
			stop func()
			term string
		}
		heads := make([]*head, 0, len(r.segments))
		defer func() {
			for _, h := range heads {
				h.stop()
			}
		}()
		for _, s := range r.segments {
			next, stop := iter.Pull2(s.reader.Terms(field, from))
			h := &head{next: next, stop: stop}
			heads = append(heads, h)
			term, _, ok := next()
			if !ok {
				h.next = nil
				continue
			}
			h.term = term
		}
		for {
			lowest := -1
			for i, h := range heads {
				if h.next != nil && (lowest < 0 || h.term < heads[lowest].term) {
					lowest = i
				}
			}
			if lowest < 0 {
				return
			}
			term := heads[lowest].term
			if !yield(term) {
				return
			}
			for _, h := range heads {
				if h.next == nil || h.term != term {
					continue
				}
				next, _, ok := h.next()
				if !ok {
					h.next = nil
					continue
				}
				h.term = next
			}
		}
	}, nil
}

func (r *Reader) locate(docID uint32) (*readerSegment, uint32, error) {
	if docID >= r.maxDoc {
		return nil, 0, fmt.Errorf("%w: document %d", apperrors.ErrNotFound, docID)
	}
	i := sort.Search(len(r.segments), func(i int) bool {
		return r.segments[i].base > docID
	}) - 1
	s := r.segments[i]
	local := docID - s.base
	if s.deleted(local) {
		return nil, 0, fmt.Errorf("%w: document %d is deleted", apperrors.ErrNotFound, docID)
	}
	return s, local, nil
}

// StoredFields returns the stored fields of a live document. When a field
// was stored more than once its values are joined with a space.
func (r *Reader) StoredFields(docID uint32) (map[string]string, error) {
	fields, err := r.Fields(docID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if prev, ok := out[f.Name]; ok {
			out[f.Name] = prev + " " + f.Value
			continue
		}
		out[f.Name] = f.Value
	}
	return out, nil
}

// Fields returns the stored fields of a live document in insertion order.
func (r *Reader) Fields(docID uint32) ([]index.Field, error) {
	if r.closed.Load() {
		return nil, apperrors.ErrClosed
	}
	s, local, err := r.locate(docID)
	if err != nil {
		return nil, err
	}
	return s.reader.StoredFields(local)
}

// IsDeleted reports whether docID is deleted or out of range.
func (r *Reader) IsDeleted(docID uint32) bool {
	_, _, err := r.locate(docID)
	return err != nil
}

// FieldLength is the number of tokens field produced for docID.
func (r *Reader) FieldLength(field string, docID uint32) uint32 {
	if docID >= r.maxDoc {
		return 0
	}
	i := sort.Search(len(r.segments), func(i int) bool {
		return r.segments[i].base > docID
	}) - 1
	s := r.segments[i]
	return s.reader.FieldLength(field, docID-s.base)
}

// AvgFieldLength is the mean token count of field over every document in
// the snapshot.
func (r *Reader) AvgFieldLength(field string) float64 {
	if r.maxDoc == 0 {
		return 0
	}
	var sum uint64
	for _, s := range r.segments {
		sum += s.reader.FieldLengthSum(field)
	}
	return float64(sum) / float64(r.maxDoc)
}

// DocumentCount is the number of live documents. Like MaxDoc and
// Generation it describes the snapshot and stays readable after Close.
func (r *Reader) DocumentCount() int { return r.live }

// MaxDoc is one greater than the largest doc ID in the snapshot.
func (r *Reader) MaxDoc() uint32 { return r.maxDoc }

func (r *Reader) Generation() uint64  { return r.manifest.Generation }
func (r *Reader) Fingerprint() string { return r.manifest.AnalyzerFingerprint }
func (r *Reader) SegmentCount() int   { return len(r.segments) }

// Manifest returns a copy of the manifest the snapshot was opened from.
func (r *Reader) Manifest() *store.Manifest { return r.manifest.Clone() }

// Close releases the segment files. Closing twice is a no-op. Postings,
// DocFreq, Terms, StoredFields and Fields report errors.ErrClosed afterwards.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		r.release()
		r.logger.Debug("reader closed", "generation", r.manifest.Generation)
	})
	return nil
}

func (r *Reader) release() {
	for _, s := range r.segments {
		if err := s.reader.Close(); err != nil {
			r.logger.Warn("closing segment", "segment", s.reader.Name(), "error", err)
		}
	}
	r.dir.Refs().Unpin(r.pinned...)
}
