package indexer

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

func fileDoc(name, content string) index.Document {
	return index.NewDocument(
		index.TextField(index.FieldFileName, name),
		index.TextField(index.FieldFilePath, "/docs/"+name),
		index.TextField(index.FieldContent, content),
	)
}

func openWriter(t *testing.T, dir store.Directory, opts WriterOptions) *Writer {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	w, err := OpenWriter(dir, tokenizer.Default(), opts)
	require.NoError(t, err)
	return w
}

func openReader(t *testing.T, dir store.Directory) *Reader {
	t.Helper()
	r, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard(), Analyzer: tokenizer.Default()})
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func docIDs(t *testing.T, r *Reader, field, text string) []uint32 {
	t.Helper()
	postings, _, err := r.Postings(index.Term{Field: field, Text: text})
	require.NoError(t, err)
	ids := make([]uint32, 0, len(postings))
	for _, p := range postings {
		ids = append(ids, p.DocID)
	}
	return ids
}

func TestStoredFieldsRoundTrip(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{})

	id0, err := w.AddDocument(fileDoc("a.txt", "读取 文件 内容"))
	require.NoError(t, err)
	id1, err := w.AddDocument(fileDoc("b.txt", "导出 数据"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), id0)
	assert.Equal(t, uint32(1), id1)
	assert.Equal(t, 2, w.BufferedDocs())

	gen, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	require.NoError(t, w.Close())

	r := openReader(t, dir)
	assert.Equal(t, uint64(1), r.Generation())
	assert.Equal(t, tokenizer.Default().Fingerprint(), r.Fingerprint())
	assert.Equal(t, 2, r.DocumentCount())

	fields, err := r.StoredFields(1)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		index.FieldFileName: "b.txt",
		index.FieldFilePath: "/docs/b.txt",
		index.FieldContent:  "导出 数据",
	}, fields)

	assert.Equal(t, []uint32{0}, docIDs(t, r, index.FieldContent, "读取"))
	df, err := r.DocFreq(index.Term{Field: index.FieldContent, Text: "导出"})
	require.NoError(t, err)
	assert.Equal(t, 1, df)
	assert.Equal(t, uint32(3), r.FieldLength(index.FieldContent, 0))
	assert.InDelta(t, 2.5, r.AvgFieldLength(index.FieldContent), 1e-9)

	_, ok, err := r.Postings(index.Term{Field: "unknown", Text: "读取"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.StoredFields(7)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOpenReaderOnEmptyIndex(t *testing.T) {
	_, err := OpenReader(store.NewMemDirectory(logger.Discard()), ReaderOptions{})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCommitWithoutChangesKeepsGeneration(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{})
	defer w.Close()

	_, err := w.AddDocument(fileDoc("a.txt", "alpha"))
	require.NoError(t, err)
	gen, err := w.Commit()
	require.NoError(t, err)

	again, err := w.Commit()
	require.NoError(t, err)
	assert.Equal(t, gen, again)
}

func TestSecondWriterIsLocked(t *testing.T) {
	root := t.TempDir()
	dir1, err := store.OpenFS(root, logger.Discard())
	require.NoError(t, err)
	dir2, err := store.OpenFS(root, logger.Discard())
	require.NoError(t, err)

	w1 := openWriter(t, dir1, WriterOptions{})
	_, err = OpenWriter(dir2, tokenizer.Default(), WriterOptions{Logger: logger.Discard()})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrLocked)

	_, err = w1.AddDocument(fileDoc("a.txt", "still writable"))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	r := openReader(t, dir2)
	assert.Equal(t, 1, r.DocumentCount())

	w2 := openWriter(t, dir2, WriterOptions{})
	require.NoError(t, w2.Close())
}

func TestMultipleSegmentsUseGlobalDocIDs(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{MaxBufferedBytes: 1})
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		id, err := w.AddDocument(fileDoc(name, "shared "+name))
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}
	assert.Zero(t, w.BufferedDocs())
	require.NoError(t, w.Close())

	r := openReader(t, dir)
	assert.Equal(t, 3, r.SegmentCount())
	assert.Equal(t, uint32(3), r.MaxDoc())
	assert.Equal(t, []uint32{0, 1, 2}, docIDs(t, r, index.FieldContent, "shared"))

	seq, err := r.Terms(index.FieldContent, "")
	require.NoError(t, err)
	terms := slices.Collect(seq)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "shared"}, terms)

	seq, err = r.Terms(index.FieldContent, "b")
	require.NoError(t, err)
	terms = terms[:0]
	for term := range seq {
		terms = append(terms, term)
		if len(terms) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"b.txt", "c.txt"}, terms)

	fields, err := r.StoredFields(2)
	require.NoError(t, err)
	assert.Equal(t, "c.txt", fields[index.FieldFileName])
}

func TestDeleteAndUpdateDocuments(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{MaxBufferedBytes: 1})
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := w.AddDocument(fileDoc(name, "shared "+name))
		require.NoError(t, err)
	}
	_, err := w.Commit()
	require.NoError(t, err)

	n, err := w.DeleteDocuments(index.FieldFilePath, "/docs/b.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = w.DeleteDocuments(index.FieldFilePath, "/docs/b.txt")
	require.NoError(t, err)
	assert.Zero(t, n, "already deleted")

	id, err := w.UpdateDocument(index.FieldFileName, "a.txt", fileDoc("a.txt", "rewritten"))
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	require.NoError(t, w.Close())

	r := openReader(t, dir)
	assert.Equal(t, 2, r.DocumentCount())
	assert.Equal(t, []uint32{2}, docIDs(t, r, index.FieldContent, "shared"))
	assert.Equal(t, []uint32{3}, docIDs(t, r, index.FieldContent, "rewritten"))
	assert.True(t, r.IsDeleted(0))
	assert.True(t, r.IsDeleted(1))
	assert.False(t, r.IsDeleted(2))

	_, err = r.StoredFields(1)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	fields, err := r.StoredFields(3)
	require.NoError(t, err)
	assert.Equal(t, "rewritten", fields[index.FieldContent])

	m := r.Manifest()
	assert.Equal(t, 2, m.TotalDocs)
	assert.Equal(t, uint32(1), m.Segments[0].DelCount)
	assert.NotEmpty(t, m.Segments[0].DelFile)
}

func TestUpdateIsAtomicAgainstCommit(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{})
	_, err := w.AddDocument(fileDoc("a.txt", "v0"))
	require.NoError(t, err)
	_, err = w.Commit()
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Go(func() {
		for range 200 {
			if _, err := w.UpdateDocument(index.FieldFileName, "a.txt", fileDoc("a.txt", "next")); err != nil {
				t.Error(err)
				return
			}
		}
	})
	for range 50 {
		_, err := w.Commit()
		require.NoError(t, err)
		r, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard()})
		require.NoError(t, err)
		postings, _, err := r.Postings(index.Term{Field: index.FieldFileName, Text: "a.txt"})
		require.NoError(t, err)
		assert.Len(t, postings, 1, "a commit must never publish the delete without its replacement")
		require.NoError(t, r.Close())
	}
	wg.Wait()
	require.NoError(t, w.Close())
}

func TestDeleteBufferedDocument(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{})
	_, err := w.AddDocument(fileDoc("a.txt", "alpha"))
	require.NoError(t, err)
	_, err = w.AddDocument(fileDoc("b.txt", "beta"))
	require.NoError(t, err)

	n, err := w.DeleteDocuments(index.FieldFileName, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, w.Close())

	r := openReader(t, dir)
	assert.Equal(t, 1, r.DocumentCount())
	_, ok, err := r.Postings(index.Term{Field: index.FieldContent, Text: "alpha"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func rebuild(t *testing.T, dir store.Directory, docs []index.Document) uint64 {
	t.Helper()
	w := openWriter(t, dir, WriterOptions{})
	require.NoError(t, w.DeleteAll())
	for _, d := range docs {
		_, err := w.AddDocument(d)
		require.NoError(t, err)
	}
	gen, err := w.Commit()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return gen
}

func TestRebuildIsIdempotent(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	docs := []index.Document{
		fileDoc("a.txt", "读取 文件 内容"),
		fileDoc("b.txt", "导出 数据 数据"),
		fileDoc("notes.md", "search engine notes"),
	}
	snapshot := func() (map[string][]index.Posting, []map[string]string) {
		r := openReader(t, dir)
		postings := map[string][]index.Posting{}
		for _, term := range []string{"读取", "数据", "engine", "missing"} {
			p, _, err := r.Postings(index.Term{Field: index.FieldContent, Text: term})
			require.NoError(t, err)
			postings[term] = p
		}
		var stored []map[string]string
		for id := range r.MaxDoc() {
			f, err := r.StoredFields(id)
			require.NoError(t, err)
			stored = append(stored, f)
		}
		return postings, stored
	}

	gen1 := rebuild(t, dir, docs)
	p1, s1 := snapshot()
	gen2 := rebuild(t, dir, docs)
	p2, s2 := snapshot()

	assert.Greater(t, gen2, gen1)
	assert.Equal(t, p1, p2)
	assert.Equal(t, s1, s2)
}

func TestReaderSnapshotIsolation(t *testing.T) {
	root := t.TempDir()
	dir, err := store.OpenFS(root, logger.Discard())
	require.NoError(t, err)

	rebuild(t, dir, []index.Document{fileDoc("old.txt", "first generation")})
	old := openReader(t, dir)
	oldSegment := filepath.Join(root, "segments", old.Manifest().Segments[0].Name)

	rebuild(t, dir, []index.Document{fileDoc("mid.txt", "second generation")})
	rebuild(t, dir, []index.Document{fileDoc("new.txt", "third generation")})

	_, err = os.Stat(oldSegment)
	require.NoError(t, err, "pinned segment must survive cleanup")
	fields, err := old.StoredFields(0)
	require.NoError(t, err)
	assert.Equal(t, "old.txt", fields[index.FieldFileName])
	assert.Equal(t, []uint32{0}, docIDs(t, old, index.FieldContent, "first"))

	latest := openReader(t, dir)
	assert.Equal(t, uint64(3), latest.Generation())
	assert.Empty(t, docIDs(t, latest, index.FieldContent, "first"))

	require.NoError(t, old.Close())
	_, err = os.Stat(oldSegment)
	assert.True(t, os.IsNotExist(err), "segment is deleted once the last reader closes")
}

func TestOpenIfChanged(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	rebuild(t, dir, []index.Document{fileDoc("a.txt", "one")})
	r := openReader(t, dir)
	opts := ReaderOptions{Logger: logger.Discard()}

	same, changed, err := OpenIfChanged(dir, r, opts)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, r, same)

	rebuild(t, dir, []index.Document{fileDoc("b.txt", "two")})
	next, changed, err := OpenIfChanged(dir, r, opts)
	require.NoError(t, err)
	require.True(t, changed)
	defer next.Close()
	assert.Equal(t, r.Generation()+1, next.Generation())
}

func TestAnalyzerFingerprintMismatch(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	rebuild(t, dir, []index.Document{fileDoc("a.txt", "running")})

	cfg := tokenizer.DefaultConfig()
	cfg.Stemming = true
	stemmer := tokenizer.MustNew(cfg)

	_, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard(), Analyzer: stemmer})
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	w, err := OpenWriter(dir, stemmer, WriterOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	_, err = w.AddDocument(fileDoc("b.txt", "running"))
	assert.ErrorIs(t, err, apperrors.ErrConfig)

	n, err := w.DeleteDocuments(index.FieldFileName, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = w.Commit()
	require.NoError(t, err)
	openReader(t, dir)

	require.NoError(t, w.DeleteAll())
	_, err = w.AddDocument(fileDoc("b.txt", "running"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard(), Analyzer: stemmer})
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, []uint32{0}, docIDs(t, r, index.FieldContent, "run"))
}

func TestRollbackDiscardsChanges(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	rebuild(t, dir, []index.Document{fileDoc("a.txt", "kept")})

	w := openWriter(t, dir, WriterOptions{MaxBufferedBytes: 1})
	require.NoError(t, w.DeleteAll())
	_, err := w.AddDocument(fileDoc("b.txt", "discarded"))
	require.NoError(t, err)
	require.NoError(t, w.Rollback())

	files, err := dir.ListSegmentFiles()
	require.NoError(t, err)
	r := openReader(t, dir)
	assert.ElementsMatch(t, r.Manifest().Files(), files, "flushed but uncommitted segment is removed")
	assert.Equal(t, 1, r.DocumentCount())
	assert.Equal(t, []uint32{0}, docIDs(t, r, index.FieldContent, "kept"))

	w2 := openWriter(t, dir, WriterOptions{})
	require.NoError(t, w2.Close())
}

func TestClosedHandles(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	w := openWriter(t, dir, WriterOptions{})
	_, err := w.AddDocument(fileDoc("a.txt", "alpha"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.AddDocument(fileDoc("b.txt", "beta"))
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = w.Commit()
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = w.DeleteDocuments(index.FieldFileName, "a.txt")
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	assert.ErrorIs(t, w.DeleteAll(), apperrors.ErrClosed)

	r, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard()})
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, _, err = r.Postings(index.Term{Field: index.FieldContent, Text: "alpha"})
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = r.StoredFields(0)
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = r.Terms(index.FieldContent, "")
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = r.DocFreq(index.Term{Field: index.FieldContent, Text: "alpha"})
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	_, err = r.Fields(0)
	assert.ErrorIs(t, err, apperrors.ErrClosed)
	assert.Equal(t, 1, r.DocumentCount(), "snapshot metadata survives Close")
}

func TestConcurrentReadersDuringCommits(t *testing.T) {
	dir := store.NewMemDirectory(logger.Discard())
	rebuild(t, dir, []index.Document{fileDoc("a.txt", "stable content")})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				r, err := OpenReader(dir, ReaderOptions{Logger: logger.Discard()})
				if err != nil {
					errs <- err
					return
				}
				if _, _, err := r.Postings(index.Term{Field: index.FieldContent, Text: "content"}); err != nil {
					errs <- err
				}
				if r.DocumentCount() != 1 {
					errs <- errors.New("snapshot must hold exactly one document")
				}
				r.Close()
			}
		}()
	}
	for i := range 5 {
		rebuild(t, dir, []index.Document{fileDoc("a.txt", "stable content "+string(rune('a'+i)))})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
