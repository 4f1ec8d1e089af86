package index

import (
	"slices"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/tokenizer"
)

// PostingBuffer accumulates documents in memory until they are flushed into
// an immutable segment. Each term owns append-only arrays; since documents
// are added with increasing local IDs, every term's postings are already in
// DocID order and flushing only needs to sort the term dictionary.
//
// A PostingBuffer is not safe for concurrent use; the writer serialises
// access to it.
type PostingBuffer struct {
	terms   map[Term]*termArena
	stored  [][]Field
	lengths map[string][]uint32
	docs    uint32
	size    int64
}

type termArena struct {
	docs      []uint32
	freqs     []uint32
	positions []uint32
}

// SegmentData is the frozen content of a buffer, ready to be encoded.
type SegmentData struct {
	DocCount     uint32
	Terms        []TermEntry
	Stored       [][]Field
	FieldLengths map[string][]uint32
}

func NewPostingBuffer() *PostingBuffer {
	return &PostingBuffer{
		terms:   make(map[Term]*termArena),
		lengths: make(map[string][]uint32),
	}
}

// Add analyzes every indexed field of doc and records its stored fields. It
// returns the local ID of the document, counting from zero.
func (b *PostingBuffer) Add(doc Document, analyzer *tokenizer.Analyzer) uint32 {
	id := b.docs
	b.docs++

	local := make(map[Term][]uint32)
	fieldLen := make(map[string]uint32)
	var stored []Field
	for _, f := range doc.Fields {
		if f.Stored {
			stored = append(stored, Field{Name: f.Name, Value: f.Value, Stored: true})
			b.size += int64(len(f.Name) + len(f.Value))
		}
		if !f.Indexed {
			continue
		}
		base := fieldLen[f.Name]
		n := uint32(0)
		for tok := range analyzer.Tokenize(f.Name, f.Value) {
			t := Term{Field: f.Name, Text: tok.Term}
			local[t] = append(local[t], base+uint32(tok.Position))
			n++
		}
		fieldLen[f.Name] = base + n
	}
	b.stored = append(b.stored, stored)

	for field, n := range fieldLen {
		l := b.lengths[field]
		for uint32(len(l)) < id {
			l = append(l, 0)
		}
		b.lengths[field] = append(l, n)
	}

	for t, pos := range local {
		a, ok := b.terms[t]
		if !ok {
			a = &termArena{}
			b.terms[t] = a
			b.size += int64(len(t.Field) + len(t.Text) + 48)
		}
		a.docs = append(a.docs, id)
		a.freqs = append(a.freqs, uint32(len(pos)))
		a.positions = append(a.positions, pos...)
		b.size += int64(8 + 4*len(pos))
	}
	return id
}

// Matching returns the local IDs of buffered documents whose stored field
// equals value.
func (b *PostingBuffer) Matching(field, value string) []uint32 {
	var ids []uint32
	for id, fields := range b.stored {
		for _, f := range fields {
			if f.Name == field && f.Value == value {
				ids = append(ids, uint32(id))
				break
			}
		}
	}
	return ids
}

// Snapshot freezes the buffer content. The buffer must not be modified while
// the snapshot is in use.
func (b *PostingBuffer) Snapshot() SegmentData {
	entries := make([]TermEntry, 0, len(b.terms))
	for t, a := range b.terms {
		postings := make(PostingList, len(a.docs))
		off := 0
		for i, doc := range a.docs {
			freq := int(a.freqs[i])
			pos := make([]int, freq)
			for j := range freq {
				pos[j] = int(a.positions[off+j])
			}
			off += freq
			postings[i] = Posting{DocID: doc, Frequency: freq, Positions: pos}
		}
		entries = append(entries, TermEntry{Term: t, Postings: postings})
	}
	slices.SortFunc(entries, func(x, y TermEntry) int {
		switch {
		case x.Term.Less(y.Term):
			return -1
		case y.Term.Less(x.Term):
			return 1
		default:
			return 0
		}
	})

	lengths := make(map[string][]uint32, len(b.lengths))
	for field, l := range b.lengths {
		padded := slices.Clone(l)
		for uint32(len(padded)) < b.docs {
			padded = append(padded, 0)
		}
		lengths[field] = padded
	}
	return SegmentData{
		DocCount:     b.docs,
		Terms:        entries,
		Stored:       b.stored,
		FieldLengths: lengths,
	}
}

// Size is an estimate of the buffer's memory footprint in bytes.
func (b *PostingBuffer) Size() int64 { return b.size }

func (b *PostingBuffer) DocCount() uint32 { return b.docs }

func (b *PostingBuffer) Reset() {
	b.terms = make(map[Term]*termArena)
	b.stored = nil
	b.lengths = make(map[string][]uint32)
	b.docs = 0
	b.size = 0
}
