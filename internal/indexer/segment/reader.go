package segment

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"iter"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
)

var errCorrupt = errors.New("corrupt segment")

// Reader gives random access to one segment. The dictionary, stored-field
// offsets and field lengths are loaded at open; postings and stored values
// are read on demand. A Reader is safe for concurrent use.
type Reader struct {
	in            store.Input
	header        SegmentHeader
	dict          []DictEntry
	fields        map[string][2]int
	storedOffsets []uint64
	lengths       map[string][]uint32
	lengthSums    map[string]uint64
	checksum      uint32
}

// Open decodes the segment behind in and verifies its checksum. The Reader
// takes ownership of in.
func Open(in store.Input) (*Reader, error) {
	r, err := open(in)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("opening segment %s: %w", in.Name(), err)
	}
	return r, nil
}

func open(in store.Input) (*Reader, error) {
	size := in.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", errCorrupt, size)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := in.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	h := decodeHeader(headerBytes)
	if h.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", errCorrupt, h.Magic)
	}
	if h.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorrupt, h.Version)
	}
	footerStart := size - int64(FooterSize)
	if h.DictOffset+h.DictSize != footerStart {
		return nil, fmt.Errorf("%w: region table does not match file size", errCorrupt)
	}
	footer := make([]byte, FooterSize)
	if _, err := in.ReadAt(footer, footerStart); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	if binary.LittleEndian.Uint32(footer[24:28]) != MagicBytes {
		return nil, fmt.Errorf("%w: bad footer", errCorrupt)
	}
	want := binary.LittleEndian.Uint32(footer[0:4])
	crc := crc32.NewIEEE()
	if _, err := io.Copy(crc, io.NewSectionReader(in, 0, footerStart)); err != nil {
		return nil, fmt.Errorf("checksumming: %w", err)
	}
	if got := crc.Sum32(); got != want {
		return nil, fmt.Errorf("%w: checksum %08x, footer says %08x", errCorrupt, got, want)
	}

	dictBytes := make([]byte, h.DictSize)
	if _, err := in.ReadAt(dictBytes, h.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	r := &Reader{
		in:       in,
		header:   h,
		dict:     dict,
		fields:   make(map[string][2]int),
		checksum: want,
	}
	for i := 0; i < len(dict); {
		j := i
		for j < len(dict) && dict[j].Field == dict[i].Field {
			j++
		}
		r.fields[dict[i].Field] = [2]int{i, j}
		i = j
	}

	offsets := make([]byte, 8*int(h.DocCount))
	if _, err := in.ReadAt(offsets, h.StoredOffset); err != nil {
		return nil, fmt.Errorf("reading stored offsets: %w", err)
	}
	r.storedOffsets = make([]uint64, h.DocCount)
	for i := range r.storedOffsets {
		r.storedOffsets[i] = binary.LittleEndian.Uint64(offsets[8*i:])
	}

	lenBytes := make([]byte, h.LenSize)
	if _, err := in.ReadAt(lenBytes, h.LenOffset); err != nil {
		return nil, fmt.Errorf("reading field lengths: %w", err)
	}
	if err := r.decodeLengths(lenBytes); err != nil {
		return nil, err
	}
	return r, nil
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:        binary.LittleEndian.Uint32(b[0:4]),
		Version:      binary.LittleEndian.Uint32(b[4:8]),
		TermCount:    binary.LittleEndian.Uint32(b[8:12]),
		DocCount:     binary.LittleEndian.Uint32(b[12:16]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(b[16:24])),
		PostOffset:   int64(binary.LittleEndian.Uint64(b[24:32])),
		PostSize:     int64(binary.LittleEndian.Uint64(b[32:40])),
		StoredOffset: int64(binary.LittleEndian.Uint64(b[40:48])),
		StoredSize:   int64(binary.LittleEndian.Uint64(b[48:56])),
		LenOffset:    int64(binary.LittleEndian.Uint64(b[56:64])),
		LenSize:      int64(binary.LittleEndian.Uint64(b[64:72])),
		DictOffset:   int64(binary.LittleEndian.Uint64(b[72:80])),
		DictSize:     int64(binary.LittleEndian.Uint64(b[80:88])),
	}
}

func (r *Reader) decodeLengths(b []byte) error {
	d := decoder{b: b}
	n := d.uvarint()
	r.lengths = make(map[string][]uint32)
	r.lengthSums = make(map[string]uint64)
	for i := uint64(0); i < n && d.err == nil; i++ {
		field := d.string()
		l := make([]uint32, r.header.DocCount)
		var sum uint64
		for j := range l {
			v := d.uvarint()
			l[j] = uint32(v)
			sum += v
		}
		r.lengths[field] = l
		r.lengthSums[field] = sum
	}
	if d.err != nil {
		return fmt.Errorf("decoding field lengths: %w", d.err)
	}
	return nil
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	rng, ok := r.fields[field]
	if !ok {
		return DictEntry{}, false
	}
	entries := r.dict[rng[0]:rng[1]]
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].Term >= term
	})
	if idx >= len(entries) || entries[idx].Term != term {
		return DictEntry{}, false
	}
	return entries[idx], true
}

// HasField reports whether any term of field is indexed in the segment.
func (r *Reader) HasField(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// Postings returns the postings of t in local doc IDs.
func (r *Reader) Postings(t index.Term) (index.PostingList, bool, error) {
	entry, ok := r.lookup(t.Field, t.Text)
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, entry.PostLen)
	if _, err := r.in.ReadAt(buf, r.header.PostOffset+entry.PostOffset); err != nil {
		return nil, false, fmt.Errorf("reading postings for %s: %w", t, err)
	}
	d := decoder{b: buf}
	n := d.uvarint()
	postings := make(index.PostingList, 0, min(n, uint64(len(buf))))
	doc := uint32(0)
	for range n {
		if d.err != nil {
			break
		}
		doc += uint32(d.uvarint())
		freq := int(d.uvarint())
		positions := make([]int, freq)
		pos := 0
		for j := range freq {
			pos += int(d.uvarint())
			positions[j] = pos
		}
		postings = append(postings, index.Posting{DocID: doc, Frequency: freq, Positions: positions})
	}
	if d.err != nil {
		return nil, false, fmt.Errorf("decoding postings for %s: %w", t, d.err)
	}
	return postings, true, nil
}

// DocFreq is the number of documents containing t, deletions included.
func (r *Reader) DocFreq(t index.Term) int {
	entry, ok := r.lookup(t.Field, t.Text)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Terms yields the terms of field in ascending order starting at the first
// term >= from, together with their document frequencies.
func (r *Reader) Terms(field, from string) iter.Seq2[string, int] {
	return func(yield func(string, int) bool) {
		rng, ok := r.fields[field]
		if !ok {
			return
		}
		entries := r.dict[rng[0]:rng[1]]
		start := sort.Search(len(entries), func(i int) bool {
			return entries[i].Term >= from
		})
		for _, e := range entries[start:] {
			if !yield(e.Term, e.DocFreq) {
				return
			}
		}
	}
}

// StoredFields returns the stored fields of a local document in insertion
// order.
func (r *Reader) StoredFields(docID uint32) ([]index.Field, error) {
	if docID >= r.header.DocCount {
		return nil, fmt.Errorf("doc %d out of range [0, %d)", docID, r.header.DocCount)
	}
	base := r.header.StoredOffset + 8*int64(r.header.DocCount)
	dataSize := r.header.StoredSize - 8*int64(r.header.DocCount)
	start := int64(r.storedOffsets[docID])
	end := dataSize
	if int(docID)+1 < len(r.storedOffsets) {
		end = int64(r.storedOffsets[docID+1])
	}
	buf := make([]byte, end-start)
	if _, err := r.in.ReadAt(buf, base+start); err != nil {
		return nil, fmt.Errorf("reading stored fields of doc %d: %w", docID, err)
	}
	d := decoder{b: buf}
	n := d.uvarint()
	fields := make([]index.Field, 0, min(n, uint64(len(buf))))
	for range n {
		if d.err != nil {
			break
		}
		name := d.string()
		value := d.string()
		fields = append(fields, index.Field{Name: name, Value: value, Stored: true})
	}
	if d.err != nil {
		return nil, fmt.Errorf("decoding stored fields of doc %d: %w", docID, d.err)
	}
	return fields, nil
}

// FieldLength is the token count of field in a local document.
func (r *Reader) FieldLength(field string, docID uint32) uint32 {
	l, ok := r.lengths[field]
	if !ok || int(docID) >= len(l) {
		return 0
	}
	return l[docID]
}

// FieldLengthSum is the total token count of field over all documents.
func (r *Reader) FieldLengthSum(field string) uint64 {
	return r.lengthSums[field]
}

func (r *Reader) Name() string     { return r.in.Name() }
func (r *Reader) TermCount() int   { return len(r.dict) }
func (r *Reader) DocCount() uint32 { return r.header.DocCount }
func (r *Reader) Checksum() uint32 { return r.checksum }
func (r *Reader) CreatedAt() int64 { return r.header.CreatedAt }
func (r *Reader) Close() error     { return r.in.Close() }

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b)
	if n <= 0 {
		d.err = errCorrupt
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) string() string {
	n := d.uvarint()
	if d.err != nil {
		return ""
	}
	if uint64(len(d.b)) < n {
		d.err = errCorrupt
		return ""
	}
	s := string(d.b[:n])
	d.b = d.b[n:]
	return s
}
