// Package segment encodes and decodes immutable segment files.
//
// Layout (little endian):
//
//	[header  128 bytes]  magic, version, counts, region offsets
//	[postings]           per term: uvarint df, then per posting uvarint
//	                     docDelta, freq and freq position deltas
//	[stored]             docCount fixed u64 offsets, then per doc uvarint
//	                     field count and (name, value) length-prefixed pairs
//	[lengths]            uvarint field count, then per field the name and
//	                     docCount uvarint token counts
//	[dictionary]         JSON array of DictEntry sorted by field, term
//	[footer   32 bytes]  crc32 (IEEE) of everything before the footer
package segment

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
)

// MagicBytes identifies a valid segment file.
const (
	MagicBytes    uint32 = 0x46535347
	FormatVersion uint32 = 1
	HeaderSize    int    = 128
	FooterSize    int    = 32
)

// SegmentHeader is the fixed header written at the start of every segment.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    int64
	PostOffset   int64
	PostSize     int64
	StoredOffset int64
	StoredSize   int64
	LenOffset    int64
	LenSize      int64
	DictOffset   int64
	DictSize     int64
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises buffered documents into new segment files.
type Writer struct {
	dir store.Directory
	now func() time.Time
}

// NewWriter creates a Writer that writes segments into dir.
func NewWriter(dir store.Directory) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Write encodes data as the segment called name and publishes it. The
// returned SegmentInfo carries the checksum and size recorded in manifests.
func (w *Writer) Write(name string, data index.SegmentData) (store.SegmentInfo, error) {
	if data.DocCount == 0 {
		return store.SegmentInfo{}, fmt.Errorf("cannot write empty segment")
	}

	postings, dict, err := encodePostings(data.Terms)
	if err != nil {
		return store.SegmentInfo{}, err
	}
	stored := encodeStored(data.Stored, data.DocCount)
	lengths := encodeLengths(data.FieldLengths, data.DocCount)
	dictData, err := json.Marshal(dict)
	if err != nil {
		return store.SegmentInfo{}, fmt.Errorf("marshaling dictionary: %w", err)
	}

	h := SegmentHeader{
		Magic:     MagicBytes,
		Version:   FormatVersion,
		TermCount: uint32(len(dict)),
		DocCount:  data.DocCount,
		CreatedAt: w.now().Unix(),
	}
	off := int64(HeaderSize)
	h.PostOffset, h.PostSize = off, int64(len(postings))
	off += h.PostSize
	h.StoredOffset, h.StoredSize = off, int64(len(stored))
	off += h.StoredSize
	h.LenOffset, h.LenSize = off, int64(len(lengths))
	off += h.LenSize
	h.DictOffset, h.DictSize = off, int64(len(dictData))
	off += h.DictSize

	out, err := w.dir.CreateOutput(name)
	if err != nil {
		return store.SegmentInfo{}, fmt.Errorf("creating segment %s: %w", name, err)
	}
	crc := crc32.NewIEEE()
	mw := io.MultiWriter(out, crc)
	for _, part := range [][]byte{encodeHeader(h), postings, stored, lengths, dictData} {
		if _, err := mw.Write(part); err != nil {
			out.Abort()
			return store.SegmentInfo{}, fmt.Errorf("writing segment %s: %w", name, err)
		}
	}
	checksum := crc.Sum32()
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum)
	binary.LittleEndian.PutUint32(footer[4:8], data.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(h.DictSize))
	binary.LittleEndian.PutUint32(footer[24:28], MagicBytes)
	if _, err := out.Write(footer); err != nil {
		out.Abort()
		return store.SegmentInfo{}, fmt.Errorf("writing footer: %w", err)
	}
	if err := out.Close(); err != nil {
		return store.SegmentInfo{}, fmt.Errorf("publishing segment %s: %w", name, err)
	}
	return store.SegmentInfo{
		Name:      name,
		DocCount:  data.DocCount,
		Checksum:  checksum,
		SizeBytes: off + int64(FooterSize),
	}, nil
}

func encodeHeader(h SegmentHeader) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.StoredOffset))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.StoredSize))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.LenOffset))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.LenSize))
	binary.LittleEndian.PutUint64(b[72:80], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[80:88], uint64(h.DictSize))
	return b
}

func encodePostings(entries []index.TermEntry) ([]byte, []DictEntry, error) {
	var buf []byte
	dict := make([]DictEntry, 0, len(entries))
	for _, e := range entries {
		if len(e.Postings) == 0 {
			continue
		}
		start := len(buf)
		buf = binary.AppendUvarint(buf, uint64(len(e.Postings)))
		prevDoc := uint32(0)
		for i, p := range e.Postings {
			if i > 0 && p.DocID <= prevDoc {
				return nil, nil, fmt.Errorf("postings for %s are not in ascending doc order", e.Term)
			}
			if p.Frequency != len(p.Positions) || p.Frequency < 1 {
				return nil, nil, fmt.Errorf("postings for %s: frequency %d does not match %d positions", e.Term, p.Frequency, len(p.Positions))
			}
			buf = binary.AppendUvarint(buf, uint64(p.DocID-prevDoc))
			prevDoc = p.DocID
			buf = binary.AppendUvarint(buf, uint64(p.Frequency))
			prevPos := 0
			for _, pos := range p.Positions {
				buf = binary.AppendUvarint(buf, uint64(pos-prevPos))
				prevPos = pos
			}
		}
		dict = append(dict, DictEntry{
			Field:      e.Term.Field,
			Term:       e.Term.Text,
			PostOffset: int64(start),
			PostLen:    len(buf) - start,
			DocFreq:    len(e.Postings),
		})
	}
	return buf, dict, nil
}

func encodeStored(docs [][]index.Field, docCount uint32) []byte {
	var data []byte
	offsets := make([]byte, 8*int(docCount))
	for i := range int(docCount) {
		binary.LittleEndian.PutUint64(offsets[8*i:], uint64(len(data)))
		var fields []index.Field
		if i < len(docs) {
			fields = docs[i]
		}
		data = binary.AppendUvarint(data, uint64(len(fields)))
		for _, f := range fields {
			data = appendString(data, f.Name)
			data = appendString(data, f.Value)
		}
	}
	return append(offsets, data...)
}

func encodeLengths(lengths map[string][]uint32, docCount uint32) []byte {
	fields := make([]string, 0, len(lengths))
	for f := range lengths {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	var buf bytes.Buffer
	buf.Write(binary.AppendUvarint(nil, uint64(len(fields))))
	for _, f := range fields {
		buf.Write(appendString(nil, f))
		l := lengths[f]
		for i := range int(docCount) {
			var n uint32
			if i < len(l) {
				n = l[i]
			}
			buf.Write(binary.AppendUvarint(nil, uint64(n)))
		}
	}
	return buf.Bytes()
}

func appendString(b []byte, s string) []byte {
	b = binary.AppendUvarint(b, uint64(len(s)))
	return append(b, s...)
}
