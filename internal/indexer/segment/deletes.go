package segment

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/filesearch/internal/indexer/store"
)

// DeletesName names the deletion file of segment written at generation gen.
// Deletion files are immutable like segments; a commit that changes a
// segment's deletions writes a new one.
func DeletesName(segment string, gen uint64) string {
	return fmt.Sprintf("%s_%d.del", segment, gen)
}

// WriteDeletes publishes the deleted local doc IDs of a segment as a
// portable roaring bitmap followed by a crc32 trailer.
func WriteDeletes(dir store.Directory, name string, deleted *roaring.Bitmap) (int64, error) {
	deleted.RunOptimize()
	data, err := deleted.ToBytes()
	if err != nil {
		return 0, fmt.Errorf("encoding deletions %s: %w", name, err)
	}
	data = binary.LittleEndian.AppendUint32(data, crc32.ChecksumIEEE(data))

	out, err := dir.CreateOutput(name)
	if err != nil {
		return 0, fmt.Errorf("creating deletions %s: %w", name, err)
	}
	if _, err := out.Write(data); err != nil {
		out.Abort()
		return 0, fmt.Errorf("writing deletions %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("publishing deletions %s: %w", name, err)
	}
	return int64(len(data)), nil
}

// ReadDeletes loads a deletion bitmap written by WriteDeletes.
func ReadDeletes(dir store.Directory, name string) (*roaring.Bitmap, error) {
	in, err := dir.OpenInput(name)
	if err != nil {
		return nil, fmt.Errorf("opening deletions %s: %w", name, err)
	}
	defer in.Close()

	data := make([]byte, in.Size())
	if _, err := in.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("reading deletions %s: %w", name, err)
	}
	if len(data) < 4 {
		return nil, fmt.Errorf("deletions %s: %w", name, errCorrupt)
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(trailer) {
		return nil, fmt.Errorf("deletions %s: %w: checksum mismatch", name, errCorrupt)
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(body); err != nil {
		return nil, fmt.Errorf("decoding deletions %s: %w", name, err)
	}
	return bm, nil
}
