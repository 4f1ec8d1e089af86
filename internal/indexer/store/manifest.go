package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ManifestVersion is bumped whenever the manifest or segment layout changes
// incompatibly.
const ManifestVersion = 1

var errManifestCorrupt = errors.New("manifest checksum verification failed")

// Manifest names the segments of one committed generation. It is the only
// mutable state of an index: swapping the current manifest is the commit.
type Manifest struct {
	Version             int             `json:"version"`
	Generation          uint64          `json:"generation"`
	PreviousGeneration  uint64          `json:"previous_generation"`
	CommitID            string          `json:"commit_id"`
	Timestamp           time.Time       `json:"timestamp"`
	AnalyzerFingerprint string          `json:"analyzer_fingerprint"`
	Analyzer            json.RawMessage `json:"analyzer,omitempty"`
	Segments            []SegmentInfo   `json:"segments"`
	TotalDocs           int             `json:"total_docs"`
	Checksum            string          `json:"checksum"`
}

// SegmentInfo describes one segment inside a manifest. Segment order is
// significant: a segment's doc base is the sum of DocCount over the segments
// before it.
type SegmentInfo struct {
	Name      string `json:"name"`
	DocCount  uint32 `json:"doc_count"`
	DelCount  uint32 `json:"del_count"`
	DelFile   string `json:"del_file,omitempty"`
	Checksum  uint32 `json:"checksum"`
	SizeBytes int64  `json:"size_bytes"`
}

// LiveDocs is DocCount minus deletions.
func (s SegmentInfo) LiveDocs() int {
	return int(s.DocCount) - int(s.DelCount)
}

// Files lists every file the manifest references.
func (m *Manifest) Files() []string {
	files := make([]string, 0, 2*len(m.Segments))
	for _, s := range m.Segments {
		files = append(files, s.Name)
		if s.DelFile != "" {
			files = append(files, s.DelFile)
		}
	}
	return files
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	c := *m
	c.Segments = append([]SegmentInfo(nil), m.Segments...)
	c.Analyzer = append(json.RawMessage(nil), m.Analyzer...)
	return &c
}

// Marshal seals m with its checksum and returns the encoded form.
func (m *Manifest) Marshal() ([]byte, error) {
	sum, err := m.computeChecksum()
	if err != nil {
		return nil, err
	}
	m.Checksum = sum
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// UnmarshalManifest decodes a manifest and verifies its checksum.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	sum, err := m.computeChecksum()
	if err != nil {
		return nil, err
	}
	if sum != m.Checksum {
		return nil, fmt.Errorf("%w: expected %s, got %s", errManifestCorrupt, m.Checksum, sum)
	}
	if m.Version > ManifestVersion {
		return nil, fmt.Errorf("manifest version %d is newer than supported version %d", m.Version, ManifestVersion)
	}
	return &m, nil
}

// computeChecksum is sha256 over the indented JSON with an empty checksum.
func (m *Manifest) computeChecksum() (string, error) {
	saved := m.Checksum
	m.Checksum = ""
	defer func() { m.Checksum = saved }()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest for checksum: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
