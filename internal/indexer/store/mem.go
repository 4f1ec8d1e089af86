package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

// MemDirectory keeps an index in memory. It follows the same publish and
// commit rules as FSDirectory and is used by tests and throwaway indexes.
type MemDirectory struct {
	mu        sync.RWMutex
	files     map[string][]byte
	manifests map[uint64][]byte
	current   uint64
	locked    bool
	refs      *Refs
}

func NewMemDirectory(l *slog.Logger) *MemDirectory {
	d := &MemDirectory{
		files:     make(map[string][]byte),
		manifests: make(map[uint64][]byte),
	}
	d.refs = newRefs(d.DeleteFile, logger.OrDefault(l, "store"))
	return d
}

func (d *MemDirectory) String() string { return "mem" }

func (d *MemDirectory) Refs() *Refs { return d.refs }

func (d *MemDirectory) CreateOutput(name string) (Output, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	d.mu.RLock()
	_, exists := d.files[name]
	d.mu.RUnlock()
	if exists {
		return nil, apperrors.Storage("create output", fmt.Errorf("%s already exists", name))
	}
	return &memOutput{d: d, name: name}, nil
}

func (d *MemDirectory) OpenInput(name string) (Input, error) {
	d.mu.RLock()
	data, ok := d.files[name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: data file %s", apperrors.ErrNotFound, name)
	}
	return &memInput{Reader: bytes.NewReader(data), name: name}, nil
}

func (d *MemDirectory) ListSegmentFiles() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.files))
	for n := range d.files {
		names = append(names, n)
	}
	return names, nil
}

func (d *MemDirectory) DeleteFile(name string) error {
	d.mu.Lock()
	delete(d.files, name)
	d.mu.Unlock()
	return nil
}

func (d *MemDirectory) Commit(m *Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.manifests[m.Generation] = data
	d.current = m.Generation
	for g := range d.manifests {
		if g < m.PreviousGeneration {
			delete(d.manifests, g)
		}
	}
	return nil
}

func (d *MemDirectory) ReadManifest() (*Manifest, error) {
	d.mu.RLock()
	current := d.current
	d.mu.RUnlock()
	if current == 0 {
		return nil, fmt.Errorf("%w: no committed index in memory directory", apperrors.ErrNotFound)
	}
	return d.ReadManifestGeneration(current)
}

func (d *MemDirectory) ReadManifestGeneration(gen uint64) (*Manifest, error) {
	d.mu.RLock()
	data, ok := d.manifests[gen]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: manifest generation %d", apperrors.ErrNotFound, gen)
	}
	m, err := UnmarshalManifest(data)
	if err != nil {
		return nil, apperrors.Storage("read manifest", err)
	}
	return m, nil
}

func (d *MemDirectory) ObtainLock() (Lock, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return nil, fmt.Errorf("%w: memory directory", apperrors.ErrLocked)
	}
	d.locked = true
	return &memLock{d: d}, nil
}

func (d *MemDirectory) Close() error { return nil }

type memOutput struct {
	d    *MemDirectory
	name string
	buf  bytes.Buffer
	done bool
}

func (o *memOutput) Name() string                { return o.name }
func (o *memOutput) Write(p []byte) (int, error) { return o.buf.Write(p) }

func (o *memOutput) Close() error {
	if o.done {
		return nil
	}
	o.done = true
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	if _, exists := o.d.files[o.name]; exists {
		return apperrors.Storage("publish", fmt.Errorf("%s already exists", o.name))
	}
	o.d.files[o.name] = bytes.Clone(o.buf.Bytes())
	return nil
}

func (o *memOutput) Abort() error {
	o.done = true
	o.buf.Reset()
	return nil
}

type memInput struct {
	*bytes.Reader
	name string
}

func (i *memInput) Name() string { return i.name }
func (i *memInput) Close() error { return nil }

type memLock struct {
	d    *MemDirectory
	once sync.Once
}

func (l *memLock) Release() error {
	l.once.Do(func() {
		l.d.mu.Lock()
		l.d.locked = false
		l.d.mu.Unlock()
	})
	return nil
}
