package store

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/filesearch/pkg/logger"
)

const (
	segmentsDir     = "segments"
	manifestsDir    = "manifests"
	currentFile     = "manifest.current"
	nextFile        = "manifest.next"
	lockFile        = "write.lock"
	tmpSuffix       = ".tmp"
	manifestPrefix  = "manifest_gen_"
	manifestSuffix  = ".json"
	writeBufferSize = 64 << 10
)

// FSDirectory stores an index under a filesystem root:
//
//	root/
//	  write.lock
//	  manifest.current          generation number of the live manifest
//	  manifests/manifest_gen_N.json
//	  segments/<data files>
type FSDirectory struct {
	root   string
	logger *slog.Logger
	refs   *Refs
	mu     sync.Mutex
}

// OpenFS opens (creating if needed) the index directory at root.
func OpenFS(root string, l *slog.Logger) (*FSDirectory, error) {
	l = logger.OrDefault(l, "store")
	for _, dir := range []string{root, filepath.Join(root, segmentsDir), filepath.Join(root, manifestsDir)} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return nil, apperrors.Storage("creating index directory", err)
		}
	}
	d := &FSDirectory{root: root, logger: l}
	d.refs = newRefs(d.DeleteFile, l)
	return d, nil
}

func (d *FSDirectory) String() string { return d.root }

func (d *FSDirectory) Refs() *Refs { return d.refs }

func (d *FSDirectory) segmentPath(name string) string {
	return filepath.Join(d.root, segmentsDir, name)
}

func (d *FSDirectory) manifestPath(gen uint64) string {
	return filepath.Join(d.root, manifestsDir, fmt.Sprintf("%s%d%s", manifestPrefix, gen, manifestSuffix))
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasSuffix(name, tmpSuffix) {
		return apperrors.Configf("invalid data file name %q", name)
	}
	return nil
}

func (d *FSDirectory) CreateOutput(name string) (Output, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	final := d.segmentPath(name)
	if _, err := os.Stat(final); err == nil {
		return nil, apperrors.Storage("create output", fmt.Errorf("%s already exists", name))
	}
	tmp := final + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, apperrors.Storage("create output "+name, err)
	}
	return &fsOutput{
		name:  name,
		f:     f,
		w:     bufio.NewWriterSize(f, writeBufferSize),
		tmp:   tmp,
		final: final,
	}, nil
}

func (d *FSDirectory) OpenInput(name string) (Input, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(d.segmentPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: data file %s", apperrors.ErrNotFound, name)
		}
		return nil, apperrors.Storage("open input "+name, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperrors.Storage("stat input "+name, err)
	}
	return &fsInput{File: f, name: name, size: st.Size()}, nil
}

func (d *FSDirectory) ListSegmentFiles() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, segmentsDir))
	if err != nil {
		return nil, apperrors.Storage("list segment files", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (d *FSDirectory) DeleteFile(name string) error {
	err := os.Remove(d.segmentPath(name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Storage("delete "+name, err)
	}
	return nil
}

// Commit writes manifests/manifest_gen_N.json, then swaps manifest.current
// to N. Both steps go through tmp + fsync + rename + directory fsync, so a
// crash leaves manifest.current naming either the old or the new generation.
// Manifests older than the previous generation are pruned afterwards.
func (d *FSDirectory) Commit(m *Manifest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	final := d.manifestPath(m.Generation)
	if err := atomicWriteFile(final+tmpSuffix, final, data); err != nil {
		return apperrors.Storage("write manifest", err)
	}
	gen := []byte(strconv.FormatUint(m.Generation, 10))
	if err := atomicWriteFile(filepath.Join(d.root, nextFile), filepath.Join(d.root, currentFile), gen); err != nil {
		return apperrors.Storage("activate manifest", err)
	}

	gens, err := d.manifestGenerations()
	if err != nil {
		d.logger.Warn("listing manifests for pruning failed", "error", err)
		return nil
	}
	for _, g := range gens {
		if g < m.PreviousGeneration {
			if err := os.Remove(d.manifestPath(g)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				d.logger.Warn("pruning manifest failed", "generation", g, "error", err)
			}
		}
	}
	return nil
}

// ReadManifest loads the generation named by manifest.current. A corrupt or
// missing manifest falls back to the newest older generation still on disk.
func (d *FSDirectory) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(d.root, currentFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no committed index in %s", apperrors.ErrNotFound, d.root)
		}
		return nil, apperrors.Storage("read manifest.current", err)
	}
	current, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return nil, apperrors.Storage("parse manifest.current", err)
	}

	m, err := d.ReadManifestGeneration(current)
	if err == nil {
		return m, nil
	}
	d.logger.Warn("manifest load failed, trying previous generations", "generation", current, "error", err)

	gens, lerr := d.manifestGenerations()
	if lerr != nil {
		return nil, lerr
	}
	for i := len(gens) - 1; i >= 0; i-- {
		if gens[i] >= current {
			continue
		}
		fm, ferr := d.ReadManifestGeneration(gens[i])
		if ferr == nil {
			d.logger.Warn("manifest fallback", "requested", current, "recovered", gens[i])
			return fm, nil
		}
	}
	return nil, err
}

func (d *FSDirectory) ReadManifestGeneration(gen uint64) (*Manifest, error) {
	data, err := os.ReadFile(d.manifestPath(gen))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: manifest generation %d", apperrors.ErrNotFound, gen)
		}
		return nil, apperrors.Storage("read manifest", err)
	}
	m, err := UnmarshalManifest(data)
	if err != nil {
		return nil, apperrors.Storage(fmt.Sprintf("manifest generation %d", gen), err)
	}
	return m, nil
}

func (d *FSDirectory) manifestGenerations() ([]uint64, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, manifestsDir))
	if err != nil {
		return nil, apperrors.Storage("list manifests", err)
	}
	var gens []uint64
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, manifestPrefix) || !strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		g, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, manifestPrefix), manifestSuffix), 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, g)
	}
	slices.Sort(gens)
	return gens, nil
}

func (d *FSDirectory) ObtainLock() (Lock, error) {
	return acquireFileLock(filepath.Join(d.root, lockFile))
}

func (d *FSDirectory) Close() error { return nil }

type fsOutput struct {
	name  string
	f     *os.File
	w     *bufio.Writer
	tmp   string
	final string
	done  bool
}

func (o *fsOutput) Name() string { return o.name }

func (o *fsOutput) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	if err != nil {
		return n, apperrors.Storage("write "+o.name, err)
	}
	return n, nil
}

func (o *fsOutput) Close() error {
	if o.done {
		return nil
	}
	o.done = true
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		os.Remove(o.tmp)
		return apperrors.Storage("flush "+o.name, err)
	}
	if err := o.f.Sync(); err != nil {
		o.f.Close()
		os.Remove(o.tmp)
		return apperrors.Storage("sync "+o.name, err)
	}
	if err := o.f.Close(); err != nil {
		os.Remove(o.tmp)
		return apperrors.Storage("close "+o.name, err)
	}
	if err := os.Rename(o.tmp, o.final); err != nil {
		os.Remove(o.tmp)
		return apperrors.Storage("publish "+o.name, err)
	}
	if err := fsyncDir(filepath.Dir(o.final)); err != nil {
		return apperrors.Storage("publish "+o.name, err)
	}
	return nil
}

func (o *fsOutput) Abort() error {
	if o.done {
		return nil
	}
	o.done = true
	o.f.Close()
	if err := os.Remove(o.tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperrors.Storage("abort "+o.name, err)
	}
	return nil
}

type fsInput struct {
	*os.File
	name string
	size int64
}

func (i *fsInput) Name() string { return i.name }
func (i *fsInput) Size() int64  { return i.size }
