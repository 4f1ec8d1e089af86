//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

type fileLock struct {
	f    *os.File
	once sync.Once
}

// acquireFileLock takes a non-blocking exclusive flock on path. The lock
// belongs to the open file description, so a second acquire from the same
// process fails just like one from another process.
func acquireFileLock(path string) (Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, apperrors.Storage("open lock file", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrLocked, path)
		}
		return nil, apperrors.Storage("flock "+path, err)
	}
	return &fileLock{f: f}, nil
}

func (l *fileLock) Release() error {
	var err error
	l.once.Do(func() {
		if uerr := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); uerr != nil {
			err = apperrors.Storage("unlock", uerr)
		}
		if cerr := l.f.Close(); cerr != nil && err == nil {
			err = apperrors.Storage("close lock file", cerr)
		}
	})
	return err
}
