//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package store

import (
	"errors"
	"fmt"
	"os"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/filesearch/pkg/errors"
)

type fileLock struct {
	path string
	f    *os.File
	once sync.Once
}

// acquireFileLock creates path exclusively. A crashed writer leaves the file
// behind and it must be removed by hand.
func acquireFileLock(path string) (Lock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrLocked, path)
		}
		return nil, apperrors.Storage("create lock file", err)
	}
	return &fileLock{path: path, f: f}, nil
}

func (l *fileLock) Release() error {
	var err error
	l.once.Do(func() {
		l.f.Close()
		if rerr := os.Remove(l.path); rerr != nil {
			err = apperrors.Storage("remove lock file", rerr)
		}
	})
	return err
}
