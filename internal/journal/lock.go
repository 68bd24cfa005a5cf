package journal

import (
	"os"
	"sync"

	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"
)

// writerLocks enforces one writer identity per journal inside this process.
// The flock on the lock file extends the rule across processes.
var writerLocks = struct {
	sync.Mutex
	held map[string]*writerLock
}{held: map[string]*writerLock{}}

type writerLock struct {
	identity string
	refs     int
	file     *os.File
}

func acquireWriter(path, identity string) error {
	writerLocks.Lock()
	defer writerLocks.Unlock()

	if held, ok := writerLocks.held[path]; ok {
		if held.identity != identity {
			return errors.Wrapf(exception.ErrIO, "journal %s is held by writer %s", path, held.identity)
		}
		held.refs++
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = file.Close()
		return errors.Wrapf(exception.ErrIO, "journal %s is held by another process: %v", path, err)
	}
	writerLocks.held[path] = &writerLock{identity: identity, refs: 1, file: file}
	return nil
}

func releaseWriter(path, identity string) {
	writerLocks.Lock()
	defer writerLocks.Unlock()

	held, ok := writerLocks.held[path]
	if !ok || held.identity != identity {
		return
	}
	held.refs--
	if held.refs > 0 {
		return
	}
	_ = unix.Flock(int(held.file.Fd()), unix.LOCK_UN)
	_ = held.file.Close()
	delete(writerLocks.held, path)
}
