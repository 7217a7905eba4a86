package registry

import (
	"fmt"
	"os"
	"syscall"
	"time"
)

// Inter-process mutual exclusion via an advisory flock on a companion lock
// file next to the registry. The lock file is zero bytes and never read; it
// only carries the lock. Two terminal sessions running the tool against the
// same vault serialize here.

const lockPollInterval = 25 * time.Millisecond

type fileLock struct {
	f *os.File
}

// acquireLock blocks until the exclusive lock is held. A timeout of zero
// blocks indefinitely; a positive timeout polls and fails with ErrLockTimeout
// when it expires, so a crashed holder cannot hang callers forever.
func acquireLock(path string, timeout time.Duration) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	if timeout <= 0 {
		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
			f.Close()
			return nil, fmt.Errorf("flock failed: %w", err)
		}
		return &fileLock{f: f}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			return &fileLock{f: f}, nil
		}
		if err != syscall.EWOULDBLOCK && err != syscall.EAGAIN {
			f.Close()
			return nil, fmt.Errorf("flock failed: %w", err)
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("lock not acquired within %v: %w", timeout, ErrLockTimeout)
		}
		time.Sleep(lockPollInterval)
	}
}

func (l *fileLock) release() {
	if l == nil || l.f == nil {
		return
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	l.f.Close()
	l.f = nil
}
