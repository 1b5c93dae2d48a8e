// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// pollInterval is how often a blocked acquire retries the flock.
const pollInterval = 50 * time.Millisecond

type lockState struct {
	f *os.File
}

// acquire takes an exclusive flock(2) on a sentinel file named after the
// key under the system temp directory. The kernel drops the flock when the
// holding process exits, which is what makes abandonment recoverable. The
// non-blocking variant is polled so a deadline can be honored.
func (s *lockState) acquire(key string, timeout time.Duration) error {
	path := filepath.Join(os.TempDir(), key+".lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o666)
	if err != nil {
		return fmt.Errorf("dirlock: failed to open lock file: %w", err)
	}
	// The create mode is umask-filtered, which would leave a sentinel
	// created under one account unopenable by another contending on the
	// same directory. Best effort: the chmod fails when the file belongs
	// to someone else, in which case it is already open enough for us to
	// have gotten this far.
	_ = f.Chmod(0o666)

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			s.f = f
			return nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			f.Close()
			return fmt.Errorf("dirlock: flock %s: %w", path, err)
		}
		if !time.Now().Before(deadline) {
			f.Close()
			return ErrAcquireTimeout
		}
		time.Sleep(pollInterval)
	}
}

// release unlocks and closes the sentinel file. The file itself is left in
// place; removing it would race with a concurrent acquirer holding the same
// inode.
func (s *lockState) release() {
	if s.f == nil {
		return
	}
	_ = unix.Flock(int(s.f.Fd()), unix.LOCK_UN)
	_ = s.f.Close()
	s.f = nil
}
