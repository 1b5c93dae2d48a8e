// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build windows

package dirlock

import (
	"fmt"
	"time"

	"golang.org/x/sys/windows"
)

type lockState struct {
	handle windows.Handle
}

// acquire opens or creates the named mutex for the key and waits for
// ownership. WAIT_ABANDONED signals the previous holder exited while owning
// the mutex; ownership still transfers, and staging self-heals from
// whatever partial state the holder left behind.
func (s *lockState) acquire(key string, timeout time.Duration) error {
	name, err := windows.UTF16PtrFromString(key)
	if err != nil {
		return fmt.Errorf("dirlock: invalid lock name: %w", err)
	}

	h, err := windows.CreateMutex(nil, false, name)
	if err != nil && err != windows.ERROR_ALREADY_EXISTS {
		return fmt.Errorf("dirlock: failed to create mutex: %w", err)
	}

	ev, werr := windows.WaitForSingleObject(h, uint32(timeout/time.Millisecond))
	switch ev {
	case windows.WAIT_OBJECT_0, windows.WAIT_ABANDONED:
		s.handle = h
		return nil
	case uint32(windows.WAIT_TIMEOUT):
		windows.CloseHandle(h)
		return ErrAcquireTimeout
	default:
		windows.CloseHandle(h)
		if werr != nil {
			return fmt.Errorf("dirlock: wait failed: %w", werr)
		}
		return fmt.Errorf("dirlock: wait failed: event %#x", ev)
	}
}

func (s *lockState) release() {
	if s.handle == 0 {
		return
	}
	_ = windows.ReleaseMutex(s.handle)
	_ = windows.CloseHandle(s.handle)
	s.handle = 0
}
