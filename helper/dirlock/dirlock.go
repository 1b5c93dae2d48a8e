// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package dirlock provides machine-wide mutual exclusion keyed by a
// destination directory, serializing file staging across independently
// launched processes that may target the same directory at the same time.
//
// Locks are named, OS-visible objects: a flock(2)-held sentinel file under
// the system temp directory on unix-like systems, a named mutex on windows.
// In both cases a holder that exits without releasing abandons the lock to
// the next acquirer instead of wedging it. Staging tolerates that: the
// protected invariant — "the destination holds a complete, current staged
// set" — self-heals through idempotent recopies, so abandonment costs at
// worst a redundant copy, never corruption.
package dirlock

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// maxKeyLen bounds derived keys so they stay usable as file and kernel
// object names; longer keys keep a recognizable prefix plus a digest tail.
const maxKeyLen = 180

// ErrAcquireTimeout is returned by Acquire when the wait expires before the
// lock is obtained. Callers decide whether that is fatal.
var ErrAcquireTimeout = errors.New("dirlock: timed out waiting for lock")

var keySanitizer = strings.NewReplacer("/", "_", "\\", "_", ":", "_")

// A Lock is a cross-process lock scoped to one destination directory within
// one application namespace. Construction performs no I/O. A Lock value is
// not safe for concurrent use by multiple goroutines; give each acquirer its
// own Lock — they still exclude one another through the named OS object.
type Lock struct {
	key   string
	held  bool
	state lockState
}

// New returns a lock for dir scoped by namespace. Two locks contend exactly
// when both derive the same key, meaning the same namespace and directory.
func New(namespace, dir string) *Lock {
	return &Lock{key: keyFor(namespace, dir)}
}

// Key returns the derived OS-visible lock name.
func (l *Lock) Key() string {
	return l.key
}

// Acquire blocks until the lock is held or timeout elapses, returning
// ErrAcquireTimeout in the latter case. A lock abandoned by a holder that
// died is acquired as if it had been released. A zero timeout still makes
// one immediate attempt.
func (l *Lock) Acquire(timeout time.Duration) error {
	if l.held {
		return errors.New("dirlock: lock already held")
	}
	if err := l.state.acquire(l.key, timeout); err != nil {
		return err
	}
	l.held = true
	return nil
}

// Release drops the lock. It is best effort: failures are discarded, and
// releasing a lock that is not held is a no-op.
func (l *Lock) Release() {
	if !l.held {
		return
	}
	l.state.release()
	l.held = false
}

// keyFor derives the lock name from an application namespace and a
// destination directory. The name is a function of the directory, not of
// any file within it, so scopes targeting different files in one directory
// contend on one lock. Path separators and drive colons become underscores
// to keep the name legal for file systems and kernel object namespaces.
func keyFor(namespace, dir string) string {
	key := keySanitizer.Replace(namespace + "-" + filepath.Clean(dir))
	if len(key) > maxKeyLen {
		sum := sha256.Sum256([]byte(key))
		key = key[:maxKeyLen] + "-" + hex.EncodeToString(sum[:8])
	}
	return key
}
