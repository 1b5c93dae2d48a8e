// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package isolate creates isolated execution contexts: separate OS
// processes built from a private copy of a target binary, with support
// files staged beside the target and capabilities dispensed back to the
// host over RPC.
//
// A Scope is the unit of isolation. Construction is cheap and touches no
// files; the first Dispense does the work — serializing against other
// host processes staging into the same directory, refreshing the target's
// support files, shadow-copying the target into a private cache directory,
// and launching the copy as a plugin subprocess. Later Dispense calls
// reuse the live context. Close kills the context and reclaims the cache
// directory, and is safe to defer unconditionally.
//
// Running a copy rather than the target itself means the target binary
// stays untouched while the context is alive: the host (or a build system)
// can rewrite it at any time without hitting text-file-busy errors or
// sharing violations.
package isolate

import (
	"errors"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

var (
	// ErrTargetRequired is returned by New when the target path is empty.
	ErrTargetRequired = errors.New("isolate: target binary path required")

	// ErrScopeClosed is returned by Dispense after Close.
	ErrScopeClosed = errors.New("isolate: scope is closed")

	// ErrContextExited is returned by Dispense when the context process
	// died underneath a live scope. The scope does not respawn it.
	ErrContextExited = errors.New("isolate: context process exited")
)

// A Scope owns at most one isolated execution context for one target
// binary. Methods are safe for concurrent use; the context is created at
// most once.
type Scope struct {
	logger hclog.Logger
	config *Config

	targetPath string

	mu       sync.Mutex
	closed   bool
	client   *plugin.Client
	rpc      plugin.ClientProtocol
	cacheDir string
}

// New builds a scope for the target binary at targetPath. Nothing is read
// or written until the first Dispense, so the target does not need to
// exist yet. A nil config means defaults.
func New(logger hclog.Logger, targetPath string, config *Config) (*Scope, error) {
	if targetPath == "" {
		return nil, ErrTargetRequired
	}
	if logger == nil {
		logger = hclog.Default()
	}
	return &Scope{
		logger:     logger.Named("isolate"),
		config:     config.defaulted(),
		targetPath: targetPath,
	}, nil
}

// Dispense returns the capability registered under name, served from the
// scope's context. The first call creates the context and is bounded by
// the lock timeout plus staging and launch time; later calls cost one RPC
// dispense. The concrete type is the one produced by the capability's
// plugin client, so callers assert it to the capability interface.
func (s *Scope) Dispense(name string) (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrScopeClosed
	}
	if s.client == nil {
		if err := s.createContext(); err != nil {
			return nil, err
		}
	} else if s.client.Exited() {
		return nil, ErrContextExited
	}
	return s.rpc.Dispense(name)
}

// Target returns the path of the binary the scope isolates.
func (s *Scope) Target() string {
	return s.targetPath
}

// CacheDir returns the private directory holding the context's copy of the
// target, or the empty string while no context is live.
func (s *Scope) CacheDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cacheDir
}

// Close kills the context process and removes the cache directory. It is
// idempotent, a no-op on a scope that never dispensed, and never reports
// failure: teardown problems are logged and swallowed. The scope is
// terminal afterwards; Dispense returns ErrScopeClosed.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.client != nil {
		s.client.Kill()
		s.client = nil
		s.rpc = nil
	}
	if s.cacheDir != "" {
		if err := os.RemoveAll(s.cacheDir); err != nil {
			s.logger.Warn("failed to remove context cache directory",
				"dir", s.cacheDir, "error", err)
		}
		s.cacheDir = ""
	}
}

// namespace returns the configured namespace, deriving one from the
// hosting executable on first use. Callers hold s.mu.
func (s *Scope) namespace() string {
	if s.config.Namespace == "" {
		s.config.Namespace = deriveNamespace()
	}
	return s.config.Namespace
}
