// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package stagefs places runtime support files alongside a target binary in
// a shared destination directory. Staging is idempotent and self-healing: a
// file is rewritten only when the staged copy is missing or older than its
// source, so a newer build of a dependency replaces a stale copy on the next
// pass while current copies are left untouched. Sources are never opened
// exclusively, allowing sibling processes to rebuild or restage them
// concurrently.
package stagefs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"oss.indeed.com/go/libtime"
)

// Stager copies fixed sets of support files into destination directories.
type Stager struct {
	logger hclog.Logger
	clock  libtime.Clock
}

// NewStager returns a Stager that logs staging decisions to logger and
// times passes with the system clock.
func NewStager(logger hclog.Logger) *Stager {
	return NewStagerWithClock(logger, libtime.SystemClock())
}

// NewStagerWithClock is NewStager with the pass timer under the caller's
// control.
func NewStagerWithClock(logger hclog.Logger, clock libtime.Clock) *Stager {
	return &Stager{
		logger: logger.Named("stagefs"),
		clock:  clock,
	}
}

// Stage ensures destDir holds a current copy of every file in files, keyed
// by base name. A destination file is rewritten only when it is missing or
// its modification time (UTC) is strictly older than the source's; the
// comparison uses a single time base so processes in different zones agree.
// Every file is attempted even after a failure, and failures are aggregated
// into the returned error.
func (s *Stager) Stage(files []string, destDir string) error {
	start := s.clock.Now()

	var mErr *multierror.Error
	for _, src := range files {
		if err := s.stageFile(src, destDir); err != nil {
			mErr = multierror.Append(mErr, err)
		}
	}
	if err := mErr.ErrorOrNil(); err != nil {
		return err
	}

	s.logger.Debug("staged support files", "dir", destDir,
		"files", len(files), "elapsed", s.clock.Since(start))
	return nil
}

func (s *Stager) stageFile(src, destDir string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to resolve support file %q: %w", src, err)
	}

	dst := filepath.Join(destDir, filepath.Base(src))
	dstInfo, err := os.Stat(dst)
	switch {
	case os.IsNotExist(err):
		s.logger.Debug("staging missing support file", "file", dst)
	case err != nil:
		return fmt.Errorf("failed to stat staged copy %q: %w", dst, err)
	case dstInfo.ModTime().UTC().Before(srcInfo.ModTime().UTC()):
		s.logger.Debug("refreshing stale support file", "file", dst)
	default:
		// Staged copy is current.
		return nil
	}

	return Copy(src, dst)
}
