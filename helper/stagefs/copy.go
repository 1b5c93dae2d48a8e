// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package stagefs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// copyBufSize is the chunk size used when streaming file contents.
const copyBufSize = 10 * 1024

// Copy copies src to dst without holding any lock that would keep another
// process from reading or rewriting src while the copy is in flight. The
// source is opened for shared reads only. Contents are written to a hidden
// temporary file in dst's directory and renamed into place, so a reader of
// dst never observes a partially written copy under its final name. The
// destination keeps the source's permission bits and modification time.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = io.CopyBuffer(tmp, in, make([]byte, copyBufSize))
	if err == nil {
		err = tmp.Chmod(info.Mode().Perm())
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		// Carry the source timestamp so staleness checks compare build
		// times rather than the time of this copy.
		err = os.Chtimes(tmpName, info.ModTime(), info.ModTime())
	}
	if err == nil {
		err = os.Rename(tmpName, dst)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to copy %q to %q: %w", src, dst, err)
	}
	return nil
}
