// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package stagefs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-isolate/ci"
	"github.com/shoenig/test/must"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	must.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCopy_CreatesDestination(t *testing.T) {
	ci.Parallel(t)

	src := writeFile(t, t.TempDir(), "runner.bin", "payload")
	must.NoError(t, os.Chmod(src, 0o755))

	dst := filepath.Join(t.TempDir(), "runner.bin")
	must.NoError(t, Copy(src, dst))

	got, err := os.ReadFile(dst)
	must.NoError(t, err)
	must.Eq(t, "payload", string(got))

	srcInfo, err := os.Stat(src)
	must.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	must.NoError(t, err)
	must.Eq(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	must.True(t, srcInfo.ModTime().Equal(dstInfo.ModTime()))
}

func TestCopy_TruncatesExisting(t *testing.T) {
	ci.Parallel(t)

	src := writeFile(t, t.TempDir(), "dep.dat", "short")

	dstDir := t.TempDir()
	dst := writeFile(t, dstDir, "dep.dat", "a much longer stale payload")

	must.NoError(t, Copy(src, dst))

	got, err := os.ReadFile(dst)
	must.NoError(t, err)
	must.Eq(t, "short", string(got))
}

func TestCopy_SourceStaysWritable(t *testing.T) {
	ci.Parallel(t)

	src := writeFile(t, t.TempDir(), "dep.dat", "original")

	// A sibling process may append to or rewrite the source while we copy;
	// the copy must not deny it access.
	w, err := os.OpenFile(src, os.O_WRONLY|os.O_APPEND, 0)
	must.NoError(t, err)
	defer w.Close()

	dst := filepath.Join(t.TempDir(), "dep.dat")
	must.NoError(t, Copy(src, dst))

	_, err = w.WriteString(" rebuilt")
	must.NoError(t, err)
}

func TestCopy_MultipleChunks(t *testing.T) {
	ci.Parallel(t)

	// Larger than the copy buffer and deliberately not a multiple of it.
	payload := bytes.Repeat([]byte("0123456789abcdef"), 4*1024)
	payload = append(payload, 'x', 'y', 'z')

	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "big.bin")
	must.NoError(t, os.WriteFile(src, payload, 0o644))

	dst := filepath.Join(t.TempDir(), "big.bin")
	must.NoError(t, Copy(src, dst))

	got, err := os.ReadFile(dst)
	must.NoError(t, err)
	must.True(t, bytes.Equal(payload, got))
}

func TestCopy_MissingSource(t *testing.T) {
	ci.Parallel(t)

	dst := filepath.Join(t.TempDir(), "dep.dat")
	err := Copy(filepath.Join(t.TempDir(), "nope.dat"), dst)
	must.ErrorIs(t, err, os.ErrNotExist)

	_, err = os.Stat(dst)
	must.ErrorIs(t, err, os.ErrNotExist)
}

func TestCopy_NoTemporaryLeftovers(t *testing.T) {
	ci.Parallel(t)

	src := writeFile(t, t.TempDir(), "dep.dat", "payload")

	dstDir := t.TempDir()
	must.NoError(t, Copy(src, filepath.Join(dstDir, "dep.dat")))

	entries, err := os.ReadDir(dstDir)
	must.NoError(t, err)
	must.Len(t, 1, entries)
	must.Eq(t, "dep.dat", entries[0].Name())
}
