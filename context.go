// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package isolate

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/armon/circbuf"
	"github.com/hashicorp/go-plugin"
	"github.com/hashicorp/go-uuid"

	"github.com/hashicorp/go-isolate/helper/dirlock"
	"github.com/hashicorp/go-isolate/helper/stagefs"
)

// stderrBufSize bounds the rolling capture of context stderr kept for
// launch failure diagnostics.
const stderrBufSize = 16 * 1024

// createContext materializes the scope's isolated context: it stages
// dependencies beside the target under the cross-process lock, builds the
// private shadow copy, and launches the copy as a plugin subprocess.
// Called with s.mu held and no live client. Failure leaves no trace: the
// partially built cache directory is removed and a later Dispense may try
// again.
func (s *Scope) createContext() error {
	destDir := filepath.Dir(s.targetPath)
	ns := s.namespace()

	lock := dirlock.New(ns, destDir)
	err := lock.Acquire(s.config.LockTimeout)
	switch {
	case err == nil:
	case errors.Is(err, dirlock.ErrAcquireTimeout):
		// Proceed without exclusion rather than wedge behind a stuck
		// peer. Copies are atomic and idempotent, so the worst case of
		// unserialized staging is redundant work.
		s.logger.Warn("timed out waiting for staging lock, proceeding without it",
			"key", lock.Key(), "timeout", s.config.LockTimeout)
	default:
		return fmt.Errorf("failed to acquire staging lock %q: %w", lock.Key(), err)
	}
	defer lock.Release()

	if err := stagefs.NewStager(s.logger).Stage(s.config.Dependencies, destDir); err != nil {
		return err
	}

	cacheDir, err := s.buildCacheDir(ns)
	if err != nil {
		return err
	}

	shadow := filepath.Join(cacheDir, filepath.Base(s.targetPath))
	if err := stagefs.Copy(s.targetPath, shadow); err != nil {
		_ = os.RemoveAll(cacheDir)
		return err
	}

	client, rpcClient, err := s.launch(shadow, destDir)
	if err != nil {
		_ = os.RemoveAll(cacheDir)
		return err
	}

	s.client = client
	s.rpc = rpcClient
	s.cacheDir = cacheDir
	s.logger.Debug("created isolated context",
		"target", s.targetPath, "cache_dir", cacheDir)
	return nil
}

// buildCacheDir creates the private directory that holds this context's
// copy of the target: <cacheRoot>/<namespace>/<uuid>.
func (s *Scope) buildCacheDir(ns string) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("failed to generate cache dir name: %w", err)
	}
	dir := filepath.Join(s.config.CacheRoot, ns, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache dir %q: %w", dir, err)
	}
	return dir, nil
}

// launch starts the shadow copy as a plugin subprocess and completes the
// handshake. The process runs with the target's directory as its working
// directory, so relative lookups inside the context resolve against the
// real application base rather than the cache.
func (s *Scope) launch(shadow, destDir string) (*plugin.Client, plugin.ClientProtocol, error) {
	stderr, err := circbuf.NewBuffer(stderrBufSize)
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(shadow, s.config.Args...)
	cmd.Dir = destDir
	cmd.Env = append(os.Environ(), EnvConfigPath+"="+s.targetPath+configSuffix)
	cmd.Env = append(cmd.Env, s.config.Env...)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  Handshake,
		Plugins:          s.config.Plugins,
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
		Logger:           s.logger,
		Stderr:           stderr,
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			return nil, nil, fmt.Errorf("failed to start isolated context: %w (stderr: %s)", err, tail)
		}
		return nil, nil, fmt.Errorf("failed to start isolated context: %w", err)
	}
	return client, rpcClient, nil
}
