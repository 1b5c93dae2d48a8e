// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package isolate

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-plugin"
)

const (
	// DefaultLockTimeout bounds how long context creation waits for the
	// cross-process staging lock before proceeding without it.
	DefaultLockTimeout = 60 * time.Second

	// EnvConfigPath names the environment variable through which a scope
	// passes the target's configuration file path into its context.
	EnvConfigPath = "ISOLATE_CONFIG_PATH"

	// configSuffix is appended to the target path to derive the
	// configuration file path handed to the context.
	configSuffix = ".config"
)

// Config adjusts how a Scope materializes its context. The zero value is
// usable; New fills in defaults for anything unset.
type Config struct {
	// Plugins holds the capabilities the context serves, keyed by the
	// names passed to Dispense. The same map must be registered by the
	// target binary's Serve call.
	Plugins map[string]plugin.Plugin

	// Dependencies lists support files staged into the target's directory
	// before the context starts. Paths must resolve from the host.
	Dependencies []string

	// Args are passed to the context process after the executable path.
	Args []string

	// Env entries ("KEY=value") are appended to the host environment for
	// the context process.
	Env []string

	// CacheRoot is where per-context private copies of the target live.
	// Defaults to a fixed directory under the system temp dir.
	CacheRoot string

	// Namespace scopes lock keys and cache paths, isolating unrelated
	// applications from each other. Defaults to the hosting executable's
	// base name without extension.
	Namespace string

	// LockTimeout bounds the wait for the staging lock. Defaults to
	// DefaultLockTimeout.
	LockTimeout time.Duration
}

// defaulted returns a copy of c with defaults applied. A nil receiver is
// treated as an empty config. The namespace default is left for the scope
// to derive lazily, keeping construction free of system lookups.
func (c *Config) defaulted() *Config {
	out := &Config{}
	if c != nil {
		*out = *c
	}
	if out.CacheRoot == "" {
		out.CacheRoot = filepath.Join(os.TempDir(), "isolate-cache")
	}
	if out.LockTimeout == 0 {
		out.LockTimeout = DefaultLockTimeout
	}
	return out
}

// deriveNamespace names the lock and cache namespace after the hosting
// executable, so independent copies of one application contend with each
// other and nothing else.
func deriveNamespace() string {
	exe, err := os.Executable()
	if err != nil {
		return "isolate"
	}
	base := filepath.Base(exe)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
