// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package probe ships the reference capability a scope can dispense: a
// small introspection surface reporting the identity of the isolated
// context serving it. Hosts use it to verify isolation took effect, and it
// doubles as the template for writing real capabilities.
package probe

import (
	"os"

	"github.com/hashicorp/go-isolate"
)

// Name is the dispense key the probe capability registers under.
const Name = "probe"

// Info describes the process serving a dispensed probe.
type Info struct {
	// Pid of the context process.
	Pid int

	// BaseDir is the context's working directory, which a scope points at
	// the target's directory.
	BaseDir string

	// Executable is the path of the running binary, which a scope points
	// at the private shadow copy.
	Executable string

	// ConfigPath is the configuration file path the host derived for the
	// target, empty outside a scope.
	ConfigPath string
}

// A Probe reports the identity of the context it runs in.
type Probe interface {
	Ping() error
	Info() (*Info, error)
}

// osProbe answers from the calling process.
type osProbe struct{}

// NewProbe returns a probe describing the current process.
func NewProbe() Probe {
	return &osProbe{}
}

func (p *osProbe) Ping() error {
	return nil
}

func (p *osProbe) Info() (*Info, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return &Info{
		Pid:        os.Getpid(),
		BaseDir:    wd,
		Executable: exe,
		ConfigPath: isolate.ConfigPath(),
	}, nil
}
