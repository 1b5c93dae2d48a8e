// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package probe

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// PluginMap registers the probe under its dispense name. The same map
// works on both sides: hosts pass it in their scope config, target
// binaries in their Serve config.
var PluginMap = map[string]plugin.Plugin{
	Name: new(Plugin),
}

// ProbeRPC is the host-side stub returned by Dispense.
type ProbeRPC struct {
	client *rpc.Client
}

func (p *ProbeRPC) Ping() error {
	return p.client.Call("Plugin.Ping", new(interface{}), new(interface{}))
}

func (p *ProbeRPC) Info() (*Info, error) {
	var info Info
	if err := p.client.Call("Plugin.Info", new(interface{}), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ProbeRPCServer serves a Probe over RPC inside the context.
type ProbeRPCServer struct {
	Impl Probe
}

func (s *ProbeRPCServer) Ping(args interface{}, resp *interface{}) error {
	return s.Impl.Ping()
}

func (s *ProbeRPCServer) Info(args interface{}, info *Info) error {
	i, err := s.Impl.Info()
	if i != nil {
		*info = *i
	}
	return err
}

// Plugin implements plugin.Plugin for the probe capability.
type Plugin struct {
	Impl Probe
}

func (p *Plugin) Server(*plugin.MuxBroker) (interface{}, error) {
	if p.Impl == nil {
		p.Impl = NewProbe()
	}
	return &ProbeRPCServer{Impl: p.Impl}, nil
}

func (p *Plugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &ProbeRPC{client: c}, nil
}
