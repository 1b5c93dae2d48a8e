// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package isolate

import (
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-plugin"
)

// Handshake is the shared handshake between scopes and the contexts they
// launch. The cookie lets a target binary detect it was started by a scope
// rather than invoked directly; it is not a security measure.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "ISOLATE_PLUGIN_MAGIC_COOKIE",
	MagicCookieValue: "89b25ff5c7e0d9a0a32ec0f1ad2df75c0852ea4ae1e35b1b92a0e40f65a2ba11",
}

// ServeConfig configures the context side of a scope.
type ServeConfig struct {
	// Plugins are the capabilities this context serves, keyed by the
	// names hosts pass to Dispense.
	Plugins map[string]plugin.Plugin

	// Logger defaults to a JSON trace logger on stderr, which the host
	// forwards through its own logging.
	Logger hclog.Logger
}

// Serve runs the context's capability server and blocks until the host
// side goes away. It is the last call a target binary's main should make
// when it detects it is running inside a scope.
func Serve(config *ServeConfig) {
	logger := config.Logger
	if logger == nil {
		logger = hclog.New(&hclog.LoggerOptions{
			Level:      hclog.Trace,
			JSONFormat: true,
			Name:       "isolate-context",
		})
	}
	plugin.Serve(&plugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         config.Plugins,
		Logger:          logger,
	})
}

// ConfigPath returns the configuration file path the host derived for the
// target, or the empty string when not running inside a scope.
func ConfigPath() string {
	return os.Getenv(EnvConfigPath)
}
