package handler

import (
	"fmt"

	ulspdaemon "github.com/uber/project-lsp/src/ulsp/controller/ulsp-daemon"
	"github.com/uber/project-lsp/src/ulsp/internal/serverinfofile"
	"go.uber.org/config"
)

const (
	_configKeyJSONRPC = "jsonrpc"

	_infoKeyName      = "name"
	_infoKeyTransport = "transport"

	_transportStdio = "stdio"
	_transportTCP   = "tcp"
)

// outputServerInfo records which server owns the info file and how clients reach it.
// The listening address itself is added by the JSON-RPC inbound once it is bound.
func outputServerInfo(cfg config.Provider, infofile serverinfofile.ServerInfoFile) error {
	var inbound struct {
		Stdio bool `yaml:"stdio"`
	}
	if err := cfg.Get(_configKeyJSONRPC).Populate(&inbound); err != nil {
		return fmt.Errorf("loading %s config: %w", _configKeyJSONRPC, err)
	}

	transport := _transportTCP
	if inbound.Stdio {
		transport = _transportStdio
	}

	if err := infofile.UpdateField(_infoKeyName, ulspdaemon.ServerName); err != nil {
		return fmt.Errorf("outputting %q to info file: %w", _infoKeyName, err)
	}
	if err := infofile.UpdateField(_infoKeyTransport, transport); err != nil {
		return fmt.Errorf("outputting %q to info file: %w", _infoKeyTransport, err)
	}
	return nil
}
