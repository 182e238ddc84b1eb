// Package gateway provides the outbound clients of the daemon.
package gateway

import (
	ideclient "github.com/uber/project-lsp/src/ulsp/gateway/ide-client"
	"go.uber.org/fx"
)

// Module provides the IDE client gateway.
var Module = fx.Options(
	fx.Provide(ideclient.New),
)
