// Package app assembles the project-lsp daemon from its modules.
package app

import (
	"context"
	"time"

	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/gateway"
	"github.com/uber/project-lsp/src/ulsp/handler"
	"github.com/uber/project-lsp/src/ulsp/internal/core"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/internal/jsonrpcfx"
	"github.com/uber/project-lsp/src/ulsp/internal/serverinfofile"
	"go.uber.org/fx"
)

const _metricsReportInterval = time.Second

// Module defines the project-lsp application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	executor.Module,
	serverinfofile.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(newRootScope),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        EnvLocal,
			RuntimeEnvironment: EnvLocal,
		}
	}),
)

func newRootScope(lc fx.Lifecycle, env Context) tally.Scope {
	rs, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix: "project_lsp",
		Tags: map[string]string{
			"service": "project-lsp",
			"env":     env.Environment,
		},
	}, _metricsReportInterval)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closer.Close()
		},
	})

	return rs
}
