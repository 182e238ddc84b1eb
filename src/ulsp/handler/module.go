package handler

import (
	controller "github.com/uber/project-lsp/src/ulsp/controller"
	ulspdaemon "github.com/uber/project-lsp/src/ulsp/controller/ulsp-daemon"
	handler "github.com/uber/project-lsp/src/ulsp/handler/ulsp-daemon"
	"github.com/uber/project-lsp/src/ulsp/repository/session"
	"go.uber.org/fx"
)

// Module provides the project-lsp server into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(handler.New),
	fx.Invoke(outputServerInfo),
	fx.Invoke(func(m handler.Handler) {}),
	fx.Invoke(func(m ulspdaemon.Controller) {}),
)
