package controller

import (
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/analysis/golang"
	"github.com/uber/project-lsp/src/ulsp/controller/checker"
	codeintel "github.com/uber/project-lsp/src/ulsp/controller/code-intel"
	"github.com/uber/project-lsp/src/ulsp/controller/diagnostics"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	ulspdaemon "github.com/uber/project-lsp/src/ulsp/controller/ulsp-daemon"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher"
	"github.com/uber/project-lsp/src/ulsp/controller/workspace"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"go.uber.org/fx"
)

// Module provides the controllers and the analysis engine behind them.
var Module = fx.Options(
	fx.Provide(ulspdaemon.New),
	fx.Provide(newEngine),
	projectconfig.Module,
	fx.Provide(overlay.New),
	fx.Provide(watcher.New),
	fx.Provide(projects.New),
	fx.Provide(diagnostics.New),
	fx.Provide(checker.New),
	fx.Provide(workspace.New),
	fx.Provide(codeintel.New),
)

func newEngine(projectFS fs.ProjectFS) analysis.Engine {
	return golang.NewEngine(projectFS)
}
