// Package codeintel answers hover and definition requests from the built project of a file.
package codeintel

import (
	"context"
	"errors"
	"fmt"

	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	ulsperrors "github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _nameKey = "code-intel"

// Controller defines the interface for the code intelligence plugin.
type Controller interface {
	StartupInfo(ctx context.Context) (ulspplugin.PluginInfo, error)
}

// Params are inbound parameters to initialize a new plugin.
type Params struct {
	fx.In

	Registry projects.Registry
	Overlay  overlay.Overlay
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
}

type controller struct {
	registry projects.Registry
	overlay  overlay.Overlay
	logger   *zap.SugaredLogger
	stats    tally.Scope
}

// lookupResult is a symbol with positions in the current text of the documents involved.
type lookupResult struct {
	symbol analysis.Symbol
	// origin is the range of the reference that was looked up.
	origin protocol.Range
}

// New creates a new code intelligence plugin.
func New(p Params) Controller {
	return &controller{
		registry: p.Registry,
		overlay:  p.Overlay,
		logger:   p.Logger.With("plugin", _nameKey),
		stats:    p.Stats.SubScope("code_intel"),
	}
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (ulspplugin.PluginInfo, error) {
	priorities := map[string]ulspplugin.Priority{
		protocol.MethodInitialize:             ulspplugin.PriorityRegular,
		protocol.MethodTextDocumentHover:      ulspplugin.PriorityRegular,
		protocol.MethodTextDocumentDefinition: ulspplugin.PriorityRegular,
	}

	methods := &ulspplugin.Methods{
		PluginNameKey: _nameKey,

		Initialize:     c.initialize,
		Hover:          c.hover,
		GotoDefinition: c.gotoDefinition,
	}

	return ulspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

func (c *controller) initialize(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
	mapper.InitializeResultEnsureHoverProvider(result, false)
	mapper.InitializeResultEnsureDefinitionProvider(result, false)
	return nil
}

func (c *controller) hover(ctx context.Context, params *protocol.HoverParams, result *protocol.Hover) error {
	path := mapper.URIToPath(params.TextDocument.URI)
	found, err := c.lookup(ctx, path, params.Position)
	if err != nil || found == nil {
		return err
	}
	c.stats.Counter("hover").Inc(1)

	detail := found.symbol.Detail
	if detail == "" {
		detail = found.symbol.Name
	}
	result.Contents = protocol.MarkupContent{
		Kind:  protocol.Markdown,
		Value: fmt.Sprintf("```\n%s\n```", detail),
	}
	origin := found.origin
	result.Range = &origin
	return nil
}

func (c *controller) gotoDefinition(ctx context.Context, params *protocol.DefinitionParams, result *[]protocol.LocationLink) error {
	path := mapper.URIToPath(params.TextDocument.URI)
	found, err := c.lookup(ctx, path, params.Position)
	if err != nil || found == nil || found.symbol.Path == "" {
		return err
	}
	c.stats.Counter("definition").Inc(1)

	*result = append(*result, protocol.LocationLink{
		OriginSelectionRange: &found.origin,
		TargetURI:            mapper.PathToURI(found.symbol.Path),
		TargetRange:          found.symbol.Range,
		TargetSelectionRange: found.symbol.Range,
	})
	return nil
}

// lookup resolves the symbol at pos of path. Files outside every root and roots without a usable project have no symbols.
func (c *controller) lookup(ctx context.Context, path string, pos protocol.Position) (*lookupResult, error) {
	var found *lookupResult
	err := c.registry.EnsureBuiltForRead(ctx, path, func(project analysis.Project, unit analysis.Unit) error {
		positions, err := c.overlay.PositionMapper(path, unit.Source())
		if err != nil {
			return err
		}
		basePos, isNew, err := positions.MapCurrentPositionToBase(pos)
		if err != nil || isNew {
			// Text typed since the last build has no symbols yet.
			return err
		}

		symbol, err := project.LookupSymbol(unit, basePos)
		if err != nil || symbol == nil {
			return err
		}

		found = &lookupResult{
			symbol: *symbol,
			origin: protocol.Range{Start: pos, End: pos},
		}
		found.symbol.Range, err = c.currentRange(project, unit, symbol)
		return err
	})

	var rootNotFound *ulsperrors.RootNotFoundError
	switch {
	case errors.As(err, &rootNotFound), errors.Is(err, projects.ErrProjectBroken):
		c.logger.Debugf("No symbols for %q: %v", path, err)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return found, nil
}

// currentRange maps the range of symbol from the text its unit was built from to the text open in the editor.
func (c *controller) currentRange(project analysis.Project, unit analysis.Unit, symbol *analysis.Symbol) (protocol.Range, error) {
	target := unit
	if symbol.Path != unit.Path() {
		if target = project.FindUnit(symbol.Path); target == nil {
			return symbol.Range, nil
		}
	}
	positions, err := c.overlay.PositionMapper(symbol.Path, target.Source())
	if err != nil {
		return protocol.Range{}, err
	}
	return positions.MapBaseRangeToCurrent(symbol.Range)
}
