package ulspdaemon

import (
	"context"
	"fmt"

	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	"go.lsp.dev/protocol"
)

func (c *controller) GotoDefinition(ctx context.Context, params *protocol.DefinitionParams) ([]protocol.LocationLink, error) {
	result := make([]protocol.LocationLink, 0)

	callSync := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.GotoDefinition(ctx, params, &result); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	callAsync := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.GotoDefinition(ctx, params, nil); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}

	if err := c.executePluginMethods(ctx, protocol.MethodTextDocumentDefinition, callSync, callAsync); err != nil {
		return nil, fmt.Errorf(_errBadPluginCall, err)
	}

	return result, nil
}

func (c *controller) Hover(ctx context.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	result := &protocol.Hover{}

	callSync := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.Hover(ctx, params, result); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	callAsync := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.Hover(ctx, params, nil); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}

	if err := c.executePluginMethods(ctx, protocol.MethodTextDocumentHover, callSync, callAsync); err != nil {
		return nil, fmt.Errorf(_errBadPluginCall, err)
	}

	// Send nil back for empty hovers to avoid an error message or empty popup
	if result.Contents.Value == "" {
		result = nil
	}

	return result, nil
}
