package ulspdaemon

import (
	"context"

	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	"go.lsp.dev/protocol"
)

func (c *controller) DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	call := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.DidChangeWorkspaceFolders(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	return c.executePluginMethods(ctx, protocol.MethodWorkspaceDidChangeWorkspaceFolders, call, call)
}

func (c *controller) DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	call := func(ctx context.Context, m *ulspplugin.Methods) {
		if err := m.DidChangeConfiguration(ctx, params); err != nil {
			c.logger.Errorf(_errPluginReturnedError, m.PluginNameKey, err)
		}
	}
	return c.executePluginMethods(ctx, protocol.MethodWorkspaceDidChangeConfiguration, call, call)
}
