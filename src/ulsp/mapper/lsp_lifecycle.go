package mapper

import (
	"go.lsp.dev/protocol"
)

// InitializeResultEnsureDefinitionProvider ensures the definition provider capability is set
func InitializeResultEnsureDefinitionProvider(initResult *protocol.InitializeResult, workDoneProgress bool) {
	if initResult == nil {
		return
	}
	opts, ok := initResult.Capabilities.DefinitionProvider.(*protocol.DefinitionOptions)
	if !ok {
		opts = &protocol.DefinitionOptions{}
		initResult.Capabilities.DefinitionProvider = opts
	}
	if workDoneProgress {
		opts.WorkDoneProgress = true
	}
}

// InitializeResultEnsureHoverProvider ensures the hover provider capability is set
func InitializeResultEnsureHoverProvider(initResult *protocol.InitializeResult, workDoneProgress bool) {
	if initResult == nil {
		return
	}
	opts, ok := initResult.Capabilities.HoverProvider.(*protocol.HoverOptions)
	if !ok {
		opts = &protocol.HoverOptions{}
		initResult.Capabilities.HoverProvider = opts
	}
	if workDoneProgress {
		opts.WorkDoneProgress = true
	}
}

// InitializeResultEnsureWorkspaceFolders advertises multi-root support, including notifications when folders change.
// Other workspace capabilities already present on the result are left untouched.
func InitializeResultEnsureWorkspaceFolders(initResult *protocol.InitializeResult) {
	if initResult == nil {
		return
	}
	if initResult.Capabilities.Workspace == nil {
		initResult.Capabilities.Workspace = &protocol.ServerCapabilitiesWorkspace{}
	}
	initResult.Capabilities.Workspace.WorkspaceFolders = &protocol.ServerCapabilitiesWorkspaceFolders{
		Supported:           true,
		ChangeNotifications: true,
	}
}
