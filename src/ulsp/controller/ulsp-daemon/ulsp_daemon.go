// Package ulspdaemon implements the ulsp-daemon business logic.
package ulspdaemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	codeintel "github.com/uber/project-lsp/src/ulsp/controller/code-intel"
	"github.com/uber/project-lsp/src/ulsp/controller/workspace"
	"github.com/uber/project-lsp/src/ulsp/entity"
	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	ideclient "github.com/uber/project-lsp/src/ulsp/gateway/ide-client"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/repository/session"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// Error templates
	_errBadPluginCall       = "calling plugin: %s"
	_errPluginReturnedError = "plugin %q returned error: %s"

	// Configuration keys
	_idleTimeoutMinutesKey = "idleTimeoutMinutes"
	_pluginsKey            = "ulspPlugins"

	_asyncTimeout = 5 * time.Minute
)

// Controller orchestrates the business logic for each request.
type Controller interface {
	// LSP Methods defined per protocol.
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context, params *protocol.InitializedParams) (err error)
	Shutdown(ctx context.Context) (err error)
	Exit(ctx context.Context) error

	// Document related methods.
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error
	DidChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error
	DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error

	// Codeintel related methods.
	GotoDefinition(ctx context.Context, params *protocol.DefinitionParams) (result []protocol.LocationLink, err error)
	Hover(ctx context.Context, params *protocol.HoverParams) (result *protocol.Hover, err error)

	// Workspace related methods.
	DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error
	DidChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error

	// Custom methods for use within this service.
	RequestFullShutdown(ctx context.Context) error
	InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error)
	EndSession(ctx context.Context, uuid uuid.UUID) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Shutdowner fx.Shutdowner
	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Logger     *zap.SugaredLogger
	Config     config.Provider
	Executor   executor.Executor

	PluginWorkspace workspace.Controller
	PluginCodeIntel codeintel.Controller
}

type controller struct {
	sessions           session.Repository
	shutdowner         fx.Shutdowner
	fullShutdown       bool
	idleTimer          *time.Timer
	idleTimerMu        sync.Mutex
	idleTimeoutMinutes time.Duration
	logger             *zap.SugaredLogger
	ideGateway         ideclient.Gateway
	pluginMethodsMu    sync.RWMutex
	pluginMethods      map[uuid.UUID]ulspplugin.RuntimePrioritizedMethods
	pluginConfig       map[string]bool
	pluginsAll         []ulspplugin.Plugin
	executor           executor.Executor
}

// New constructs a new top-level controller for the service.
func New(p Params) (Controller, error) {
	ctx := context.Background()

	var timeoutMinutesRaw int64
	if err := p.Config.Get(_idleTimeoutMinutesKey).Populate(&timeoutMinutesRaw); err != nil || timeoutMinutesRaw == 0 {
		return nil, fmt.Errorf("unable to get idle timeout from config: %w", err)
	}
	var pluginConfig map[string]bool
	if err := p.Config.Get(_pluginsKey).Populate(&pluginConfig); err != nil {
		return nil, fmt.Errorf("unable to get plugin keys from config: %w", err)
	}

	// When creating a new plugin, add it as a dependency in Params, then add it to the list of available plugins here.
	availablePlugins := []ulspplugin.Plugin{p.PluginWorkspace, p.PluginCodeIntel}

	c := &controller{
		sessions:   p.Sessions,
		shutdowner: p.Shutdowner,
		logger:     p.Logger,
		ideGateway: p.IdeGateway,
		executor:   p.Executor,

		idleTimeoutMinutes: time.Duration(timeoutMinutesRaw) * time.Minute,
		pluginMethods:      map[uuid.UUID]ulspplugin.RuntimePrioritizedMethods{},
		pluginConfig:       pluginConfig,
		pluginsAll:         availablePlugins,
	}
	c.refreshIdleTimer(ctx)

	return c, nil
}

func (c *controller) registerSessionPlugins(ctx context.Context) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	enabledPlugins := []ulspplugin.PluginInfo{}
	for _, plugin := range c.pluginsAll {
		if plugin == nil {
			continue
		}
		info, err := plugin.StartupInfo(ctx)
		if err != nil {
			return fmt.Errorf("getting plugin startup info: %w", err)
		}

		if isEnabled := c.pluginConfig[info.NameKey]; isEnabled {
			c.logger.Infow("plugin registration", "plugin", info.NameKey, "status", "enabled")
			enabledPlugins = append(enabledPlugins, info)
		} else {
			c.logger.Infow("plugin registration", "plugin", info.NameKey, "status", "disabled")
		}
	}

	methods, err := mapper.PluginInfoToRuntimePrioritizedMethods(enabledPlugins)
	if err != nil {
		return fmt.Errorf("prioritizing plugin methods: %w", err)
	}
	c.pluginMethodsMu.Lock()
	defer c.pluginMethodsMu.Unlock()
	c.pluginMethods[s.UUID] = methods
	return nil
}

func (c *controller) methodLists(id uuid.UUID, method string) (ulspplugin.MethodLists, bool) {
	c.pluginMethodsMu.RLock()
	defer c.pluginMethodsMu.RUnlock()
	methods, ok := c.pluginMethods[id]
	if !ok {
		return ulspplugin.MethodLists{}, false
	}
	lists, ok := methods[method]
	return lists, ok
}

func (c *controller) hasPlugins(id uuid.UUID) bool {
	c.pluginMethodsMu.RLock()
	defer c.pluginMethodsMu.RUnlock()
	_, ok := c.pluginMethods[id]
	return ok
}

// executePluginMethods will execute modules in the order defined for the given method.
// The caller is responsible for defining and providing a handlerSync and handlerAsync function, which should call the corresponding method with proper arguments.
// The same function may be passed in for both sync and async if no difference is needed.
func (c *controller) executePluginMethods(ctx context.Context, method string, handlerSync func(ctx context.Context, m *ulspplugin.Methods), handlerAsync func(ctx context.Context, m *ulspplugin.Methods)) error {
	if handlerSync == nil || handlerAsync == nil {
		return fmt.Errorf("handlers cannot be nil")
	}

	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	methodLists, ok := c.methodLists(id, method)
	if !ok {
		// No need to execute if this method has no registered plugins.
		return nil
	}

	for _, current := range methodLists.Sync {
		handlerSync(ctx, current)
	}

	// Asynchronous plugin methods outlive the request, so they get their own context carrying only the session.
	// Plugins are responsible for respecting its timeout or cancellation.
	for _, current := range methodLists.Async {
		currentMethods := current
		asyncCtx := context.WithValue(context.Background(), entity.SessionContextKey, ctx.Value(entity.SessionContextKey))
		c.executor.Go(asyncCtx, method+"/"+currentMethods.PluginNameKey, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, _asyncTimeout)
			defer cancel()
			handlerAsync(ctx, currentMethods)
		})
	}

	return nil
}
