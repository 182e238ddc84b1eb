// Package workspace routes editor and filesystem events to the project registry and the checker.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/controller/checker"
	"github.com/uber/project-lsp/src/ulsp/controller/diagnostics"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher"
	"github.com/uber/project-lsp/src/ulsp/entity"
	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	ideclient "github.com/uber/project-lsp/src/ulsp/gateway/ide-client"
	ulspfs "github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"github.com/uber/project-lsp/src/ulsp/repository/session"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	_nameKey = "workspace"

	// SettingsSection is the section of the client configuration holding the daemon settings.
	SettingsSection = "projectLsp"

	_configWatcherRegistrationID = "project-lsp-config-files"
)

// Controller handles the editor events that change the workspace.
type Controller interface {
	StartupInfo(ctx context.Context) (ulspplugin.PluginInfo, error)
	// HandleWatchedFileEvents applies a batch of file events, reported either by the editor or by the filesystem watcher.
	// Each affected root receives at most one full check per batch.
	HandleWatchedFileEvents(ctx context.Context, events []protocol.FileEvent) error
}

// Params are inbound parameters to initialize a new plugin.
type Params struct {
	fx.In

	Sessions   session.Repository
	IdeGateway ideclient.Gateway
	Registry   projects.Registry
	Checker    checker.Checker
	Overlay    overlay.Overlay
	Tracker    diagnostics.Tracker
	Watcher    watcher.Watcher
	FS         ulspfs.ProjectFS
	Logger     *zap.SugaredLogger
	Stats      tally.Scope
}

type controller struct {
	sessions   session.Repository
	ideGateway ideclient.Gateway
	registry   projects.Registry
	checker    checker.Checker
	overlay    overlay.Overlay
	tracker    diagnostics.Tracker
	watcher    watcher.Watcher
	fs         ulspfs.ProjectFS
	logger     *zap.SugaredLogger
	stats      tally.Scope
}

// New creates the workspace plugin and subscribes it to the filesystem watcher.
func New(p Params) Controller {
	c := &controller{
		sessions:   p.Sessions,
		ideGateway: p.IdeGateway,
		registry:   p.Registry,
		checker:    p.Checker,
		overlay:    p.Overlay,
		tracker:    p.Tracker,
		watcher:    p.Watcher,
		fs:         p.FS,
		logger:     p.Logger.With("plugin", _nameKey),
		stats:      p.Stats.SubScope(_nameKey),
	}
	p.Watcher.Subscribe(func(ctx context.Context, events []protocol.FileEvent) {
		if err := c.HandleWatchedFileEvents(ctx, events); err != nil {
			c.logger.Warnf("Unable to apply file events: %v", err)
		}
	})
	return c
}

// StartupInfo returns PluginInfo for this controller.
func (c *controller) StartupInfo(ctx context.Context) (ulspplugin.PluginInfo, error) {
	priorities := map[string]ulspplugin.Priority{
		protocol.MethodInitialize:  ulspplugin.PriorityHigh,
		protocol.MethodInitialized: ulspplugin.PriorityRegular,

		protocol.MethodTextDocumentDidOpen:   ulspplugin.PriorityHigh,
		protocol.MethodTextDocumentDidChange: ulspplugin.PriorityHigh,
		protocol.MethodTextDocumentDidSave:   ulspplugin.PriorityHigh,
		protocol.MethodTextDocumentDidClose:  ulspplugin.PriorityHigh,

		protocol.MethodWorkspaceDidChangeWatchedFiles:     ulspplugin.PriorityHigh,
		protocol.MethodWorkspaceDidChangeWorkspaceFolders: ulspplugin.PriorityHigh,
		protocol.MethodWorkspaceDidChangeConfiguration:    ulspplugin.PriorityHigh,
		ulspplugin.MethodEndSession:                       ulspplugin.PriorityRegular,
	}

	methods := &ulspplugin.Methods{
		PluginNameKey: _nameKey,

		Initialize:  c.initialize,
		Initialized: c.initialized,

		DidOpen:   c.didOpen,
		DidChange: c.didChange,
		DidSave:   c.didSave,
		DidClose:  c.didClose,

		DidChangeWatchedFiles:     c.didChangeWatchedFiles,
		DidChangeWorkspaceFolders: c.didChangeWorkspaceFolders,
		DidChangeConfiguration:    c.didChangeConfiguration,
		EndSession:                c.endSession,
	}

	return ulspplugin.PluginInfo{
		Priorities: priorities,
		Methods:    methods,
		NameKey:    _nameKey,
	}, nil
}

// initialize records the workspace folders of the session and starts tracking them as roots.
func (c *controller) initialize(ctx context.Context, params *protocol.InitializeParams, result *protocol.InitializeResult) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	mapper.InitializeResultEnsureWorkspaceFolders(result)

	settings, err := ParseSettings(params.InitializationOptions)
	if err != nil {
		c.logger.Warnf("Ignoring invalid initialization options: %v", err)
	} else if settings != nil {
		s.Settings = *settings
		c.applySettings(*settings)
	}

	s.WorkspaceFolders = rootsFromInitializeParams(params)
	if err := c.sessions.Set(ctx, s); err != nil {
		return err
	}

	for _, root := range s.WorkspaceFolders {
		if _, err := c.registry.AddRoot(ctx, root); err != nil {
			return fmt.Errorf("adding workspace root %q: %w", root, err)
		}
	}
	return nil
}

// initialized registers for configuration file events and runs the first full check of every root.
func (c *controller) initialized(ctx context.Context, params *protocol.InitializedParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	if supportsDynamicWatchers(s.InitializeParams) {
		err := c.ideGateway.RegisterCapability(ctx, &protocol.RegistrationParams{
			Registrations: []protocol.Registration{
				{
					ID:     _configWatcherRegistrationID,
					Method: protocol.MethodWorkspaceDidChangeWatchedFiles,
					RegisterOptions: protocol.DidChangeWatchedFilesRegistrationOptions{
						Watchers: []protocol.FileSystemWatcher{
							{
								GlobPattern: "**/" + c.registry.ConfigFileName(),
								Kind:        protocol.WatchKindCreate + protocol.WatchKindChange + protocol.WatchKindDelete,
							},
						},
					},
				},
			},
		})
		if err != nil {
			c.logger.Warnf("Unable to register configuration file watcher: %v", err)
		} else {
			c.watcher.SetDeduplicate(true)
		}
	}

	for _, root := range s.WorkspaceFolders {
		c.checker.FullCheck(ctx, root)
	}
	return nil
}

func (c *controller) didOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	path := mapper.URIToPath(params.TextDocument.URI)
	if err := c.overlay.Open(s.UUID, path, params.TextDocument.Text, params.TextDocument.Version); err != nil {
		return err
	}
	c.stats.Counter("opened").Inc(1)

	source := c.registry.Classify(path) == projects.ClassSource
	for _, root := range c.registry.RootsForPath(path) {
		c.registry.NotifyFile(root, path, projects.FileChanged)
		if source {
			c.checker.QuickCheck(ctx, root, path)
		}
		c.checker.FullCheck(ctx, root)
	}
	return nil
}

func (c *controller) didChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	path := mapper.URIToPath(params.TextDocument.URI)
	if err := c.overlay.Change(path, params.TextDocument.Version, params.ContentChanges); err != nil {
		return err
	}

	source := c.registry.Classify(path) == projects.ClassSource
	for _, root := range c.registry.RootsForPath(path) {
		c.registry.NotifyFile(root, path, projects.FileChanged)
		if source {
			c.checker.QuickCheck(ctx, root, path)
		} else if parent, ok := c.registry.IncludeParent(root, path); ok {
			c.registry.NotifyFile(root, parent, projects.FileChanged)
			c.checker.QuickCheck(ctx, root, parent)
		}
	}
	return nil
}

func (c *controller) didSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	path := mapper.URIToPath(params.TextDocument.URI)
	var text *string
	if params.Text != "" {
		text = &params.Text
	}
	if c.overlay.IsOpen(path) {
		if err := c.overlay.Save(path, text); err != nil {
			return err
		}
	}

	affected := make(map[string]struct{})
	switch c.registry.Classify(path) {
	case projects.ClassConfig:
		c.configChanged(path, affected)
	default:
		for _, root := range c.registry.RootsForPath(path) {
			c.registry.NotifyFile(root, path, projects.FileChanged)
			if parent, ok := c.registry.IncludeParent(root, path); ok {
				c.registry.NotifyFile(root, parent, projects.FileChanged)
			}
			affected[root] = struct{}{}
		}
	}
	c.fullCheck(ctx, affected)
	return nil
}

func (c *controller) didClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	path := mapper.URIToPath(params.TextDocument.URI)
	if !c.overlay.Close(s.UUID, path) {
		// Still open in another session.
		return nil
	}

	affected := make(map[string]struct{})
	err = c.closeFile(ctx, path, affected)
	c.fullCheck(ctx, affected)
	return err
}

// closeFile reverts path to its disk contents and clears its diagnostics.
func (c *controller) closeFile(ctx context.Context, path string, affected map[string]struct{}) error {
	change := projects.FileChanged
	if exists, err := c.fs.FileExists(path); err == nil && !exists {
		change = projects.FileRemoved
	}

	var errs error
	for _, root := range c.registry.RootsForPath(path) {
		c.registry.NotifyFile(root, path, change)
		errs = multierr.Append(errs, c.tracker.Clear(ctx, root, mapper.PathToURI(path)))
		affected[root] = struct{}{}
	}
	return errs
}

func (c *controller) didChangeWatchedFiles(ctx context.Context, params *protocol.DidChangeWatchedFilesParams) error {
	events := make([]protocol.FileEvent, 0, len(params.Changes))
	for _, change := range params.Changes {
		if change != nil {
			events = append(events, *change)
		}
	}
	return c.HandleWatchedFileEvents(ctx, events)
}

func (c *controller) didChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	removed := foldersToRoots(params.Event.Removed)
	added := foldersToRoots(params.Event.Added)

	folders := slices.DeleteFunc(s.WorkspaceFolders, func(root string) bool {
		return slices.Contains(removed, root)
	})
	for _, root := range added {
		if !slices.Contains(folders, root) {
			folders = append(folders, root)
		}
	}
	s.WorkspaceFolders = folders
	if err := c.sessions.Set(ctx, s); err != nil {
		return err
	}

	var errs error
	for _, root := range removed {
		errs = multierr.Append(errs, c.releaseRoot(ctx, s.UUID, root))
	}
	for _, root := range added {
		if _, err := c.registry.AddRoot(ctx, root); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("adding workspace root %q: %w", root, err))
			continue
		}
		c.checker.FullCheck(ctx, root)
	}
	return errs
}

func (c *controller) didChangeConfiguration(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return err
	}

	settings, err := ParseSettings(params.Settings)
	if err != nil {
		return err
	}
	if settings == nil {
		// The client only signalled a change, so the settings have to be pulled.
		if settings, err = c.pullSettings(ctx); err != nil {
			return err
		}
	}

	s.Settings = *settings
	if err := c.sessions.Set(ctx, s); err != nil {
		return err
	}
	c.applySettings(*settings)

	roots := make(map[string]struct{})
	for _, root := range c.registry.Roots() {
		roots[root] = struct{}{}
	}
	c.fullCheck(ctx, roots)
	return nil
}

func (c *controller) pullSettings(ctx context.Context) (*entity.ClientSettings, error) {
	result, err := c.ideGateway.Configuration(ctx, &protocol.ConfigurationParams{
		Items: []protocol.ConfigurationItem{{Section: SettingsSection}},
	})
	if err != nil {
		return nil, fmt.Errorf("requesting client configuration: %w", err)
	}
	if len(result) == 0 || result[0] == nil {
		return &entity.ClientSettings{}, nil
	}
	settings, err := ParseSettings(result[0])
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (c *controller) applySettings(settings entity.ClientSettings) {
	c.registry.HandleSettingsChanged(projectconfig.Settings{SDKPath: settings.SDKPath})
	if settings.QuickUnusedImports != nil {
		c.checker.SetQuickUnusedImports(*settings.QuickUnusedImports)
	}
}

// endSession closes the files of the session and releases the roots no other session holds.
func (c *controller) endSession(ctx context.Context, id uuid.UUID) error {
	var errs error
	affected := make(map[string]struct{})
	for _, path := range c.overlay.EndSession(id) {
		errs = multierr.Append(errs, c.closeFile(ctx, path, affected))
	}

	s, err := c.sessions.Get(ctx, id)
	if err != nil {
		return multierr.Append(errs, err)
	}
	for _, root := range s.WorkspaceFolders {
		held, err := c.heldByOthers(ctx, id, root)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !held {
			delete(affected, root)
			errs = multierr.Append(errs, c.removeRoot(ctx, root))
		}
	}

	c.fullCheck(ctx, affected)
	return errs
}

// releaseRoot removes root unless a session other than id still has it open.
func (c *controller) releaseRoot(ctx context.Context, id uuid.UUID, root string) error {
	held, err := c.heldByOthers(ctx, id, root)
	if err != nil || held {
		return err
	}
	return c.removeRoot(ctx, root)
}

func (c *controller) removeRoot(ctx context.Context, root string) error {
	if !c.registry.HasRoot(root) {
		return nil
	}
	c.checker.CancelRoot(root)
	err := c.registry.RemoveRoot(ctx, root)
	return multierr.Append(err, c.tracker.Forget(ctx, root))
}

func (c *controller) heldByOthers(ctx context.Context, id uuid.UUID, root string) (bool, error) {
	sessions, err := c.sessions.GetAllFromWorkspaceRoot(ctx, root)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s.UUID != id {
			return true, nil
		}
	}
	return false, nil
}

func (c *controller) HandleWatchedFileEvents(ctx context.Context, events []protocol.FileEvent) error {
	c.stats.Counter("file_events").Inc(int64(len(events)))

	var errs error
	affected := make(map[string]struct{})
	for _, event := range events {
		path := mapper.URIToPath(event.URI)
		switch c.registry.Classify(path) {
		case projects.ClassConfig:
			c.configChanged(path, affected)
		case projects.ClassArchive:
			for _, root := range c.registry.RootsReferencing(path) {
				c.registry.ForceChanged(root)
				affected[root] = struct{}{}
			}
		case projects.ClassSource:
			errs = multierr.Append(errs, c.sourceChanged(ctx, path, event.Type, affected))
		default:
			errs = multierr.Append(errs, c.otherChanged(ctx, path, event.Type, affected))
		}
	}

	c.fullCheck(ctx, affected)
	return errs
}

// configChanged marks the root owning the configuration file at path as changed.
func (c *controller) configChanged(path string, affected map[string]struct{}) {
	root := filepath.Dir(path)
	if !c.registry.HasRoot(root) {
		return
	}
	c.registry.ForceChanged(root)
	affected[root] = struct{}{}
}

func (c *controller) sourceChanged(ctx context.Context, path string, change protocol.FileChangeType, affected map[string]struct{}) error {
	if change == protocol.FileChangeTypeChanged {
		if exists, err := c.fs.FileExists(path); err == nil && !exists {
			change = protocol.FileChangeTypeDeleted
		}
	}

	var errs error
	for _, root := range c.registry.RootsForPath(path) {
		affected[root] = struct{}{}
		switch change {
		case protocol.FileChangeTypeCreated:
			c.registry.NotifyFile(root, path, projects.FileAdded)
		case protocol.FileChangeTypeChanged:
			c.registry.NotifyFile(root, path, projects.FileChanged)
		case protocol.FileChangeTypeDeleted:
			c.registry.NotifyFile(root, path, projects.FileRemoved)
			errs = multierr.Append(errs, c.tracker.Clear(ctx, root, mapper.PathToURI(path)))
			if c.overlay.IsOpen(path) {
				c.registry.NotifyFile(root, path, projects.FileAdded)
			}
		}
	}
	return errs
}

// otherChanged handles paths that are neither sources nor configuration: included files and directories.
func (c *controller) otherChanged(ctx context.Context, path string, change protocol.FileChangeType, affected map[string]struct{}) error {
	roots := c.registry.RootsForPath(path)
	for _, root := range roots {
		if parent, ok := c.registry.IncludeParent(root, path); ok {
			c.registry.NotifyFile(root, parent, projects.FileChanged)
			affected[root] = struct{}{}
		}
	}

	switch change {
	case protocol.FileChangeTypeDeleted:
		return c.directoryRemoved(ctx, roots, path, affected)
	case protocol.FileChangeTypeCreated:
		return c.directoryCreated(roots, path, affected)
	}
	return nil
}

// directoryRemoved drops every unit below path. The path no longer exists, so it may have been a plain file.
func (c *controller) directoryRemoved(ctx context.Context, roots []string, path string, affected map[string]struct{}) error {
	var errs error
	for _, root := range roots {
		if root == path {
			continue
		}
		c.registry.NotifyFile(root, path, projects.DirectoryRemoved)
		for _, open := range c.overlay.OpenPaths() {
			if entity.IsUnderRoot(path, open) {
				c.registry.NotifyFile(root, open, projects.FileAdded)
			}
		}
		for _, docURI := range c.tracker.Tracked(root) {
			tracked := mapper.URIToPath(docURI)
			if entity.IsUnderRoot(path, tracked) && !c.overlay.IsOpen(tracked) {
				errs = multierr.Append(errs, c.tracker.Clear(ctx, root, docURI))
			}
		}
		affected[root] = struct{}{}
	}
	return errs
}

// directoryCreated adds every source file below a newly created directory.
func (c *controller) directoryCreated(roots []string, path string, affected map[string]struct{}) error {
	if len(roots) == 0 {
		return nil
	}
	if isDir, err := c.fs.DirExists(path); err != nil || !isDir {
		return err
	}

	var sources []string
	err := c.fs.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// The directory may disappear again while it is walked.
			return nil
		}
		if !d.IsDir() && c.registry.Classify(p) == projects.ClassSource {
			sources = append(sources, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		return nil
	}
	for _, root := range roots {
		for _, source := range sources {
			c.registry.NotifyFile(root, source, projects.FileAdded)
		}
		affected[root] = struct{}{}
	}
	return nil
}

func (c *controller) fullCheck(ctx context.Context, roots map[string]struct{}) {
	sorted := make([]string, 0, len(roots))
	for root := range roots {
		sorted = append(sorted, root)
	}
	slices.Sort(sorted)
	for _, root := range sorted {
		c.checker.FullCheck(ctx, root)
	}
}

func rootsFromInitializeParams(params *protocol.InitializeParams) []string {
	if len(params.WorkspaceFolders) > 0 {
		return foldersToRoots(params.WorkspaceFolders)
	}
	if params.RootURI != "" {
		return []string{mapper.URIToPath(params.RootURI)}
	}
	return nil
}

func foldersToRoots(folders []protocol.WorkspaceFolder) []string {
	roots := make([]string, 0, len(folders))
	for _, folder := range folders {
		root := mapper.URIToPath(uri.URI(folder.URI))
		if !slices.Contains(roots, root) {
			roots = append(roots, root)
		}
	}
	return roots
}

func supportsDynamicWatchers(params *protocol.InitializeParams) bool {
	if params == nil || params.Capabilities.Workspace == nil || params.Capabilities.Workspace.DidChangeWatchedFiles == nil {
		return false
	}
	return params.Capabilities.Workspace.DidChangeWatchedFiles.DynamicRegistration
}
