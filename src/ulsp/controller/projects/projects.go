// Package projects owns the project of every workspace root: when it is created, when it is
// torn down and which locks guard calls into the analysis engine.
package projects

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher"
	"github.com/uber/project-lsp/src/ulsp/entity"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	_nameKey = "projects"

	// ConfigurationCode is the diagnostic code of problems with the project configuration.
	ConfigurationCode = "configuration"

	_maxDisposedRetries = 3
)

// Classification describes what kind of file a changed path is.
type Classification int

const (
	// ClassOther is any file the daemon does not care about.
	ClassOther Classification = iota
	// ClassConfig is a project configuration file.
	ClassConfig
	// ClassArchive is a prebuilt library archive.
	ClassArchive
	// ClassSource is a source file.
	ClassSource
)

// FileChange is a change to a file that the project of a root must learn about.
type FileChange int

const (
	// FileChanged means the text of a known file changed.
	FileChanged FileChange = iota
	// FileAdded means a file appeared.
	FileAdded
	// FileRemoved means a file disappeared.
	FileRemoved
	// DirectoryRemoved removes every unit below a directory.
	DirectoryRemoved
)

func (c FileChange) String() string {
	switch c {
	case FileAdded:
		return "added"
	case FileRemoved:
		return "removed"
	case DirectoryRemoved:
		return "directory-removed"
	}
	return "changed"
}

type fileEvent struct {
	path   string
	change FileChange
}

// Resolution is the state of a root after ResolveProject.
type Resolution struct {
	Root string
	// Project is nil while the configuration is broken.
	Project analysis.Project
	Options *analysis.Options
	// Problems are the configuration diagnostics of the root, by document.
	Problems map[uri.URI][]protocol.Diagnostic
	// Generation identifies the configuration evaluation that produced Problems.
	Generation uint64
}

// Broken reports whether the root has no usable project.
func (r *Resolution) Broken() bool {
	return r.Project == nil
}

// Registry tracks workspace roots and their projects.
type Registry interface {
	// AddRoot starts tracking root. Returns false if it was already tracked.
	AddRoot(ctx context.Context, root string) (bool, error)
	// RemoveRoot disposes the project of root and stops watching its directories.
	RemoveRoot(ctx context.Context, root string) error
	// Roots returns every tracked root, sorted.
	Roots() []string
	HasRoot(root string) bool
	// RootsForPath returns the roots containing path, innermost first.
	RootsForPath(path string) []string
	// RootsReferencing returns the roots whose library paths or output contain path.
	RootsReferencing(path string) []string
	// Classify reports what kind of file path is.
	Classify(path string) Classification
	// ConfigFileName is the name of project configuration files.
	ConfigFileName() string

	// ResolveProject returns the project of root, creating it when the configuration changed.
	ResolveProject(ctx context.Context, root string) (*Resolution, error)
	// WithBuildLock runs fn holding the lock that guards every analysis engine call.
	WithBuildLock(ctx context.Context, fn func() error) error
	// EnsureBuiltForRead builds the unit of path and runs fn with it while holding the build lock.
	EnsureBuiltForRead(ctx context.Context, path string, fn func(project analysis.Project, unit analysis.Unit) error) error
	// HandleSettingsChanged stores new client settings and marks every project changed.
	HandleSettingsChanged(settings projectconfig.Settings)
	// ForceChanged marks the project of root changed.
	ForceChanged(root string)
	// NotifyFile queues a file change for the project of root. Queued changes reach the project
	// on the next ResolveProject, so callers never wait for a running build.
	NotifyFile(root string, path string, change FileChange)

	// ReplaceIncludes records, for each included file of root, the file including it.
	ReplaceIncludes(root string, includes map[string]string)
	// IncludeParent returns the file including path, if any.
	IncludeParent(root, path string) (string, bool)
	// ReplaceOutsideSourcePath records the open files of root that are not on its source path.
	ReplaceOutsideSourcePath(root string, paths []string)
	IsOutsideSourcePath(root, path string) bool
	// ConfigurationPublished records that a full check published the problems of generation.
	// The problems of a usable project are dropped on the next resolve that reuses it.
	ConfigurationPublished(root string, generation uint64)
}

// Params are inbound parameters to initialize a new registry.
type Params struct {
	fx.In

	Engine  analysis.Engine
	Overlay overlay.Overlay
	Factory projectconfig.Factory
	Watcher watcher.Watcher
	Logger  *zap.SugaredLogger
	Stats   tally.Scope
}

// slot is the per-root state.
// project, problems, generation and removed are guarded by the build lock. The remaining state is guarded by mu.
type slot struct {
	root     string
	strategy projectconfig.Strategy

	project    analysis.Project
	problems   map[uri.URI][]protocol.Diagnostic
	generation uint64
	removed    bool

	mu        sync.Mutex
	options   *analysis.Options
	includes  map[string]string
	outside   map[string]struct{}
	pending   []fileEvent
	published uint64
}

type registry struct {
	engine  analysis.Engine
	overlay overlay.Overlay
	factory projectconfig.Factory
	watcher watcher.Watcher
	logger  *zap.SugaredLogger
	stats   tally.Scope

	// idle wraps project construction and teardown. It is always acquired before build.
	idle  *semaphore.Weighted
	build *semaphore.Weighted

	mu       sync.Mutex
	slots    map[string]*slot
	settings projectconfig.Settings
}

// New creates the project registry.
func New(p Params) Registry {
	r := &registry{
		engine:  p.Engine,
		overlay: p.Overlay,
		factory: p.Factory,
		watcher: p.Watcher,
		logger:  p.Logger.With("plugin", _nameKey),
		stats:   p.Stats.SubScope(_nameKey),
		idle:    semaphore.NewWeighted(1),
		build:   semaphore.NewWeighted(1),
		slots:   make(map[string]*slot),
	}
	r.updateMetricsLocked()
	return r
}

func (r *registry) AddRoot(ctx context.Context, root string) (bool, error) {
	r.mu.Lock()
	if _, ok := r.slots[root]; ok {
		r.mu.Unlock()
		return false, nil
	}
	r.slots[root] = &slot{
		root:     root,
		strategy: r.factory.New(root),
		includes: make(map[string]string),
		outside:  make(map[string]struct{}),
	}
	r.updateMetricsLocked()
	r.mu.Unlock()

	r.logger.Infof("Tracking workspace root %q", root)
	// The configuration file may not exist yet, so its directory is watched from the start.
	if err := r.watcher.Watch(ctx, root, []watcher.Target{{Path: root}}); err != nil {
		r.logger.Warnf("Unable to watch %q: %v", root, err)
	}
	return true, nil
}

func (r *registry) RemoveRoot(ctx context.Context, root string) error {
	s, ok := r.slot(root)
	if !ok {
		return &errors.RootNotFoundError{Path: root}
	}

	release, err := r.acquireAll(ctx)
	if err != nil {
		return err
	}
	defer release()

	r.mu.Lock()
	delete(r.slots, root)
	r.updateMetricsLocked()
	r.mu.Unlock()

	s.removed = true
	err = r.dispose(s)
	s.clear()

	r.logger.Infof("Stopped tracking workspace root %q", root)
	return multierr.Append(err, r.watcher.Unwatch(ctx, root))
}

func (r *registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	roots := make([]string, 0, len(r.slots))
	for root := range r.slots {
		roots = append(roots, root)
	}
	slices.Sort(roots)
	return roots
}

func (r *registry) HasRoot(root string) bool {
	_, ok := r.slot(root)
	return ok
}

func (r *registry) RootsForPath(path string) []string {
	var roots []string
	for _, root := range r.Roots() {
		if entity.IsUnderRoot(root, path) {
			roots = append(roots, root)
		}
	}
	slices.SortStableFunc(roots, func(a, b string) int {
		return len(b) - len(a)
	})
	return roots
}

func (r *registry) RootsReferencing(path string) []string {
	var roots []string
	for _, s := range r.allSlots() {
		s.mu.Lock()
		opts := s.options
		s.mu.Unlock()
		if opts == nil {
			continue
		}
		if path == opts.OutputPath || underAny(opts.LibraryPaths, path) || underAny(opts.ExternalLibraryPaths, path) {
			roots = append(roots, s.root)
		}
	}
	return roots
}

func (r *registry) Classify(path string) Classification {
	switch {
	case r.factory.IsConfigFile(path):
		return ClassConfig
	case r.factory.IsArchive(path):
		return ClassArchive
	case r.factory.IsSource(path):
		return ClassSource
	}
	return ClassOther
}

func (r *registry) ConfigFileName() string {
	return r.factory.Config().ConfigFileName
}

func (r *registry) ResolveProject(ctx context.Context, root string) (*Resolution, error) {
	s, ok := r.slot(root)
	if !ok {
		return nil, &errors.RootNotFoundError{Path: root}
	}

	release, err := r.acquireAll(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return r.resolveLocked(ctx, s)
}

func (r *registry) WithBuildLock(ctx context.Context, fn func() error) error {
	if err := acquire(ctx, r.build); err != nil {
		return err
	}
	defer r.build.Release(1)
	return fn()
}

func (r *registry) EnsureBuiltForRead(ctx context.Context, path string, fn func(project analysis.Project, unit analysis.Unit) error) error {
	roots := r.RootsForPath(path)
	if len(roots) == 0 {
		return &errors.RootNotFoundError{Path: path}
	}

	var err error
	for attempt := 0; attempt < _maxDisposedRetries; attempt++ {
		var res *Resolution
		res, err = r.ResolveProject(ctx, roots[0])
		if err != nil {
			return err
		}
		if res.Broken() {
			return fmt.Errorf("project for %q is not available: %w", path, ErrProjectBroken)
		}

		err = r.WithBuildLock(ctx, func() error {
			unit, err := res.Project.GetOrCreateUnit(path)
			if err != nil {
				return err
			}
			if _, err := unit.WaitForBuild(ctx); err != nil {
				return &errors.BuildError{Path: path, Err: err}
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(res.Project, unit)
		})
		// The project was replaced between resolving and locking.
		if !stderrors.Is(err, analysis.ErrDisposed) {
			return err
		}
	}
	return err
}

// ErrProjectBroken is returned by EnsureBuiltForRead while the configuration of the root has errors.
var ErrProjectBroken = stderrors.New("configuration has errors")

func (r *registry) HandleSettingsChanged(settings projectconfig.Settings) {
	r.mu.Lock()
	r.settings = settings
	r.mu.Unlock()

	for _, s := range r.allSlots() {
		s.strategy.ForceChanged()
	}
}

func (r *registry) ForceChanged(root string) {
	if s, ok := r.slot(root); ok {
		s.strategy.ForceChanged()
	}
}

func (r *registry) NotifyFile(root string, path string, change FileChange) {
	s, ok := r.slot(root)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, fileEvent{path: path, change: change})
}

func (r *registry) ReplaceIncludes(root string, includes map[string]string) {
	s, ok := r.slot(root)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.includes = includes
}

func (r *registry) IncludeParent(root, path string) (string, bool) {
	s, ok := r.slot(root)
	if !ok {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.includes[path]
	return parent, ok
}

func (r *registry) ReplaceOutsideSourcePath(root string, paths []string) {
	s, ok := r.slot(root)
	if !ok {
		return
	}
	outside := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		outside[p] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outside = outside
}

func (r *registry) IsOutsideSourcePath(root, path string) bool {
	s, ok := r.slot(root)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, outside := s.outside[path]
	return outside
}

func (r *registry) ConfigurationPublished(root string, generation uint64) {
	s, ok := r.slot(root)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation > s.published {
		s.published = generation
	}
}

// resolveLocked brings the slot up to date. Caller must hold the idle and build locks.
func (r *registry) resolveLocked(ctx context.Context, s *slot) (*Resolution, error) {
	if s.removed {
		return nil, &errors.RootNotFoundError{Path: s.root}
	}
	if s.project != nil && !s.strategy.HasChanged() {
		s.mu.Lock()
		published := s.published == s.generation
		s.mu.Unlock()
		if published && len(s.problems) > 0 {
			// Already reported by a full check.
			s.problems = nil
			r.stats.Counter("configuration_problems_cleared").Inc(1)
		}
		r.flushLocked(s)
		return s.resolution(), nil
	}

	r.mu.Lock()
	settings := r.settings
	r.mu.Unlock()

	if err := r.dispose(s); err != nil {
		r.logger.Warnf("Disposing project of %q: %v", s.root, err)
	}
	s.clear()
	s.generation++

	opts, err := s.strategy.Options(settings)
	if err != nil {
		var cfgErr *errors.ConfigurationError
		if !stderrors.As(err, &cfgErr) {
			return nil, fmt.Errorf("resolving options for %q: %w", s.root, err)
		}
		r.stats.Counter("configuration_errors").Inc(1)
		r.logger.Infof("Configuration of %q is broken: %s", s.root, cfgErr.Reason)
		s.problems = r.configurationProblems(s.root, cfgErr)
		return s.resolution(), nil
	}

	project, err := r.engine.CreateProject(*opts, r.overlay)
	if err != nil {
		return nil, fmt.Errorf("creating project for %q: %w", s.root, err)
	}
	r.stats.Counter("created").Inc(1)

	configFile := mapper.PathToURI(s.strategy.ConfigFilePath())
	problems := make(map[uri.URI][]protocol.Diagnostic)
	for _, p := range project.ApplyConfiguration(*opts) {
		target := configFile
		if p.Path != "" {
			target = mapper.PathToURI(p.Path)
		}
		d := mapper.ProblemToDiagnostic(p)
		problems[target] = append(problems[target], d)
	}

	s.mu.Lock()
	s.options = opts
	s.mu.Unlock()

	if reason := r.validate(opts); reason != "" {
		problems[configFile] = append(problems[configFile], configurationDiagnostic(reason))
		s.problems = problems
		if err := project.Dispose(); err != nil {
			r.logger.Warnf("Disposing invalid project of %q: %v", s.root, err)
		}
		r.stats.Counter("disposed").Inc(1)
		r.logger.Infof("Project of %q is invalid: %s", s.root, reason)
		return s.resolution(), nil
	}

	s.project = project
	s.problems = problems
	r.logger.Infof("Created %s project for %q", opts.Kind, s.root)

	if err := r.watcher.Watch(ctx, s.root, watchTargets(s.root, opts)); err != nil {
		r.logger.Warnf("Unable to watch every directory of %q: %v", s.root, err)
	}
	return s.resolution(), nil
}

// validate checks that the target can be built, returning a reason when it cannot.
func (r *registry) validate(opts *analysis.Options) string {
	switch opts.Kind {
	case analysis.KindLibrary:
		if opts.OutputPath == "" {
			return "library projects must declare an outputPath"
		}
	case analysis.KindApplication:
		if len(opts.EntryFiles) == 0 {
			return "application projects must declare at least one entry file"
		}
		for _, entry := range opts.EntryFiles {
			if _, err := r.overlay.ReadSource(entry); err == nil {
				return ""
			}
		}
		return fmt.Sprintf("none of the entry files could be found: %s", strings.Join(opts.EntryFiles, ", "))
	}
	return ""
}

// configurationProblems places a configuration failure on the config file, or on the first
// open file of the root when there is no config file. Nothing is reported when neither exists.
func (r *registry) configurationProblems(root string, cfgErr *errors.ConfigurationError) map[uri.URI][]protocol.Diagnostic {
	target := cfgErr.ConfigFile
	if target == "" {
		for _, p := range r.overlay.OpenPaths() {
			if entity.IsUnderRoot(root, p) {
				target = p
				break
			}
		}
	}
	if target == "" {
		return nil
	}
	return map[uri.URI][]protocol.Diagnostic{
		mapper.PathToURI(target): {configurationDiagnostic(cfgErr.Reason)},
	}
}

// flushLocked hands queued file changes to the project. Caller must hold the build lock.
func (r *registry) flushLocked(s *slot) {
	s.mu.Lock()
	events := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, e := range events {
		switch e.change {
		case FileChanged:
			s.project.FileChanged(e.path)
		case FileAdded:
			s.project.FileAdded(e.path)
		case FileRemoved:
			s.project.FileRemoved(e.path)
		case DirectoryRemoved:
			for _, u := range s.project.Units() {
				if entity.IsUnderRoot(e.path, u.Path()) {
					s.project.FileRemoved(u.Path())
				}
			}
		}
	}
	if len(events) > 0 {
		r.stats.Counter("file_events").Inc(int64(len(events)))
		r.logger.Debugf("Applied %d file changes to the project of %q", len(events), s.root)
	}
}

// dispose tears down the project of a slot. Caller must hold the build lock.
func (r *registry) dispose(s *slot) error {
	if s.project == nil {
		return nil
	}
	err := s.project.Dispose()
	s.project = nil
	r.stats.Counter("disposed").Inc(1)
	return err
}

func (r *registry) slot(root string) (*slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[root]
	return s, ok
}

func (r *registry) allSlots() []*slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*slot, 0, len(r.slots))
	for _, s := range r.slots {
		result = append(result, s)
	}
	return result
}

// acquireAll takes the idle lock and then the build lock.
func (r *registry) acquireAll(ctx context.Context) (func(), error) {
	if err := acquire(ctx, r.idle); err != nil {
		return nil, err
	}
	if err := acquire(ctx, r.build); err != nil {
		r.idle.Release(1)
		return nil, err
	}
	return func() {
		r.build.Release(1)
		r.idle.Release(1)
	}, nil
}

func (r *registry) updateMetricsLocked() {
	r.stats.Gauge("roots").Update(float64(len(r.slots)))
}

// acquire takes sem unless ctx ends first. Cancellation is checked on both sides of the wait.
func acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		sem.Release(1)
		return err
	}
	return nil
}

func (s *slot) resolution() *Resolution {
	s.mu.Lock()
	opts := s.options
	s.mu.Unlock()

	problems := make(map[uri.URI][]protocol.Diagnostic, len(s.problems))
	for k, v := range s.problems {
		problems[k] = append([]protocol.Diagnostic(nil), v...)
	}
	return &Resolution{
		Root:       s.root,
		Project:    s.project,
		Options:    opts,
		Problems:   problems,
		Generation: s.generation,
	}
}

// clear drops everything derived from the previous project.
func (s *slot) clear() {
	s.problems = nil
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = nil
	s.includes = make(map[string]string)
	s.outside = make(map[string]struct{})
	// A new project reads every file fresh.
	s.pending = nil
}

func configurationDiagnostic(reason string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Severity: protocol.DiagnosticSeverityError,
		Code:     ConfigurationCode,
		Source:   mapper.DiagnosticSource,
		Message:  reason,
	}
}

func watchTargets(root string, opts *analysis.Options) []watcher.Target {
	targets := []watcher.Target{{Path: root}}
	for _, group := range [][]string{opts.SourcePaths, opts.LibraryPaths, opts.ExternalLibraryPaths} {
		for _, p := range group {
			targets = append(targets, watcher.Target{Path: p, Recursive: true})
		}
	}
	return targets
}

func underAny(dirs []string, path string) bool {
	for _, d := range dirs {
		if entity.IsUnderRoot(d, path) {
			return true
		}
	}
	return false
}
