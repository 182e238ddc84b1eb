// Package watcher keeps filesystem watches for the directories of every project and
// delivers coalesced change batches in the same shape as editor file notifications.
package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/entity"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	ulspfs "github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	_nameKey   = "watcher"
	_configKey = "watcher"

	_defaultBatchInterval = 50 * time.Millisecond
	_walkConcurrency      = 4
)

// Target is a directory to watch for a root.
type Target struct {
	Path string
	// Recursive watches every sub-directory, including ones created later.
	Recursive bool
}

// Handler receives a batch of coalesced events, in the order their paths first changed.
type Handler func(ctx context.Context, events []protocol.FileEvent)

// Watcher maintains directory watches per root.
type Watcher interface {
	// Watch replaces the targets of root. Directories that cannot be watched are reported as
	// *errors.WatcherIOError and skipped.
	Watch(ctx context.Context, root string, targets []Target) error
	// Unwatch drops every registration of root and offers the freed directories to the remaining roots.
	Unwatch(ctx context.Context, root string) error
	// Subscribe adds a handler for event batches.
	Subscribe(h Handler)
	// SetDeduplicate limits every real directory to a single owning root.
	SetDeduplicate(enabled bool)
	// Watched returns the directories registered for root, sorted.
	Watched(root string) []string
}

// Config for the watcher.
type Config struct {
	BatchIntervalMs int `yaml:"batchIntervalMs"`
}

// Params are inbound parameters to initialize a new watcher.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	FS        ulspfs.ProjectFS
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
}

// registration is one watched directory of one root.
type registration struct {
	id        int
	path      string
	root      string
	recursive bool
}

type watcher struct {
	fsw           *fsnotify.Watcher
	fs            ulspfs.ProjectFS
	logger        *zap.SugaredLogger
	stats         tally.Scope
	batchInterval time.Duration

	mu          sync.Mutex
	nextID      int
	deduplicate bool
	byID        map[int]*registration
	// byPath and byRoot index the same registrations: path -> root -> registration and root -> path -> registration.
	byPath   map[string]map[string]*registration
	byRoot   map[string]map[string]*registration
	targets  map[string][]Target
	// aliases maps, per root, a resolved target directory to the path the root asked for.
	aliases  map[string]map[string]string
	handlers []Handler

	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the watcher and starts its event loop.
func New(p Params) (Watcher, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("reading %s config: %w", _configKey, err)
	}
	interval := _defaultBatchInterval
	if cfg.BatchIntervalMs > 0 {
		interval = time.Duration(cfg.BatchIntervalMs) * time.Millisecond
	}

	w, err := newWatcher(p.FS, p.Logger, p.Stats, interval)
	if err != nil {
		return nil, err
	}
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return w.stop()
		},
	})
	return w, nil
}

func newWatcher(projectFS ulspfs.ProjectFS, logger *zap.SugaredLogger, stats tally.Scope, interval time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	base, cancel := context.WithCancel(context.Background())
	w := &watcher{
		fsw:           fsw,
		fs:            projectFS,
		logger:        logger.With("plugin", _nameKey),
		stats:         stats.SubScope(_nameKey),
		batchInterval: interval,
		byID:          make(map[int]*registration),
		byPath:        make(map[string]map[string]*registration),
		byRoot:        make(map[string]map[string]*registration),
		targets:       make(map[string][]Target),
		aliases:       make(map[string]map[string]string),
		base:          base,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	go w.handleChanges()
	return w, nil
}

func (w *watcher) stop() error {
	w.cancel()
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *watcher) Subscribe(h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, h)
}

func (w *watcher) SetDeduplicate(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deduplicate = enabled
}

func (w *watcher) Watched(root string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	result := make([]string, 0, len(w.byRoot[root]))
	for p := range w.byRoot[root] {
		result = append(result, p)
	}
	slices.Sort(result)
	return result
}

func (w *watcher) Watch(ctx context.Context, root string, targets []Target) error {
	dirs, aliases, errs := w.collect(ctx, targets)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.targets[root] = append([]Target(nil), targets...)
	w.aliases[root] = aliases
	wanted := make(map[string]bool, len(dirs))
	for _, d := range dirs {
		wanted[d.path] = wanted[d.path] || d.recursive
	}
	for p := range w.byRoot[root] {
		if _, ok := wanted[p]; !ok {
			errs = multierr.Append(errs, w.removeLocked(root, p))
		}
	}
	for _, d := range dirs {
		errs = multierr.Append(errs, w.addLocked(root, d.path, wanted[d.path]))
	}
	w.updateMetricsLocked()
	return errs
}

func (w *watcher) Unwatch(ctx context.Context, root string) error {
	w.mu.Lock()
	var errs error
	for p := range w.byRoot[root] {
		errs = multierr.Append(errs, w.removeLocked(root, p))
	}
	delete(w.byRoot, root)
	delete(w.targets, root)
	delete(w.aliases, root)

	others := make(map[string][]Target, len(w.targets))
	for r, t := range w.targets {
		others[r] = t
	}
	dedup := w.deduplicate
	w.updateMetricsLocked()
	w.mu.Unlock()

	if !dedup {
		return errs
	}
	// Directories freed by root may now belong to another root that was deduplicated away.
	for _, r := range sortedRoots(others) {
		errs = multierr.Append(errs, w.Watch(ctx, r, others[r]))
	}
	return errs
}

type dir struct {
	path      string
	recursive bool
}

// collect resolves targets to canonical directories. Walks run in parallel.
// The returned aliases map each resolved target reached through a symlink back to the target path.
func (w *watcher) collect(ctx context.Context, targets []Target) ([]dir, map[string]string, error) {
	var (
		mu      sync.Mutex
		results = make([][]dir, len(targets))
		aliases = make(map[string]string)
		errs    error
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(_walkConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			resolved, found, err := w.walk(ctx, t)
			mu.Lock()
			defer mu.Unlock()
			results[i] = found
			if logical := filepath.Clean(t.Path); resolved != "" && resolved != logical {
				aliases[resolved] = logical
			}
			errs = multierr.Append(errs, err)
			return nil
		})
	}
	_ = g.Wait()

	var dirs []dir
	seen := make(map[string]bool)
	for _, found := range results {
		for _, d := range found {
			if seen[d.path] && !d.recursive {
				continue
			}
			seen[d.path] = true
			dirs = append(dirs, d)
		}
	}
	return dirs, aliases, errs
}

// walk returns the resolved target path and the directories to register for it.
func (w *watcher) walk(ctx context.Context, t Target) (string, []dir, error) {
	resolved, err := w.fs.EvalSymlinks(t.Path)
	if err != nil {
		return "", nil, &errors.WatcherIOError{Path: t.Path, Err: err}
	}
	if !t.Recursive {
		return resolved, []dir{{path: resolved}}, nil
	}

	var (
		found []dir
		errs  error
	)
	walkErr := w.fs.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			errs = multierr.Append(errs, &errors.WatcherIOError{Path: p, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != resolved && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		found = append(found, dir{path: p, recursive: true})
		return nil
	})
	if walkErr != nil {
		errs = multierr.Append(errs, &errors.WatcherIOError{Path: resolved, Err: walkErr})
	}
	return resolved, found, errs
}

// addLocked registers path for root. Caller must hold w.mu.
func (w *watcher) addLocked(root, path string, recursive bool) error {
	if existing, ok := w.byRoot[root][path]; ok {
		existing.recursive = recursive
		return nil
	}
	owners := w.byPath[path]
	if w.deduplicate && len(owners) > 0 {
		return nil
	}
	if len(owners) == 0 {
		if err := w.fsw.Add(path); err != nil {
			return &errors.WatcherIOError{Path: path, Err: err}
		}
	}

	w.nextID++
	reg := &registration{id: w.nextID, path: path, root: root, recursive: recursive}
	w.byID[reg.id] = reg
	if owners == nil {
		owners = make(map[string]*registration)
		w.byPath[path] = owners
	}
	owners[root] = reg
	if w.byRoot[root] == nil {
		w.byRoot[root] = make(map[string]*registration)
	}
	w.byRoot[root][path] = reg
	return nil
}

// removeLocked drops the registration of path for root. Caller must hold w.mu.
func (w *watcher) removeLocked(root, path string) error {
	reg, ok := w.byRoot[root][path]
	if !ok {
		return nil
	}
	delete(w.byID, reg.id)
	delete(w.byRoot[root], path)
	delete(w.byPath[path], root)
	if len(w.byPath[path]) > 0 {
		return nil
	}
	delete(w.byPath, path)
	if err := w.fsw.Remove(path); err != nil && !stderrors.Is(err, fsnotify.ErrNonExistentWatch) {
		return &errors.WatcherIOError{Path: path, Err: err}
	}
	return nil
}

// forgetLocked drops every registration at or below path, used once the directory is gone.
func (w *watcher) forgetLocked(path string) {
	for p, owners := range w.byPath {
		if !entity.IsUnderRoot(path, p) {
			continue
		}
		for root, reg := range owners {
			delete(w.byID, reg.id)
			delete(w.byRoot[root], p)
		}
		delete(w.byPath, p)
		// Usually already dropped by the kernel; a renamed directory keeps its watch otherwise.
		_ = w.fsw.Remove(p)
	}
}

// handleChanges is the event loop. Handlers run on this goroutine.
func (w *watcher) handleChanges() {
	defer close(w.done)

	var (
		pending batch
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.observe(event, &pending) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.batchInterval)
				timerC = timer.C
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnf("Failure in file watcher: %v", err)
		case <-timerC:
			timer, timerC = nil, nil
			events := pending.flush()
			if len(events) > 0 {
				w.dispatch(events)
			}
		case <-w.base.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// observe updates registrations for directory events and adds the event to the batch.
// Returns false when the event is ignored.
func (w *watcher) observe(event fsnotify.Event, pending *batch) bool {
	var changeType protocol.FileChangeType
	switch {
	case event.Has(fsnotify.Create):
		changeType = protocol.FileChangeTypeCreated
		w.watchCreatedDir(event.Name)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		changeType = protocol.FileChangeTypeDeleted
		w.mu.Lock()
		w.forgetLocked(event.Name)
		w.updateMetricsLocked()
		w.mu.Unlock()
	case event.Has(fsnotify.Write):
		changeType = protocol.FileChangeTypeChanged
	default:
		return false
	}
	w.stats.Counter("events").Inc(1)
	w.mu.Lock()
	paths := w.reportedPathsLocked(event.Name)
	w.mu.Unlock()
	for _, p := range paths {
		pending.add(p, changeType)
	}
	return true
}

// reportedPathsLocked returns path along with its spelling under every symlinked target that
// contains it, so that roots opened through a symlink see their own paths. Caller must hold w.mu.
func (w *watcher) reportedPathsLocked(path string) []string {
	result := []string{path}
	for _, root := range sortedRoots(w.targets) {
		for resolved, logical := range w.aliases[root] {
			if !entity.IsUnderRoot(resolved, path) {
				continue
			}
			rel, err := filepath.Rel(resolved, path)
			if err != nil {
				continue
			}
			if p := filepath.Join(logical, rel); !slices.Contains(result, p) {
				result = append(result, p)
			}
		}
	}
	slices.Sort(result[1:])
	return result
}

// watchCreatedDir registers a new directory for every root that watches its parent recursively.
func (w *watcher) watchCreatedDir(path string) {
	info, err := w.fs.Stat(path)
	if err != nil || !info.IsDir() || strings.HasPrefix(filepath.Base(path), ".") {
		return
	}

	w.mu.Lock()
	var roots []string
	for root, reg := range w.byPath[filepath.Dir(path)] {
		if reg.recursive {
			roots = append(roots, root)
		}
	}
	w.mu.Unlock()
	if len(roots) == 0 {
		return
	}

	_, dirs, errs := w.walk(w.base, Target{Path: path, Recursive: true})
	w.mu.Lock()
	for _, root := range roots {
		for _, d := range dirs {
			errs = multierr.Append(errs, w.addLocked(root, d.path, true))
		}
	}
	w.updateMetricsLocked()
	w.mu.Unlock()
	if errs != nil {
		w.logger.Warnf("Unable to watch new directory %q: %v", path, errs)
	}
}

func (w *watcher) dispatch(events []protocol.FileEvent) {
	w.mu.Lock()
	handlers := append([]Handler(nil), w.handlers...)
	w.mu.Unlock()

	w.stats.Counter("batches").Inc(1)
	for _, h := range handlers {
		h(w.base, events)
	}
}

func (w *watcher) updateMetricsLocked() {
	w.stats.Gauge("watched_dirs").Update(float64(len(w.byPath)))
}

// batch coalesces events per path while preserving first-seen order.
type batch struct {
	order []string
	types map[string]protocol.FileChangeType
}

func (b *batch) add(path string, t protocol.FileChangeType) {
	if b.types == nil {
		b.types = make(map[string]protocol.FileChangeType)
	}
	prev, ok := b.types[path]
	if !ok {
		b.order = append(b.order, path)
		b.types[path] = t
		return
	}
	switch {
	case prev == protocol.FileChangeTypeCreated && t == protocol.FileChangeTypeChanged:
		// Still a creation from the client's point of view.
	case prev == protocol.FileChangeTypeCreated && t == protocol.FileChangeTypeDeleted:
		delete(b.types, path)
	case prev == protocol.FileChangeTypeDeleted && t == protocol.FileChangeTypeCreated:
		b.types[path] = protocol.FileChangeTypeChanged
	default:
		b.types[path] = t
	}
}

func (b *batch) flush() []protocol.FileEvent {
	events := make([]protocol.FileEvent, 0, len(b.types))
	emitted := make(map[string]bool, len(b.types))
	for _, p := range b.order {
		t, ok := b.types[p]
		if !ok || emitted[p] {
			continue
		}
		emitted[p] = true
		events = append(events, protocol.FileEvent{URI: mapper.PathToURI(p), Type: t})
	}
	b.order = nil
	b.types = nil
	return events
}

func sortedRoots(targets map[string][]Target) []string {
	roots := make([]string, 0, len(targets))
	for r := range targets {
		roots = append(roots, r)
	}
	slices.Sort(roots)
	return roots
}
