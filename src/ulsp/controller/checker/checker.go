// Package checker computes diagnostics for workspace roots and hands them to the problem tracker.
//
// A quick check covers one open file and is cheap enough to run on every edit. A full check walks
// every unit reachable from the root's entry points and open files, and is the only pass that
// releases diagnostics which are no longer reported.
package checker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/analysis/syntax"
	"github.com/uber/project-lsp/src/ulsp/controller/diagnostics"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	_nameKey         = "checker"
	_syntaxConfigKey = "syntax"

	// Diagnostic codes produced by the checker itself.
	_codeBuildError        = "build-error"
	_codeUnusedImport      = "unused-import"
	_codeDisabledBlock     = "disabled-block"
	_codeOutsideSourcePath = "outside-source-path"
)

var errAbandoned = stderrors.New("check abandoned")

// Checker schedules diagnostic passes on the executor.
type Checker interface {
	// QuickCheck checks a single file and publishes only that file. Requests for a file with a check
	// in flight are coalesced into one rerun. A full check of root in flight reruns before publishing.
	QuickCheck(ctx context.Context, root string, path string)
	// FullCheck checks the whole root, cancelling any quick or full check of the root in flight.
	FullCheck(ctx context.Context, root string)
	// CancelRoot cancels every check of root without publishing.
	CancelRoot(root string)
	// SetQuickUnusedImports overrides whether quick checks report unused imports.
	SetQuickUnusedImports(enabled bool)
}

// Config is read from the "checker" section.
type Config struct {
	QuickUnusedImports  bool `yaml:"quickUnusedImports"`
	BuildTimeoutSeconds int  `yaml:"buildTimeoutSeconds"`
}

type syntaxConfig struct {
	Languages map[string]string `yaml:"languages"`
}

// Params are inbound parameters to initialize a new checker.
type Params struct {
	fx.In

	Config   config.Provider
	Registry projects.Registry
	Overlay  overlay.Overlay
	Tracker  diagnostics.Tracker
	Executor executor.Executor
	Logger   *zap.SugaredLogger
	Stats    tally.Scope
}

// pending is the single mailbox slot of a check key.
type pending struct {
	token  uuid.UUID
	ctx    context.Context
	cancel context.CancelFunc
	// dirty asks a running check to run again instead of publishing.
	dirty bool
}

type quickKey struct {
	root string
	path string
}

type checker struct {
	registry     projects.Registry
	overlay      overlay.Overlay
	tracker      diagnostics.Tracker
	executor     executor.Executor
	syntax       *syntax.Checker
	buildTimeout time.Duration
	logger       *zap.SugaredLogger
	stats        tally.Scope

	// publishMu orders publishes. It is taken before mu.
	publishMu sync.Mutex

	mu                 sync.Mutex
	quick              map[quickKey]*pending
	full               map[string]*pending
	quickUnusedImports bool
}

// New creates the checker.
func New(p Params) (Checker, error) {
	cfg := Config{}
	if err := p.Config.Get(_nameKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting %s configuration: %w", _nameKey, err)
	}
	syntaxCfg := syntaxConfig{}
	if err := p.Config.Get(_syntaxConfigKey).Populate(&syntaxCfg); err != nil {
		return nil, fmt.Errorf("getting %s configuration: %w", _syntaxConfigKey, err)
	}
	if len(syntaxCfg.Languages) == 0 {
		syntaxCfg.Languages = syntax.DefaultLanguages
	}
	syntaxChecker, err := syntax.NewChecker(syntaxCfg.Languages)
	if err != nil {
		return nil, err
	}

	return &checker{
		registry:           p.Registry,
		overlay:            p.Overlay,
		tracker:            p.Tracker,
		executor:           p.Executor,
		syntax:             syntaxChecker,
		buildTimeout:       time.Duration(cfg.BuildTimeoutSeconds) * time.Second,
		logger:             p.Logger.With("plugin", _nameKey),
		stats:              p.Stats.SubScope(_nameKey),
		quick:              make(map[quickKey]*pending),
		full:               make(map[string]*pending),
		quickUnusedImports: cfg.QuickUnusedImports,
	}, nil
}

func (c *checker) SetQuickUnusedImports(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quickUnusedImports = enabled
}

func (c *checker) QuickCheck(ctx context.Context, root string, path string) {
	key := quickKey{root: root, path: path}

	c.mu.Lock()
	if full, ok := c.full[root]; ok {
		// The running full pass may already have built the previous text.
		full.dirty = true
	}
	if p, ok := c.quick[key]; ok {
		p.dirty = true
		c.mu.Unlock()
		c.stats.Counter("quick.coalesced").Inc(1)
		return
	}
	p := newPending(ctx)
	c.quick[key] = p
	c.mu.Unlock()

	c.executor.Go(p.ctx, "quick-check", func(ctx context.Context) {
		c.runQuick(ctx, key, p)
	})
}

func (c *checker) FullCheck(ctx context.Context, root string) {
	c.mu.Lock()
	if prev, ok := c.full[root]; ok {
		prev.cancel()
		c.stats.Counter("full.replaced").Inc(1)
	}
	c.cancelQuickLocked(root)
	p := newPending(ctx)
	c.full[root] = p
	c.mu.Unlock()

	c.executor.Go(p.ctx, "full-check", func(ctx context.Context) {
		c.runFull(ctx, root, p)
	})
}

func (c *checker) CancelRoot(root string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.full[root]; ok {
		p.cancel()
		delete(c.full, root)
	}
	c.cancelQuickLocked(root)
}

func (c *checker) cancelQuickLocked(root string) {
	for key, p := range c.quick {
		if key.root == root {
			p.cancel()
			delete(c.quick, key)
			c.stats.Counter("quick.cancelled").Inc(1)
		}
	}
}

func (c *checker) runQuick(ctx context.Context, key quickKey, p *pending) {
	defer p.cancel()
	for {
		c.stats.Counter("quick.runs").Inc(1)
		byURI, err := c.quickDiagnostics(ctx, key.root, key.path)

		c.publishMu.Lock()
		c.mu.Lock()
		if c.quick[key] != p || ctx.Err() != nil {
			// Cancelled by a full check or shutdown.
			if c.quick[key] == p {
				delete(c.quick, key)
			}
			c.mu.Unlock()
			c.publishMu.Unlock()
			return
		}
		if p.dirty {
			p.dirty = false
			c.mu.Unlock()
			c.publishMu.Unlock()
			continue
		}
		delete(c.quick, key)
		c.mu.Unlock()

		if err != nil {
			if !stderrors.Is(err, errAbandoned) {
				c.logger.Warnf("Quick check of %q failed: %v", key.path, err)
			}
		} else if err := c.tracker.Publish(ctx, key.root, byURI, false); err != nil {
			c.logger.Warnf("Publishing diagnostics of %q: %v", key.path, err)
		}
		c.publishMu.Unlock()
		return
	}
}

func (c *checker) runFull(ctx context.Context, root string, p *pending) {
	defer p.cancel()
	c.logger.Debugf("Full check %s of %q started", p.token, root)
	start := time.Now()

	for {
		c.stats.Counter("full.runs").Inc(1)
		res, byURI, err := c.fullDiagnostics(ctx, root)

		c.publishMu.Lock()
		c.mu.Lock()
		current := c.full[root] == p
		if current && ctx.Err() == nil && p.dirty {
			p.dirty = false
			c.mu.Unlock()
			c.publishMu.Unlock()
			c.stats.Counter("full.rerun").Inc(1)
			continue
		}
		if current {
			delete(c.full, root)
		}
		c.mu.Unlock()

		if c.publishFull(ctx, root, res, byURI, current, err) {
			c.stats.Timer("full.duration").Record(time.Since(start))
		}
		c.publishMu.Unlock()
		return
	}
}

// publishFull hands the result of a full pass to the tracker. Caller must hold publishMu.
func (c *checker) publishFull(ctx context.Context, root string, res *projects.Resolution, byURI map[uri.URI][]protocol.Diagnostic, current bool, err error) bool {
	if !current || ctx.Err() != nil {
		c.stats.Counter("full.cancelled").Inc(1)
		return false
	}
	if err != nil {
		if !stderrors.Is(err, errAbandoned) {
			c.logger.Warnf("Full check of %q failed: %v", root, err)
		}
		return false
	}
	if err := c.tracker.Publish(ctx, root, byURI, true); err != nil {
		c.logger.Warnf("Publishing diagnostics of %q: %v", root, err)
		return false
	}
	c.registry.ConfigurationPublished(root, res.Generation)
	return true
}

// quickDiagnostics checks path alone. Problems of an included file are reported through the file including it.
func (c *checker) quickDiagnostics(ctx context.Context, root string, path string) (map[uri.URI][]protocol.Diagnostic, error) {
	res, err := c.registry.ResolveProject(ctx, root)
	if err != nil {
		return nil, err
	}
	out := res.Problems

	if res.Broken() {
		docURI := mapper.PathToURI(path)
		out[docURI] = append(out[docURI], c.syntaxDiagnostics(ctx, path)...)
		return onlyDocument(out, docURI), nil
	}

	if parent, ok := c.registry.IncludeParent(root, path); ok {
		path = parent
	}
	docURI := mapper.PathToURI(path)
	if c.registry.IsOutsideSourcePath(root, path) {
		out[docURI] = append(out[docURI], outsideSourcePathDiagnostic(root))
		return onlyDocument(out, docURI), nil
	}

	c.mu.Lock()
	unused := c.quickUnusedImports
	c.mu.Unlock()

	err = c.registry.WithBuildLock(ctx, func() error {
		if !res.Project.IsOnSourcePath(path) {
			out[docURI] = append(out[docURI], outsideSourcePathDiagnostic(root))
			return nil
		}
		unit, err := res.Project.GetOrCreateUnit(path)
		if err != nil {
			return abandonIfDisposed(err)
		}
		return c.checkUnit(ctx, res.Project, unit, unitChecks{unusedImports: unused}, out, nil)
	})
	if err != nil {
		return nil, err
	}
	return onlyDocument(out, docURI), nil
}

// onlyDocument keeps the diagnostics of docURI. A quick check never touches other documents.
func onlyDocument(byURI map[uri.URI][]protocol.Diagnostic, docURI uri.URI) map[uri.URI][]protocol.Diagnostic {
	diags := byURI[docURI]
	if diags == nil {
		diags = []protocol.Diagnostic{}
	}
	return map[uri.URI][]protocol.Diagnostic{docURI: diags}
}

// fullDiagnostics checks every unit reachable from the root units of the project.
func (c *checker) fullDiagnostics(ctx context.Context, root string) (*projects.Resolution, map[uri.URI][]protocol.Diagnostic, error) {
	res, err := c.registry.ResolveProject(ctx, root)
	if err != nil {
		return nil, nil, err
	}
	out := res.Problems
	// While the configuration is broken only its problems are shown.
	if res.Broken() {
		return res, out, nil
	}

	open := c.openPathsOf(root)
	var (
		units     []analysis.Unit
		fallbacks []string
		outside   []string
	)
	for {
		err = c.registry.WithBuildLock(ctx, func() error {
			roots, missing, stray, err := c.rootUnits(root, res, open)
			if err != nil {
				return err
			}
			fallbacks, outside = missing, stray
			units, err = res.Project.ReachableUnits(roots)
			return err
		})
		if !stderrors.Is(err, analysis.ErrConcurrentModification) {
			break
		}
		c.stats.Counter("full.retries").Inc(1)
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, nil, abandonIfDisposed(err)
	}

	includes := make(map[string]string)
	checks := unitChecks{unusedImports: true, disabledBlocks: true}
	for _, unit := range units {
		if unit.Kind() != analysis.UnitSource {
			continue
		}
		err := c.registry.WithBuildLock(ctx, func() error {
			return c.checkUnit(ctx, res.Project, unit, checks, out, includes)
		})
		if err != nil {
			return nil, nil, err
		}
	}

	for _, path := range fallbacks {
		// Entry files that cannot be read have nothing to report on.
		if diags := c.syntaxDiagnostics(ctx, path); diags != nil {
			docURI := mapper.PathToURI(path)
			out[docURI] = append(out[docURI], diags...)
		}
	}
	for _, path := range outside {
		docURI := mapper.PathToURI(path)
		out[docURI] = append(out[docURI], outsideSourcePathDiagnostic(root))
	}
	for included := range includes {
		delete(out, mapper.PathToURI(included))
	}

	c.registry.ReplaceIncludes(root, includes)
	c.registry.ReplaceOutsideSourcePath(root, outside)
	return res, out, nil
}

// rootUnits returns the units a full check starts from, the entry files that have no unit and
// the open files that are not on the source path. Caller must hold the build lock.
func (c *checker) rootUnits(root string, res *projects.Resolution, open []string) (roots []analysis.Unit, fallbacks []string, outside []string, err error) {
	project := res.Project
	seen := make(map[string]struct{})
	add := func(u analysis.Unit) {
		if _, ok := seen[u.Path()]; !ok {
			seen[u.Path()] = struct{}{}
			roots = append(roots, u)
		}
	}

	switch res.Options.Kind {
	case analysis.KindLibrary:
		targets, err := project.TargetUnits()
		if err != nil {
			return nil, nil, nil, err
		}
		for _, u := range targets {
			add(u)
		}
	case analysis.KindApplication:
		for _, entry := range res.Options.EntryFiles {
			u := project.FindUnit(entry)
			if u == nil {
				if _, readErr := c.overlay.ReadSource(entry); readErr == nil {
					if u, err = project.GetOrCreateUnit(entry); err != nil {
						return nil, nil, nil, err
					}
				}
			}
			if u == nil {
				fallbacks = append(fallbacks, entry)
				continue
			}
			add(u)
		}
	}

	for _, path := range open {
		if c.registry.Classify(path) != projects.ClassSource {
			continue
		}
		if _, ok := c.registry.IncludeParent(root, path); ok {
			continue
		}
		if !project.IsOnSourcePath(path) {
			outside = append(outside, path)
			continue
		}
		u, err := project.GetOrCreateUnit(path)
		if err != nil {
			return nil, nil, nil, err
		}
		add(u)
	}
	return roots, fallbacks, outside, nil
}

type unitChecks struct {
	unusedImports  bool
	disabledBlocks bool
}

// checkUnit builds unit and adds its diagnostics to out. Files it includes are recorded in includes when not nil.
// Caller must hold the build lock.
func (c *checker) checkUnit(ctx context.Context, project analysis.Project, unit analysis.Unit, checks unitChecks, out map[uri.URI][]protocol.Diagnostic, includes map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := unit.Path()
	docURI := mapper.PathToURI(path)
	if _, ok := out[docURI]; !ok {
		out[docURI] = []protocol.Diagnostic{}
	}

	buildCtx, cancel := c.buildContext(ctx)
	problems, err := unit.WaitForBuild(buildCtx)
	cancel()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		if stderrors.Is(err, analysis.ErrDisposed) {
			return errAbandoned
		}
		c.stats.Counter("build_errors").Inc(1)
		buildErr := &errors.BuildError{Path: path, Err: err}
		c.logger.Debugf("Build failed: %v", buildErr)
		out[docURI] = append(out[docURI], buildErrorDiagnostic(buildErr))
		return nil
	}

	included := make(map[string]struct{})
	for _, inc := range unit.IncludedFiles() {
		included[inc] = struct{}{}
		if includes != nil {
			includes[inc] = path
		}
	}

	positions, err := c.overlay.PositionMapper(path, unit.Source())
	if err != nil {
		positions = nil
	}
	for _, p := range problems {
		switch _, isIncluded := included[p.Path]; {
		case p.Path == "" || p.Path == path:
			out[docURI] = append(out[docURI], mapDiagnostic(positions, mapper.ProblemToDiagnostic(p)))
		case isIncluded:
			out[docURI] = append(out[docURI], mapper.IncludedProblemToDiagnostic(p))
		default:
			other := mapper.PathToURI(p.Path)
			out[other] = append(out[other], mapper.ProblemToDiagnostic(p))
		}
	}

	if checks.unusedImports {
		required := project.RequiredQualifiedNames(unit)
		for _, imp := range unit.Imports() {
			if _, ok := required[imp.QualifiedName]; !ok {
				out[docURI] = append(out[docURI], mapDiagnostic(positions, unusedImportDiagnostic(imp)))
			}
		}
	}
	if checks.disabledBlocks {
		for _, block := range unit.DisabledBlocks() {
			out[docURI] = append(out[docURI], mapDiagnostic(positions, disabledBlockDiagnostic(block)))
		}
	}
	return nil
}

// syntaxDiagnostics parses the current text of path without any project context.
func (c *checker) syntaxDiagnostics(ctx context.Context, path string) []protocol.Diagnostic {
	text, err := c.overlay.ReadSource(path)
	if err != nil {
		return nil
	}
	problems, err := c.syntax.Check(ctx, path, text)
	if err != nil {
		c.logger.Debugf("Syntax check of %q failed: %v", path, err)
		return nil
	}
	diags := make([]protocol.Diagnostic, 0, len(problems))
	for _, p := range problems {
		diags = append(diags, mapper.ProblemToDiagnostic(p))
	}
	return diags
}

// openPathsOf returns the open files whose innermost root is root.
func (c *checker) openPathsOf(root string) []string {
	var result []string
	for _, path := range c.overlay.OpenPaths() {
		if roots := c.registry.RootsForPath(path); len(roots) > 0 && roots[0] == root {
			result = append(result, path)
		}
	}
	return result
}

func (c *checker) buildContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.buildTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.buildTimeout)
}

// newPending detaches from the request context, which ends as soon as the notification is handled.
func newPending(ctx context.Context) *pending {
	taskCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &pending{
		token:  uuid.Must(uuid.NewV4()),
		ctx:    taskCtx,
		cancel: cancel,
	}
}

func abandonIfDisposed(err error) error {
	if stderrors.Is(err, analysis.ErrDisposed) {
		return errAbandoned
	}
	return err
}

func mapDiagnostic(positions overlay.PositionMapper, d protocol.Diagnostic) protocol.Diagnostic {
	if positions == nil {
		return d
	}
	if rng, err := positions.MapBaseRangeToCurrent(d.Range); err == nil {
		d.Range = rng
	}
	return d
}

func buildErrorDiagnostic(err *errors.BuildError) protocol.Diagnostic {
	return protocol.Diagnostic{
		Severity: protocol.DiagnosticSeverityError,
		Code:     _codeBuildError,
		Source:   mapper.DiagnosticSource,
		Message:  err.Error(),
	}
}

func unusedImportDiagnostic(imp analysis.Import) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    imp.Range,
		Severity: protocol.DiagnosticSeverityWarning,
		Code:     _codeUnusedImport,
		Source:   mapper.DiagnosticSource,
		Message:  fmt.Sprintf("%s imported and not used", imp.QualifiedName),
		Tags:     []protocol.DiagnosticTag{protocol.DiagnosticTagUnnecessary},
	}
}

func disabledBlockDiagnostic(block analysis.ConditionalBlock) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range:    block.Range,
		Severity: protocol.DiagnosticSeverityHint,
		Code:     _codeDisabledBlock,
		Source:   mapper.DiagnosticSource,
		Message:  fmt.Sprintf("inactive code: %s is not defined", block.Condition),
		Tags:     []protocol.DiagnosticTag{protocol.DiagnosticTagUnnecessary},
	}
}

func outsideSourcePathDiagnostic(root string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Severity: protocol.DiagnosticSeverityInformation,
		Code:     _codeOutsideSourcePath,
		Source:   mapper.DiagnosticSource,
		Message:  fmt.Sprintf("file is not on a source path of the project at %s and is not checked", root),
	}
}
