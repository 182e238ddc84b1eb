// Package analysistest provides an in-memory analysis engine for tests.
//
// The engine understands a tiny line based language. Each line is one statement:
//
//	import NAME      imports NAME<ext> from the source paths, or NAME.a from the library paths
//	include FILE     textually includes FILE, relative to the including file
//	if FLAG          starts a block that is disabled unless FLAG is defined
//	endif            ends the innermost block
//	error MESSAGE    reports an error on this line
//	panic            makes the build fail
//	def NAME         declares NAME
//
// Any NAME.member token elsewhere counts as a use of the import NAME.
package analysistest

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	"go.lsp.dev/protocol"
)

// Engine creates fake projects and records what happened to them.
type Engine struct {
	mu       sync.Mutex
	projects []*Project

	// ConfigProblems are returned by every ApplyConfiguration call.
	ConfigProblems []analysis.Problem
	// BeforeBuild runs at the start of every unit build, outside of any engine lock.
	BeforeBuild func(ctx context.Context, path string)
	// ForcedConcurrentModifications makes that many ReachableUnits calls fail before the graph is walked.
	ForcedConcurrentModifications int
}

var _ analysis.Engine = (*Engine)(nil)

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{}
}

// CreateProject creates a new fake project.
func (e *Engine) CreateProject(opts analysis.Options, src analysis.SourceReader) (analysis.Project, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p := &Project{
		engine: e,
		opts:   opts,
		src:    src,
		units:  make(map[string]*Unit),
		builds: make(map[string]int),
	}
	e.projects = append(e.projects, p)
	return p, nil
}

// Projects returns every project created so far, oldest first.
func (e *Engine) Projects() []*Project {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Project(nil), e.projects...)
}

// Created returns the number of projects created.
func (e *Engine) Created() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.projects)
}

// Disposed returns the number of projects disposed.
func (e *Engine) Disposed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, p := range e.projects {
		if p.IsDisposed() {
			n++
		}
	}
	return n
}

func (e *Engine) takeForcedModification() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ForcedConcurrentModifications > 0 {
		e.ForcedConcurrentModifications--
		return true
	}
	return false
}

// Project is a fake analysis project.
type Project struct {
	engine *Engine
	opts   analysis.Options
	src    analysis.SourceReader

	mu       sync.Mutex
	units    map[string]*Unit
	builds   map[string]int
	events   []string
	disposed bool
}

var _ analysis.Project = (*Project)(nil)

// Options returns the options the project was created with.
func (p *Project) Options() analysis.Options {
	return p.opts
}

// IsDisposed reports whether Dispose was called.
func (p *Project) IsDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Builds returns how many times the unit at path was built.
func (p *Project) Builds(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.builds[path]
}

// Events returns the file notifications received, formatted as "kind:path".
func (p *Project) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// ApplyConfiguration returns the engine's configured problems.
func (p *Project) ApplyConfiguration(opts analysis.Options) []analysis.Problem {
	p.mu.Lock()
	p.opts = opts
	p.mu.Unlock()
	return p.engine.ConfigProblems
}

// GetOrCreateUnit returns the unit for path, creating it if needed.
func (p *Project) GetOrCreateUnit(path string) (analysis.Unit, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	u, _ := p.getOrCreateLocked(path)
	return u, nil
}

func (p *Project) getOrCreateLocked(path string) (*Unit, bool) {
	if u, ok := p.units[path]; ok {
		return u, false
	}
	kind := analysis.UnitSource
	if filepath.Ext(path) == ".a" {
		kind = analysis.UnitCompiled
	}
	u := &Unit{project: p, path: path, kind: kind}
	p.units[path] = u
	return u, true
}

// FindUnit returns the existing unit for path or nil.
func (p *Project) FindUnit(path string) analysis.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.units[path]; ok {
		return u
	}
	return nil
}

// Units returns every unit sorted by path.
func (p *Project) Units() []analysis.Unit {
	p.mu.Lock()
	defer p.mu.Unlock()
	paths := make([]string, 0, len(p.units))
	for path := range p.units {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	result := make([]analysis.Unit, 0, len(paths))
	for _, path := range paths {
		result = append(result, p.units[path])
	}
	return result
}

// TargetUnits returns a unit for every entry file.
func (p *Project) TargetUnits() ([]analysis.Unit, error) {
	var result []analysis.Unit
	for _, entry := range p.opts.EntryFiles {
		u, err := p.GetOrCreateUnit(entry)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}

// ReachableUnits walks imports depth first, dependencies before dependents.
func (p *Project) ReachableUnits(roots []analysis.Unit) ([]analysis.Unit, error) {
	if p.engine.takeForcedModification() {
		return nil, analysis.ErrConcurrentModification
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, analysis.ErrDisposed
	}

	var (
		order    []analysis.Unit
		seen     = make(map[string]bool)
		modified bool
	)
	var visit func(u *Unit)
	visit = func(u *Unit) {
		if seen[u.path] {
			return
		}
		seen[u.path] = true
		if u.kind == analysis.UnitSource {
			u.parseLocked()
			for _, imp := range u.imports {
				target, ok := p.resolveLocked(u.path, imp.QualifiedName)
				if !ok {
					continue
				}
				dep, created := p.getOrCreateLocked(target)
				modified = modified || created
				visit(dep)
			}
		}
		order = append(order, u)
	}
	for _, r := range roots {
		u, ok := r.(*Unit)
		if !ok {
			return nil, fmt.Errorf("foreign unit %q", r.Path())
		}
		visit(u)
	}

	if modified {
		return nil, analysis.ErrConcurrentModification
	}
	return order, nil
}

// FileChanged invalidates the unit for path.
func (p *Project) FileChanged(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "changed:"+path)
	p.invalidateLocked()
}

// FileAdded invalidates every unit, since the new file may satisfy an import.
func (p *Project) FileAdded(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "added:"+path)
	p.invalidateLocked()
}

// FileRemoved drops the unit for path.
func (p *Project) FileRemoved(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, "removed:"+path)
	delete(p.units, path)
	p.invalidateLocked()
}

func (p *Project) invalidateLocked() {
	for _, u := range p.units {
		u.parsed = false
	}
}

// RequiredQualifiedNames returns the imports u refers to.
func (p *Project) RequiredQualifiedNames(u analysis.Unit) map[string]struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	fu, ok := u.(*Unit)
	if !ok {
		return nil
	}
	result := make(map[string]struct{}, len(fu.uses))
	for name := range fu.uses {
		result[name] = struct{}{}
	}
	return result
}

// IsOnSourcePath reports whether path lies under a source path.
func (p *Project) IsOnSourcePath(path string) bool {
	for _, sp := range p.opts.SourcePaths {
		if path == sp || strings.HasPrefix(path, sp+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// LookupSymbol finds a def of the word at pos in u or in any unit it imports.
func (p *Project) LookupSymbol(u analysis.Unit, pos protocol.Position) (*analysis.Symbol, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	fu, ok := u.(*Unit)
	if !ok {
		return nil, fmt.Errorf("foreign unit %q", u.Path())
	}
	fu.parseLocked()

	word := wordAt(fu.source, pos)
	if i := strings.LastIndexByte(word, '.'); i >= 0 {
		word = word[i+1:]
	}
	if word == "" {
		return nil, nil
	}

	candidates := []*Unit{fu}
	for _, imp := range fu.imports {
		if target, ok := p.resolveLocked(fu.path, imp.QualifiedName); ok {
			dep, _ := p.getOrCreateLocked(target)
			dep.parseLocked()
			candidates = append(candidates, dep)
		}
	}
	for _, c := range candidates {
		if rng, ok := c.defs[word]; ok {
			return &analysis.Symbol{Name: word, Detail: "def " + word, Path: c.path, Range: rng}, nil
		}
	}
	return nil, nil
}

// Dispose marks the project unusable.
func (p *Project) Dispose() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return analysis.ErrDisposed
	}
	p.disposed = true
	p.units = make(map[string]*Unit)
	return nil
}

func (p *Project) resolveLocked(from string, name string) (string, bool) {
	ext := filepath.Ext(from)
	for _, sp := range p.opts.SourcePaths {
		candidate := filepath.Join(sp, name+ext)
		if _, err := p.src.ReadSource(candidate); err == nil {
			return candidate, true
		}
	}
	for _, lp := range append(append([]string(nil), p.opts.LibraryPaths...), p.opts.ExternalLibraryPaths...) {
		candidate := filepath.Join(lp, name+".a")
		if _, err := p.src.ReadSource(candidate); err == nil {
			return candidate, true
		}
	}
	return "", false
}

// Unit is a fake analysis unit.
type Unit struct {
	project *Project
	path    string
	kind    analysis.UnitKind

	parsed   bool
	readErr  error
	panics   bool
	source   string
	imports  []analysis.Import
	includes []string
	disabled []analysis.ConditionalBlock
	uses     map[string]struct{}
	defs     map[string]protocol.Range
	problems []analysis.Problem
}

var _ analysis.Unit = (*Unit)(nil)

func (u *Unit) Path() string { return u.path }

func (u *Unit) Kind() analysis.UnitKind { return u.kind }

// WaitForBuild parses the unit and resolves its imports.
func (u *Unit) WaitForBuild(ctx context.Context) ([]analysis.Problem, error) {
	if hook := u.project.engine.BeforeBuild; hook != nil {
		hook(ctx, u.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := u.project
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	p.builds[u.path]++

	if u.kind == analysis.UnitCompiled {
		return nil, nil
	}
	u.parseLocked()
	if u.readErr != nil {
		return nil, u.readErr
	}
	if u.panics {
		return nil, errors.New("engine failure")
	}

	problems := append([]analysis.Problem(nil), u.problems...)
	for _, imp := range u.imports {
		if _, ok := p.resolveLocked(u.path, imp.QualifiedName); !ok {
			problems = append(problems, analysis.Problem{
				Path:     u.path,
				Range:    imp.Range,
				Severity: protocol.DiagnosticSeverityError,
				Code:     "unresolved-import",
				Message:  fmt.Sprintf("cannot resolve import %s", imp.QualifiedName),
			})
		}
	}
	return problems, nil
}

func (u *Unit) Source() string {
	u.project.mu.Lock()
	defer u.project.mu.Unlock()
	return u.source
}

func (u *Unit) Imports() []analysis.Import {
	u.project.mu.Lock()
	defer u.project.mu.Unlock()
	return u.imports
}

func (u *Unit) DisabledBlocks() []analysis.ConditionalBlock {
	u.project.mu.Lock()
	defer u.project.mu.Unlock()
	return u.disabled
}

func (u *Unit) IncludedFiles() []string {
	u.project.mu.Lock()
	defer u.project.mu.Unlock()
	return u.includes
}

func (u *Unit) parseLocked() {
	if u.parsed || u.kind == analysis.UnitCompiled {
		return
	}
	u.parsed = true
	u.imports, u.includes, u.disabled, u.problems = nil, nil, nil, nil
	u.uses = make(map[string]struct{})
	u.defs = make(map[string]protocol.Range)
	u.panics = false

	text, err := u.project.src.ReadSource(u.path)
	u.source, u.readErr = text, err
	if err != nil {
		return
	}

	type open struct {
		line int
		flag string
	}
	var stack []open
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "import":
			if len(fields) > 1 {
				start := strings.Index(line, fields[1])
				u.imports = append(u.imports, analysis.Import{
					QualifiedName: fields[1],
					Path:          fields[1],
					Range:         lineRange(i, start, start+len(fields[1])),
				})
			}
			continue
		case "include":
			if len(fields) > 1 {
				included := filepath.Join(filepath.Dir(u.path), fields[1])
				u.includes = append(u.includes, included)
				u.problems = append(u.problems, u.includedProblems(included)...)
			}
			continue
		case "if":
			if len(fields) > 1 {
				stack = append(stack, open{line: i, flag: fields[1]})
			}
			continue
		case "endif":
			if n := len(stack); n > 0 {
				top := stack[n-1]
				stack = stack[:n-1]
				if !u.project.opts.Defines[top.flag] {
					u.disabled = append(u.disabled, analysis.ConditionalBlock{
						Range:     blockRange(top.line, i, len(lines[i])),
						Condition: top.flag,
					})
				}
			}
			continue
		case "error":
			u.problems = append(u.problems, analysis.Problem{
				Path:     u.path,
				Range:    lineRange(i, 0, len(line)),
				Severity: protocol.DiagnosticSeverityError,
				Code:     "error",
				Message:  strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "error")),
			})
			continue
		case "panic":
			u.panics = true
			continue
		case "def":
			if len(fields) > 1 {
				start := strings.Index(line, fields[1])
				u.defs[fields[1]] = lineRange(i, start, start+len(fields[1]))
			}
		}
		for _, f := range fields {
			if dot := strings.IndexByte(f, '.'); dot > 0 {
				u.uses[f[:dot]] = struct{}{}
			}
		}
	}
}

func (u *Unit) includedProblems(path string) []analysis.Problem {
	text, err := u.project.src.ReadSource(path)
	if err != nil {
		return []analysis.Problem{{
			Path:     u.path,
			Severity: protocol.DiagnosticSeverityError,
			Code:     "missing-include",
			Message:  fmt.Sprintf("cannot read included file %s", filepath.Base(path)),
		}}
	}
	var problems []analysis.Problem
	for i, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "error") {
			problems = append(problems, analysis.Problem{
				Path:     path,
				Range:    lineRange(i, 0, len(line)),
				Severity: protocol.DiagnosticSeverityError,
				Code:     "error",
				Message:  strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "error")),
			})
		}
	}
	return problems
}

func lineRange(line, start, end int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line), Character: uint32(start)},
		End:   protocol.Position{Line: uint32(line), Character: uint32(end)},
	}
}

func blockRange(startLine, endLine, endChar int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(startLine)},
		End:   protocol.Position{Line: uint32(endLine), Character: uint32(endChar)},
	}
}

func wordAt(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	isWord := func(b byte) bool {
		return b == '_' || b == '.' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
	}
	start, end := col, col
	for start > 0 && isWord(line[start-1]) {
		start--
	}
	for end < len(line) && isWord(line[end]) {
		end++
	}
	return line[start:end]
}
