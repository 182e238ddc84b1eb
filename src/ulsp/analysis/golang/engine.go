// Package golang is the default analysis engine. It understands Go source trees well
// enough to resolve imports, check package qualified references and evaluate build
// constraints, using tree-sitter for parsing.
package golang

import (
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.lsp.dev/protocol"
)

const (
	_sourceExt  = ".go"
	_testSuffix = "_test.go"
	_archiveExt = ".a"
)

// Engine creates Go projects.
type Engine struct {
	fs fs.ProjectFS
}

var _ analysis.Engine = (*Engine)(nil)

// NewEngine returns an engine listing directories through fs.
func NewEngine(fs fs.ProjectFS) *Engine {
	return &Engine{fs: fs}
}

// CreateProject creates an empty project. Units are created on demand.
func (e *Engine) CreateProject(opts analysis.Options, src analysis.SourceReader) (analysis.Project, error) {
	if src == nil {
		return nil, fmt.Errorf("source reader is required")
	}
	return &project{
		fs:    e.fs,
		src:   src,
		opts:  opts,
		units: make(map[string]*unit),
	}, nil
}

type project struct {
	fs    fs.ProjectFS
	src   analysis.SourceReader
	opts  analysis.Options
	units map[string]*unit

	// created counts unit creations, so a walk can tell whether it raced with one.
	created  int
	disposed bool
}

// ApplyConfiguration stores opts and reports configured directories that do not exist.
func (p *project) ApplyConfiguration(opts analysis.Options) []analysis.Problem {
	p.opts = opts
	p.invalidateAll()

	var problems []analysis.Problem
	check := func(kind string, dirs []string) {
		for _, dir := range dirs {
			ok, err := p.fs.DirExists(dir)
			if err == nil && ok {
				continue
			}
			problems = append(problems, analysis.Problem{
				Severity: protocol.DiagnosticSeverityWarning,
				Code:     "missing-" + kind,
				Message:  fmt.Sprintf("%s path %s does not exist", kind, dir),
			})
		}
	}
	check("source", opts.SourcePaths)
	check("library", opts.LibraryPaths)
	check("external-library", opts.ExternalLibraryPaths)
	return problems
}

func (p *project) GetOrCreateUnit(path string) (analysis.Unit, error) {
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	switch filepath.Ext(path) {
	case _sourceExt, _archiveExt:
	default:
		return nil, fmt.Errorf("%s is not a Go source file or archive", path)
	}
	return p.getOrCreate(path), nil
}

func (p *project) getOrCreate(path string) *unit {
	if u, ok := p.units[path]; ok {
		return u
	}
	kind := analysis.UnitSource
	if filepath.Ext(path) == _archiveExt {
		kind = analysis.UnitCompiled
	}
	u := &unit{p: p, path: path, kind: kind}
	p.units[path] = u
	p.created++
	return u
}

func (p *project) FindUnit(path string) analysis.Unit {
	if u, ok := p.units[path]; ok {
		return u
	}
	return nil
}

func (p *project) Units() []analysis.Unit {
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

// TargetUnits returns every non-test source file under the source paths.
func (p *project) TargetUnits() ([]analysis.Unit, error) {
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	var result []analysis.Unit
	for _, sp := range p.opts.SourcePaths {
		files, err := p.walkSources(sp)
		if err != nil {
			return nil, fmt.Errorf("listing sources of %s: %w", sp, err)
		}
		for _, f := range files {
			result = append(result, p.getOrCreate(f))
		}
	}
	return result, nil
}

// ReachableUnits visits import edges depth first so dependencies precede dependents.
func (p *project) ReachableUnits(roots []analysis.Unit) ([]analysis.Unit, error) {
	if p.disposed {
		return nil, analysis.ErrDisposed
	}

	before := p.created
	seen := make(map[string]bool)
	var order []analysis.Unit

	var visit func(u *unit)
	visit = func(u *unit) {
		if seen[u.path] {
			return
		}
		seen[u.path] = true
		if u.kind == analysis.UnitSource {
			u.parse()
			for _, spec := range u.specs {
				for _, dep := range p.dependencyUnits(spec.path) {
					visit(dep)
				}
			}
		}
		order = append(order, u)
	}

	for _, r := range roots {
		u, ok := r.(*unit)
		if !ok || u.p != p {
			return nil, fmt.Errorf("unit %s does not belong to this project", r.Path())
		}
		visit(u)
	}

	if p.created != before {
		return nil, analysis.ErrConcurrentModification
	}
	return order, nil
}

// dependencyUnits returns the units an import path stands for, creating them as needed.
func (p *project) dependencyUnits(importPath string) []*unit {
	target := p.resolve(importPath)
	switch target.kind {
	case targetSource:
		var result []*unit
		for _, f := range p.packageFiles(target.path) {
			result = append(result, p.getOrCreate(f))
		}
		return result
	case targetArchive:
		return []*unit{p.getOrCreate(target.path)}
	default:
		return nil
	}
}

func (p *project) FileChanged(path string) {
	if u, ok := p.units[path]; ok {
		u.parsed = false
	}
	p.invalidateAll()
}

func (p *project) FileAdded(path string) {
	p.FileChanged(path)
}

func (p *project) FileRemoved(path string) {
	delete(p.units, path)
	p.invalidateAll()
}

// invalidateAll drops every cached check result; a change to one file can alter any package's declarations.
func (p *project) invalidateAll() {
	for _, u := range p.units {
		u.checked = false
	}
}

func (p *project) RequiredQualifiedNames(au analysis.Unit) map[string]struct{} {
	u, ok := au.(*unit)
	if !ok {
		return nil
	}
	u.parse()
	result := make(map[string]struct{})
	for _, spec := range u.specs {
		if spec.blank || spec.dot {
			result[spec.qualifiedName] = struct{}{}
		}
	}
	for _, sel := range u.selectors {
		if _, ok := u.importNamed(sel.qualifier); ok {
			result[sel.qualifier] = struct{}{}
		}
	}
	return result
}

func (p *project) IsOnSourcePath(path string) bool {
	for _, sp := range p.opts.SourcePaths {
		if isUnder(path, sp) {
			return true
		}
	}
	return false
}

func (p *project) Dispose() error {
	if p.disposed {
		return analysis.ErrDisposed
	}
	p.disposed = true
	p.units = nil
	return nil
}

// packageFiles lists the non-test sources of dir, including units that exist only in memory.
func (p *project) packageFiles(dir string) []string {
	set := make(map[string]struct{})
	if entries, err := p.fs.ReadDir(dir); err == nil {
		for _, e := range entries {
			if !e.IsDir() && isPackageSource(e.Name()) {
				set[filepath.Join(dir, e.Name())] = struct{}{}
			}
		}
	}
	for path, u := range p.units {
		if u.kind == analysis.UnitSource && filepath.Dir(path) == dir && isPackageSource(filepath.Base(path)) {
			set[path] = struct{}{}
		}
	}
	files := make([]string, 0, len(set))
	for f := range set {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func (p *project) walkSources(root string) ([]string, error) {
	var files []string
	err := p.fs.WalkDir(root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return iofs.SkipDir
			}
			return nil
		}
		if isPackageSource(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func isPackageSource(name string) bool {
	return strings.HasSuffix(name, _sourceExt) && !strings.HasSuffix(name, _testSuffix)
}

func isUnder(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
