// Package analysis defines the contract between the daemon and a language analysis engine.
//
// The engine owns parsing, resolution and type checking. The daemon only decides when a
// project is created or torn down, which units are built, and which of their problems
// reach the editor. Engines are not safe for concurrent use; callers serialize every call
// on a project behind a single lock.
package analysis

import (
	"context"
	stderr "errors"

	"go.lsp.dev/protocol"
)

// ErrConcurrentModification is returned by ReachableUnits when units were created while the
// graph was being walked. The walk is complete once it succeeds; callers retry.
var ErrConcurrentModification = stderr.New("unit collection changed during iteration")

// ErrDisposed is returned by any project call made after Dispose.
var ErrDisposed = stderr.New("project has been disposed")

// ProjectKind selects how a project's root units are found.
type ProjectKind int

const (
	// KindApplication projects are rooted at their entry files.
	KindApplication ProjectKind = iota
	// KindLibrary projects are rooted at every unit the target exports.
	KindLibrary
)

func (k ProjectKind) String() string {
	if k == KindLibrary {
		return "library"
	}
	return "application"
}

// UnitKind distinguishes units built from source from prebuilt dependencies.
type UnitKind int

const (
	// UnitSource units are parsed from text and produce problems.
	UnitSource UnitKind = iota
	// UnitCompiled units come from prebuilt archives and are never checked.
	UnitCompiled
)

// Options are the build options of one project.
// Two Options values built from the same inputs compare equal with reflect.DeepEqual.
type Options struct {
	Kind                 ProjectKind
	Root                 string
	SourcePaths          []string
	LibraryPaths         []string
	ExternalLibraryPaths []string
	EntryFiles           []string
	OutputPath           string
	Defines              map[string]bool
	SDKPath              string
}

// Problem is a single diagnostic produced by the engine.
// Ranges refer to the text the unit was built from, see Unit.Source.
type Problem struct {
	// Path is the file the problem belongs to. Empty means the project as a whole.
	Path     string
	Range    protocol.Range
	Severity protocol.DiagnosticSeverity
	Code     string
	Message  string
}

// Import is one import of a unit.
type Import struct {
	// QualifiedName is the name the importing unit uses to refer to the import.
	QualifiedName string
	Path          string
	Range         protocol.Range
}

// ConditionalBlock is a region of a unit excluded by the project's defines.
type ConditionalBlock struct {
	Range     protocol.Range
	Condition string
}

// Symbol is the result of a code intelligence lookup.
type Symbol struct {
	Name   string
	Detail string
	Path   string
	Range  protocol.Range
}

// SourceReader returns the current text of a file, preferring unsaved editor content over disk.
type SourceReader interface {
	ReadSource(path string) (string, error)
}

// Engine creates projects.
type Engine interface {
	CreateProject(opts Options, src SourceReader) (Project, error)
}

// Project is the engine's live model of one workspace root.
type Project interface {
	// ApplyConfiguration applies options to a freshly created project and returns configuration level problems.
	ApplyConfiguration(opts Options) []Problem
	GetOrCreateUnit(path string) (Unit, error)
	// FindUnit returns nil when no unit exists for path.
	FindUnit(path string) Unit
	Units() []Unit
	// TargetUnits returns the units rooted by a library target.
	TargetUnits() ([]Unit, error)
	// ReachableUnits returns the transitive closure of roots, dependencies first, in a stable order.
	ReachableUnits(roots []Unit) ([]Unit, error)
	FileChanged(path string)
	FileAdded(path string)
	FileRemoved(path string)
	// RequiredQualifiedNames returns the import names u actually refers to. Valid once u is built.
	RequiredQualifiedNames(u Unit) map[string]struct{}
	IsOnSourcePath(path string) bool
	// LookupSymbol resolves the symbol at pos, which is relative to u.Source. Returns nil when nothing is found.
	LookupSymbol(u Unit, pos protocol.Position) (*Symbol, error)
	Dispose() error
}

// Unit is the engine's per-file semantic model.
type Unit interface {
	Path() string
	Kind() UnitKind
	// WaitForBuild builds the unit if needed and returns its problems.
	WaitForBuild(ctx context.Context) ([]Problem, error)
	// Source returns the text the unit was last built from.
	Source() string
	Imports() []Import
	DisabledBlocks() []ConditionalBlock
	// IncludedFiles returns the files textually included into this unit.
	IncludedFiles() []string
}
