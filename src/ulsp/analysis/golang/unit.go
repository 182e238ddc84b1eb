package golang

import (
	"context"
	"fmt"
	"go/build/constraint"
	"path"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	tsgo "github.com/smacker/go-tree-sitter/golang"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/analysis/syntax"
	ulspprotocol "github.com/uber/project-lsp/src/ulsp/internal/protocol"
	"go.lsp.dev/protocol"
)

type importSpec struct {
	qualifiedName string
	path          string
	rng           protocol.Range
	blank         bool
	dot           bool
}

type decl struct {
	kind string
	rng  protocol.Range
}

// selectorUse is a pkg.Name reference.
type selectorUse struct {
	qualifier string
	name      string
	rng       protocol.Range
}

type unit struct {
	p    *project
	path string
	kind analysis.UnitKind

	// parsed is cleared when the file's own text changes.
	parsed  bool
	source  string
	readErr error
	pkgName string
	specs   []importSpec
	decls   map[string]decl
	// selectors lists every qualifier.Name reference, whether or not the qualifier is an import.
	selectors []selectorUse
	syntax    []analysis.Problem
	disabled  []analysis.ConditionalBlock

	// checked is cleared whenever any file of the project changes.
	checked  bool
	problems []analysis.Problem
}

func (u *unit) Path() string { return u.path }

func (u *unit) Kind() analysis.UnitKind { return u.kind }

func (u *unit) Source() string { return u.source }

func (u *unit) IncludedFiles() []string { return nil }

func (u *unit) DisabledBlocks() []analysis.ConditionalBlock {
	u.parse()
	return u.disabled
}

func (u *unit) Imports() []analysis.Import {
	u.parse()
	result := make([]analysis.Import, 0, len(u.specs))
	for _, s := range u.specs {
		result = append(result, analysis.Import{QualifiedName: s.qualifiedName, Path: s.path, Range: s.rng})
	}
	return result
}

func (u *unit) importNamed(name string) (importSpec, bool) {
	for _, s := range u.specs {
		if s.qualifiedName == name && !s.blank && !s.dot {
			return s, true
		}
	}
	return importSpec{}, false
}

// WaitForBuild parses the unit, resolves its imports and checks its qualified references.
func (u *unit) WaitForBuild(ctx context.Context) ([]analysis.Problem, error) {
	if u.p.disposed {
		return nil, analysis.ErrDisposed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if u.kind == analysis.UnitCompiled {
		return nil, nil
	}
	u.parse()
	if u.readErr != nil {
		return nil, u.readErr
	}
	if u.checked {
		return u.problems, nil
	}

	problems := append([]analysis.Problem(nil), u.syntax...)
	resolved := make(map[string]target, len(u.specs))
	for _, s := range u.specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := u.p.resolve(s.path)
		if t.kind == targetUnresolved {
			problems = append(problems, u.problem(s.rng, "unresolved-import", fmt.Sprintf("could not import %s (no package found)", s.path)))
			continue
		}
		resolved[s.qualifiedName] = t
	}

	for _, sel := range u.selectors {
		spec, ok := u.importNamed(sel.qualifier)
		if !ok {
			continue
		}
		t, ok := resolved[spec.qualifiedName]
		if !ok || t.kind != targetSource {
			continue
		}
		if !isExported(sel.name) {
			problems = append(problems, u.problem(sel.rng, "unexported-name", fmt.Sprintf("name %s not exported by package %s", sel.name, spec.qualifiedName)))
			continue
		}
		if _, ok := u.p.packageDecl(t.path, sel.name); !ok {
			problems = append(problems, u.problem(sel.rng, "undeclared-name", fmt.Sprintf("undefined: %s.%s", sel.qualifier, sel.name)))
		}
	}

	u.problems = problems
	u.checked = true
	return problems, nil
}

func (u *unit) problem(rng protocol.Range, code, msg string) analysis.Problem {
	return analysis.Problem{
		Path:     u.path,
		Range:    rng,
		Severity: protocol.DiagnosticSeverityError,
		Code:     code,
		Message:  msg,
	}
}

// packageDecl looks up a top-level name across the files of dir.
func (p *project) packageDecl(dir, name string) (*unit, bool) {
	for _, f := range p.packageFiles(dir) {
		dep := p.getOrCreate(f)
		dep.parse()
		if _, ok := dep.decls[name]; ok {
			return dep, true
		}
	}
	return nil, false
}

// parse reads the unit's text and extracts everything later checks need.
func (u *unit) parse() {
	if u.parsed || u.kind == analysis.UnitCompiled {
		return
	}
	u.parsed = true
	u.checked = false
	u.pkgName, u.specs, u.selectors, u.syntax, u.disabled = "", nil, nil, nil, nil
	u.decls = make(map[string]decl)

	text, err := u.p.src.ReadSource(u.path)
	u.source, u.readErr = text, err
	if err != nil {
		return
	}

	src := []byte(text)
	tree, err := parseGo(src)
	if err != nil {
		u.readErr = err
		return
	}
	defer tree.Close()

	mapper := ulspprotocol.NewTextOffsetMapper(src)
	rangeOf := func(n *sitter.Node) protocol.Range {
		rng, err := mapper.OffsetRange(int(n.StartByte()), int(n.EndByte()))
		if err != nil {
			pos := mapper.PointPosition(int(n.StartPoint().Row), int(n.StartPoint().Column))
			return protocol.Range{Start: pos, End: pos}
		}
		return rng
	}

	root := tree.RootNode()
	if root.HasError() {
		u.syntax = syntax.Collect(u.path, src, root)
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(i)
		switch n.Type() {
		case "comment":
			if u.pkgName == "" {
				u.applyConstraint(n.Content(src), int(n.EndPoint().Row)+1, mapper)
			}
		case "package_clause":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				if c := n.NamedChild(j); c.Type() == "package_identifier" {
					u.pkgName = c.Content(src)
				}
			}
		case "import_declaration":
			forEachSpec(n, "import_spec", func(spec *sitter.Node) {
				u.addImport(spec, src, rangeOf)
			})
		case "function_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				u.decls[name.Content(src)] = decl{kind: "func", rng: rangeOf(name)}
			}
		case "type_declaration":
			for j := 0; j < int(n.NamedChildCount()); j++ {
				c := n.NamedChild(j)
				if name := c.ChildByFieldName("name"); name != nil {
					u.decls[name.Content(src)] = decl{kind: "type", rng: rangeOf(name)}
				}
			}
		case "var_declaration", "const_declaration":
			kind := strings.TrimSuffix(n.Type(), "_declaration")
			forEachSpec(n, kind+"_spec", func(spec *sitter.Node) {
				for j := 0; j < int(spec.NamedChildCount()); j++ {
					c := spec.NamedChild(j)
					if c.Type() != "identifier" {
						break
					}
					u.decls[c.Content(src)] = decl{kind: kind, rng: rangeOf(c)}
				}
			})
		}
	}

	walk(root, func(n *sitter.Node) {
		var qual, name *sitter.Node
		switch n.Type() {
		case "selector_expression":
			qual, name = n.ChildByFieldName("operand"), n.ChildByFieldName("field")
		case "qualified_type":
			qual, name = n.ChildByFieldName("package"), n.ChildByFieldName("name")
		default:
			return
		}
		if qual == nil || name == nil {
			return
		}
		if t := qual.Type(); t != "identifier" && t != "package_identifier" {
			return
		}
		u.selectors = append(u.selectors, selectorUse{qualifier: qual.Content(src), name: name.Content(src), rng: rangeOf(name)})
	})
}

func (u *unit) addImport(spec *sitter.Node, src []byte, rangeOf func(*sitter.Node) protocol.Range) {
	pathNode := spec.ChildByFieldName("path")
	if pathNode == nil {
		return
	}
	importPath, err := strconv.Unquote(pathNode.Content(src))
	if err != nil {
		return
	}
	s := importSpec{path: importPath, qualifiedName: path.Base(importPath), rng: rangeOf(pathNode)}
	if name := spec.ChildByFieldName("name"); name != nil {
		s.qualifiedName = name.Content(src)
		s.blank = name.Type() == "blank_identifier"
		s.dot = name.Type() == "dot"
	}
	u.specs = append(u.specs, s)
}

// applyConstraint disables the whole file below a //go:build line the defines do not satisfy.
func (u *unit) applyConstraint(comment string, fromLine int, mapper *ulspprotocol.TextOffsetMapper) {
	if !constraint.IsGoBuild(comment) {
		return
	}
	expr, err := constraint.Parse(comment)
	if err != nil {
		return
	}
	defines := u.p.opts.Defines
	if expr.Eval(func(tag string) bool { return defines[tag] }) {
		return
	}
	u.disabled = append(u.disabled, analysis.ConditionalBlock{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(fromLine)},
			End:   mapper.EndPosition(),
		},
		Condition: expr.String(),
	})
}

func parseGo(src []byte) (*sitter.Tree, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(tsgo.GetLanguage())
	return parser.ParseCtx(context.Background(), nil, src)
}

// forEachSpec calls fn for every child of the given type, looking through spec lists.
func forEachSpec(n *sitter.Node, specType string, fn func(*sitter.Node)) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch {
		case c.Type() == specType:
			fn(c)
		case strings.HasSuffix(c.Type(), "_spec_list"):
			forEachSpec(c, specType, fn)
		}
	}
}

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func isExported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
