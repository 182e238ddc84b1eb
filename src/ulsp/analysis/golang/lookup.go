package golang

import (
	"fmt"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	ulspprotocol "github.com/uber/project-lsp/src/ulsp/internal/protocol"
	"go.lsp.dev/protocol"
)

// LookupSymbol resolves the identifier at pos to its top-level declaration.
// Qualified references are looked up in the imported package, plain ones in the unit's own package.
func (p *project) LookupSymbol(au analysis.Unit, pos protocol.Position) (*analysis.Symbol, error) {
	if p.disposed {
		return nil, analysis.ErrDisposed
	}
	u, ok := au.(*unit)
	if !ok || u.p != p {
		return nil, fmt.Errorf("unit %s does not belong to this project", au.Path())
	}
	if u.kind != analysis.UnitSource {
		return nil, nil
	}
	u.parse()
	if u.readErr != nil {
		return nil, u.readErr
	}

	src := []byte(u.source)
	offset, err := ulspprotocol.NewTextOffsetMapper(src).PositionOffset(pos)
	if err != nil {
		return nil, err
	}
	tree, err := parseGo(src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	n := namedNodeAt(tree.RootNode(), uint32(offset))
	if n == nil {
		return nil, nil
	}
	name := n.Content(src)

	if parent := n.Parent(); parent != nil {
		var qual *sitter.Node
		switch {
		case parent.Type() == "selector_expression" && n.Type() == "field_identifier":
			qual = parent.ChildByFieldName("operand")
		case parent.Type() == "qualified_type" && n.Type() == "type_identifier":
			qual = parent.ChildByFieldName("package")
		}
		if qual != nil {
			spec, ok := u.importNamed(qual.Content(src))
			if !ok {
				return nil, nil
			}
			t := p.resolve(spec.path)
			if t.kind != targetSource {
				return nil, nil
			}
			return p.declSymbol(t.path, name), nil
		}
	}

	switch n.Type() {
	case "identifier", "type_identifier", "package_identifier":
	default:
		return nil, nil
	}
	if spec, ok := u.importNamed(name); ok {
		return &analysis.Symbol{Name: name, Detail: fmt.Sprintf("package %s (%q)", name, spec.path), Path: u.path, Range: spec.rng}, nil
	}
	return p.declSymbol(filepath.Dir(u.path), name), nil
}

func (p *project) declSymbol(dir, name string) *analysis.Symbol {
	dep, ok := p.packageDecl(dir, name)
	if !ok {
		return nil
	}
	d := dep.decls[name]
	return &analysis.Symbol{
		Name:   name,
		Detail: fmt.Sprintf("%s %s.%s", d.kind, dep.pkgName, name),
		Path:   dep.path,
		Range:  d.rng,
	}
}

// namedNodeAt returns the innermost named node containing offset.
func namedNodeAt(n *sitter.Node, offset uint32) *sitter.Node {
	for {
		var next *sitter.Node
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.StartByte() <= offset && offset < c.EndByte() {
				next = c
				break
			}
		}
		if next == nil {
			if n.Type() == "source_file" {
				return nil
			}
			return n
		}
		n = next
	}
}
