// Package syntax checks a single file for parse errors without any project context.
package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/bash"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	ulspprotocol "github.com/uber/project-lsp/src/ulsp/internal/protocol"
	"go.lsp.dev/protocol"
)

const (
	// Source is the diagnostic source of every problem reported here.
	Source = "syntax"

	_maxProblems = 100
)

// DefaultLanguages maps file extensions to grammar names.
var DefaultLanguages = map[string]string{
	".go":   "go",
	".js":   "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".py":   "python",
	".java": "java",
	".kt":   "kotlin",
	".rs":   "rust",
	".sh":   "bash",
}

// Grammar returns the tree-sitter language for a grammar name.
func Grammar(name string) (*sitter.Language, error) {
	switch name {
	case "go":
		return golang.GetLanguage(), nil
	case "javascript":
		return javascript.GetLanguage(), nil
	case "typescript":
		return typescript.GetLanguage(), nil
	case "tsx":
		return tsx.GetLanguage(), nil
	case "python":
		return python.GetLanguage(), nil
	case "java":
		return java.GetLanguage(), nil
	case "kotlin":
		return kotlin.GetLanguage(), nil
	case "rust":
		return rust.GetLanguage(), nil
	case "bash":
		return bash.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported grammar: %s", name)
	}
}

// Checker reports parse errors for files in any configured language.
// It is safe for concurrent use; each check gets its own parser.
type Checker struct {
	languages map[string]*sitter.Language
}

// NewChecker creates a checker for the given extension to grammar mapping.
func NewChecker(languages map[string]string) (*Checker, error) {
	c := &Checker{languages: make(map[string]*sitter.Language, len(languages))}
	for ext, name := range languages {
		lang, err := Grammar(name)
		if err != nil {
			return nil, fmt.Errorf("extension %q: %w", ext, err)
		}
		c.languages[normalizeExt(ext)] = lang
	}
	return c, nil
}

// Supports reports whether the file's extension has a grammar.
func (c *Checker) Supports(path string) bool {
	_, ok := c.languages[normalizeExt(filepath.Ext(path))]
	return ok
}

// Check parses text and returns one problem per error or missing node.
// Files without a grammar produce no problems.
func (c *Checker) Check(ctx context.Context, path string, text string) ([]analysis.Problem, error) {
	lang, ok := c.languages[normalizeExt(filepath.Ext(path))]
	if !ok {
		return nil, nil
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	src := []byte(text)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %q: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil, nil
	}
	return Collect(path, src, root), nil
}

// Collect walks an already parsed tree and reports its error and missing nodes.
func Collect(path string, src []byte, root *sitter.Node) []analysis.Problem {
	mapper := ulspprotocol.NewTextOffsetMapper(src)
	var problems []analysis.Problem

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil || len(problems) >= _maxProblems {
			return
		}
		switch {
		case n.IsMissing():
			problems = append(problems, problemAt(path, mapper, n, fmt.Sprintf("missing %s", n.Type())))
			return
		case n.IsError():
			problems = append(problems, problemAt(path, mapper, n, errorMessage(n, src)))
			return
		case !n.HasError():
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(root)

	return problems
}

func problemAt(path string, mapper *ulspprotocol.TextOffsetMapper, n *sitter.Node, msg string) analysis.Problem {
	rng, err := mapper.OffsetRange(int(n.StartByte()), int(n.EndByte()))
	if err != nil {
		pos := mapper.PointPosition(int(n.StartPoint().Row), int(n.StartPoint().Column))
		rng = protocol.Range{Start: pos, End: pos}
	}
	return analysis.Problem{
		Path:     path,
		Range:    rng,
		Severity: protocol.DiagnosticSeverityError,
		Code:     "syntax-error",
		Message:  msg,
	}
}

func errorMessage(n *sitter.Node, src []byte) string {
	token := strings.TrimSpace(n.Content(src))
	if i := strings.IndexByte(token, '\n'); i >= 0 {
		token = token[:i]
	}
	if token == "" {
		return "syntax error"
	}
	if len(token) > 40 {
		token = token[:40] + "..."
	}
	return fmt.Sprintf("syntax error near %q", token)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
