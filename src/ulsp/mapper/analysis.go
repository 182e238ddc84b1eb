package mapper

import (
	"fmt"
	"path/filepath"

	"github.com/uber/project-lsp/src/ulsp/analysis"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// DiagnosticSource is reported as the source of every diagnostic the daemon publishes.
const DiagnosticSource = "project-lsp"

// ProblemToDiagnostic maps an analysis problem to a protocol diagnostic.
func ProblemToDiagnostic(p analysis.Problem) protocol.Diagnostic {
	d := protocol.Diagnostic{
		Range:    p.Range,
		Severity: p.Severity,
		Source:   DiagnosticSource,
		Message:  p.Message,
	}
	if d.Severity == 0 {
		d.Severity = protocol.DiagnosticSeverityError
	}
	if p.Code != "" {
		d.Code = p.Code
	}
	return d
}

// IncludedProblemToDiagnostic maps a problem found in an included file to a diagnostic on the including file.
// The range points at the start of the including file since positions in the included file do not apply there.
func IncludedProblemToDiagnostic(p analysis.Problem) protocol.Diagnostic {
	d := ProblemToDiagnostic(p)
	d.Range = protocol.Range{}
	d.Message = fmt.Sprintf("%s:%d: %s", filepath.Base(p.Path), p.Range.Start.Line+1, p.Message)
	return d
}

// PathToURI maps a canonical file path to a document URI.
func PathToURI(path string) uri.URI {
	return uri.File(path)
}

// URIToPath maps a document URI to a cleaned file path.
func URIToPath(docURI uri.URI) string {
	return filepath.Clean(docURI.Filename())
}
