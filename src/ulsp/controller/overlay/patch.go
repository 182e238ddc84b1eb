package overlay

import (
	"fmt"
	"strings"

	protocolmapper "github.com/uber/project-lsp/src/ulsp/internal/protocol"
	"go.lsp.dev/protocol"
)

// applyChanges applies content changes in order. A change without a range replaces the whole text.
func applyChanges(text string, changes []protocol.TextDocumentContentChangeEvent) (string, error) {
	for i, change := range changes {
		if change.Range == nil {
			text = change.Text
			continue
		}

		m := protocolmapper.NewTextOffsetMapper([]byte(text))
		start, err := m.PositionOffset(change.Range.Start)
		if err != nil {
			return "", fmt.Errorf("change %d start: %w", i, err)
		}
		end, err := m.PositionOffset(change.Range.End)
		if err != nil {
			return "", fmt.Errorf("change %d end: %w", i, err)
		}
		if end < start {
			return "", fmt.Errorf("change %d: end %d precedes start %d", i, end, start)
		}

		var b strings.Builder
		b.Grow(len(text) - (end - start) + len(change.Text))
		b.WriteString(text[:start])
		b.WriteString(change.Text)
		b.WriteString(text[end:])
		text = b.String()
	}
	return text, nil
}
