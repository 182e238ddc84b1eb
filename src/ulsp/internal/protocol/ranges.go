package protocol

import (
	"go.lsp.dev/protocol"
)

// OffsetRange converts a half-open byte range to a protocol (UTF-16) range.
func (m *TextOffsetMapper) OffsetRange(start, end int) (protocol.Range, error) {
	s, err := m.OffsetPosition(start)
	if err != nil {
		return protocol.Range{}, err
	}
	e, err := m.OffsetPosition(end)
	if err != nil {
		return protocol.Range{}, err
	}
	return protocol.Range{Start: s, End: e}, nil
}

// PointPosition converts a zero-based row and byte column, as reported by parsers, to a protocol position.
// Columns past the end of the line are clamped to the line end.
func (m *TextOffsetMapper) PointPosition(row, byteColumn int) protocol.Position {
	m.initLines()
	if row >= len(m.lineStart) {
		pos, _ := m.OffsetPosition(len(m.Content))
		return pos
	}
	offset := m.lineStart[row] + byteColumn
	if offset > len(m.Content) {
		offset = len(m.Content)
	}
	pos, _ := m.OffsetPosition(offset)
	return pos
}

// EndPosition returns the position just past the last character of the content.
func (m *TextOffsetMapper) EndPosition() protocol.Position {
	pos, _ := m.OffsetPosition(len(m.Content))
	return pos
}
