package overlay

import (
	"errors"

	"github.com/sergi/go-diff/diffmatchpatch"
	protocolmapper "github.com/uber/project-lsp/src/ulsp/internal/protocol"
	"go.lsp.dev/protocol"
)

// PositionMapper maps positions between the text a unit was built from (base) and the text currently in the editor.
type PositionMapper interface {
	// MapCurrentPositionToBase maps a position in the current text to the base text.
	// isNew is true when the position lies in text inserted after the base was read.
	MapCurrentPositionToBase(currentPosition protocol.Position) (basePosition protocol.Position, isNew bool, err error)

	// MapBasePositionToCurrent maps a position in the base text to the current text.
	MapBasePositionToCurrent(basePosition protocol.Position) (currentPosition protocol.Position, err error)

	// MapBaseRangeToCurrent maps both ends of a base range. Ranges whose text was deleted collapse onto the deletion point.
	MapBaseRangeToCurrent(baseRange protocol.Range) (protocol.Range, error)
}

type textPositionMapper struct {
	modified bool
	base     *protocolmapper.TextOffsetMapper
	current  *protocolmapper.TextOffsetMapper
	// forward turns base into current, reverse turns current into base.
	forward []diffmatchpatch.Diff
	reverse []diffmatchpatch.Diff
}

// NewPositionMapper precomputes the diffs between base and current in both directions.
func NewPositionMapper(base, current string) PositionMapper {
	if base == current {
		return &textPositionMapper{modified: false}
	}

	dmp := diffmatchpatch.New()
	return &textPositionMapper{
		modified: true,
		base:     protocolmapper.NewTextOffsetMapper([]byte(base)),
		current:  protocolmapper.NewTextOffsetMapper([]byte(current)),
		forward:  dmp.DiffMain(base, current, false),
		reverse:  dmp.DiffMain(current, base, false),
	}
}

func (m *textPositionMapper) MapCurrentPositionToBase(currentPosition protocol.Position) (protocol.Position, bool, error) {
	return m.mapPosition(currentPosition, true)
}

func (m *textPositionMapper) MapBasePositionToCurrent(position protocol.Position) (protocol.Position, error) {
	pos, _, err := m.mapPosition(position, false)
	return pos, err
}

func (m *textPositionMapper) MapBaseRangeToCurrent(baseRange protocol.Range) (protocol.Range, error) {
	start, err := m.MapBasePositionToCurrent(baseRange.Start)
	if err != nil {
		return baseRange, err
	}
	end, err := m.MapBasePositionToCurrent(baseRange.End)
	if err != nil {
		return baseRange, err
	}
	if end.Line < start.Line || (end.Line == start.Line && end.Character < start.Character) {
		end = start
	}
	return protocol.Range{Start: start, End: end}, nil
}

func (m *textPositionMapper) mapPosition(position protocol.Position, reverse bool) (protocol.Position, bool, error) {
	if !m.modified {
		return position, false, nil
	}
	if m.base == nil || m.current == nil {
		return position, false, errors.New("position mapper not initialized")
	}

	from, to, diffs := m.base, m.current, m.forward
	if reverse {
		from, to, diffs = m.current, m.base, m.reverse
	}

	offset, err := from.PositionOffset(position)
	if err != nil {
		return position, false, err
	}
	shifted, deleted := diffXIndex(diffs, offset)
	result, err := to.OffsetPosition(shifted)
	if err != nil {
		return position, deleted, err
	}
	return result, deleted, nil
}

// diffXIndex is diffmatchpatch's DiffXIndex, additionally reporting whether loc fell inside deleted text.
func diffXIndex(diffs []diffmatchpatch.Diff, loc int) (int, bool) {
	chars1, chars2 := 0, 0
	lastChars1, lastChars2 := 0, 0
	lastDiff := diffmatchpatch.Diff{}
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffInsert {
			chars1 += len(d.Text)
		}
		if d.Type != diffmatchpatch.DiffDelete {
			chars2 += len(d.Text)
		}
		if chars1 > loc {
			lastDiff = d
			break
		}
		lastChars1, lastChars2 = chars1, chars2
	}
	if lastDiff.Type == diffmatchpatch.DiffDelete {
		return lastChars2, true
	}
	return lastChars2 + (loc - lastChars1), false
}
