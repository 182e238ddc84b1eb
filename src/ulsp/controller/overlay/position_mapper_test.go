package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func pos(line, char uint32) protocol.Position {
	return protocol.Position{Line: line, Character: char}
}

func TestNewPositionMapper(t *testing.T) {
	tests := []struct {
		name         string
		base         string
		current      string
		wantModified bool
	}{
		{name: "identical texts", base: "Hello\nWorld", current: "Hello\nWorld"},
		{name: "different texts", base: "Hello\nWorld", current: "Hello\nNew World", wantModified: true},
		{name: "empty to non-empty", base: "", current: "Hello world", wantModified: true},
		{name: "non-empty to empty", base: "Hello world", current: "", wantModified: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			m := NewPositionMapper(tt.base, tt.current)
			assert.Equal(t, tt.wantModified, m.(*textPositionMapper).modified)
		})
	}

	t.Run("uninitialized mapper", func(t *testing.T) {
		m := &textPositionMapper{modified: true}
		_, _, err := m.MapCurrentPositionToBase(pos(0, 0))
		assert.ErrorContains(t, err, "position mapper not initialized")
	})
}

func TestMapBasePositionToCurrent(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		current string
		in      protocol.Position
		want    protocol.Position
		wantErr bool
	}{
		{
			name:    "line inserted above",
			base:    "import B\nerror x\n",
			current: "// header\nimport B\nerror x\n",
			in:      pos(1, 2),
			want:    pos(2, 2),
		},
		{
			name:    "text inserted before on same line",
			base:    "import B\n",
			current: "import  B\n",
			in:      pos(0, 7),
			want:    pos(0, 8),
		},
		{
			name:    "line removed above",
			base:    "a\nb\nc\n",
			current: "a\nc\n",
			in:      pos(2, 0),
			want:    pos(1, 0),
		},
		{
			name:    "position out of range",
			base:    "a\n",
			current: "b\n",
			in:      pos(9, 0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPositionMapper(tt.base, tt.current).MapBasePositionToCurrent(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMapCurrentPositionToBase(t *testing.T) {
	m := NewPositionMapper("aaa\nccc", "aaa\nbbb\nccc")

	got, isNew, err := m.MapCurrentPositionToBase(pos(1, 1))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, pos(1, 0), got)

	got, isNew, err = m.MapCurrentPositionToBase(pos(2, 2))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, pos(1, 2), got)
}

func TestMapBaseRangeToCurrent(t *testing.T) {
	t.Run("shifted range", func(t *testing.T) {
		m := NewPositionMapper("import B\n", "\nimport B\n")
		got, err := m.MapBaseRangeToCurrent(protocol.Range{Start: pos(0, 7), End: pos(0, 8)})
		require.NoError(t, err)
		assert.Equal(t, protocol.Range{Start: pos(1, 7), End: pos(1, 8)}, got)
	})

	t.Run("deleted range collapses", func(t *testing.T) {
		m := NewPositionMapper("abc def\n", "abc\n")
		got, err := m.MapBaseRangeToCurrent(protocol.Range{Start: pos(0, 4), End: pos(0, 7)})
		require.NoError(t, err)
		assert.Equal(t, got.Start, got.End)
	})
}
