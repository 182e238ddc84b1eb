package overlay

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	ulsperrors "github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/zap"
)

func newOverlay(t *testing.T, maxSize int64) (Overlay, tally.TestScope) {
	cfg, err := config.NewStaticProvider(map[string]interface{}{
		_maxFileSizeKey: maxSize,
	})
	require.NoError(t, err)
	scope := tally.NewTestScope("", nil)
	o, err := New(Params{
		Config: cfg,
		FS:     fs.New(),
		Logger: zap.NewNop().Sugar(),
		Stats:  scope,
	})
	require.NoError(t, err)
	return o, scope
}

func TestNew(t *testing.T) {
	cfg, err := config.NewStaticProvider(map[string]interface{}{})
	require.NoError(t, err)
	_, err = New(Params{Config: cfg, FS: fs.New(), Logger: zap.NewNop().Sugar(), Stats: tally.NewTestScope("", nil)})
	assert.Error(t, err)
}

func TestOpenChangeClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "A.as")
	require.NoError(t, os.WriteFile(path, []byte("on disk"), 0644))

	o, scope := newOverlay(t, 1024)
	s := uuid.Must(uuid.NewV4())

	text, err := o.ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "on disk", text)

	require.NoError(t, o.Open(s, path, "import B\n", 1))
	assert.True(t, o.IsOpen(path))
	text, err = o.ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "import B\n", text)
	assert.Equal(t, float64(1), scope.Snapshot().Gauges()["overlay.open_docs+"].Value())

	require.NoError(t, o.Change(path, 2, []protocol.TextDocumentContentChangeEvent{
		{Range: rng(1, 0, 1, 0), Text: "B.run\n"},
	}))
	text, err = o.ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "import B\nB.run\n", text)
	v, ok := o.Version(path)
	assert.True(t, ok)
	assert.Equal(t, int32(2), v)

	assert.True(t, o.Close(s, path))
	assert.False(t, o.IsOpen(path))
	text, err = o.ReadSource(path)
	require.NoError(t, err)
	assert.Equal(t, "on disk", text)
}

func TestChangeErrors(t *testing.T) {
	o, _ := newOverlay(t, 10)
	s := uuid.Must(uuid.NewV4())

	var notFound *ulsperrors.DocumentNotFoundError
	assert.ErrorAs(t, o.Change("/a", 1, nil), &notFound)

	require.NoError(t, o.Open(s, "/a", "abc", 5))

	var outdated *ulsperrors.DocumentOutdatedError
	assert.ErrorAs(t, o.Change("/a", 4, []protocol.TextDocumentContentChangeEvent{{Text: "x"}}), &outdated)

	var tooLarge *ulsperrors.DocumentSizeLimitError
	assert.ErrorAs(t, o.Change("/a", 6, []protocol.TextDocumentContentChangeEvent{{Text: "01234567890"}}), &tooLarge)
	assert.False(t, o.IsOpen("/a"))

	assert.ErrorAs(t, o.Open(s, "/b", "01234567890", 1), &tooLarge)
	assert.False(t, o.IsOpen("/b"))
}

func TestSharedAcrossSessions(t *testing.T) {
	o, _ := newOverlay(t, 1024)
	s1 := uuid.Must(uuid.NewV4())
	s2 := uuid.Must(uuid.NewV4())

	require.NoError(t, o.Open(s1, "/a", "one", 1))
	require.NoError(t, o.Open(s2, "/a", "two", 1))
	require.NoError(t, o.Open(s2, "/b", "b", 1))

	assert.False(t, o.Close(s1, "/a"))
	assert.True(t, o.IsOpen("/a"))
	assert.Equal(t, []string{"/a", "/b"}, o.OpenPaths())

	assert.Equal(t, []string{"/a", "/b"}, o.EndSession(s2))
	assert.Empty(t, o.OpenPaths())
}

func TestSave(t *testing.T) {
	o, _ := newOverlay(t, 1024)
	s := uuid.Must(uuid.NewV4())

	var notFound *ulsperrors.DocumentNotFoundError
	assert.ErrorAs(t, o.Save("/a", nil), &notFound)

	require.NoError(t, o.Open(s, "/a", "one", 1))
	require.NoError(t, o.Save("/a", nil))
	saved := "saved"
	require.NoError(t, o.Save("/a", &saved))
	text, err := o.ReadSource("/a")
	require.NoError(t, err)
	assert.Equal(t, "saved", text)
}

func TestPositionMapperFollowsEdits(t *testing.T) {
	o, _ := newOverlay(t, 1024)
	s := uuid.Must(uuid.NewV4())
	require.NoError(t, o.Open(s, "/a", "import B\n", 1))

	base, err := o.ReadSource("/a")
	require.NoError(t, err)

	m, err := o.PositionMapper("/a", base)
	require.NoError(t, err)
	got, err := m.MapBasePositionToCurrent(pos(0, 7))
	require.NoError(t, err)
	assert.Equal(t, pos(0, 7), got)

	require.NoError(t, o.Change("/a", 2, []protocol.TextDocumentContentChangeEvent{{Range: rng(0, 0, 0, 0), Text: "\n"}}))
	m, err = o.PositionMapper("/a", base)
	require.NoError(t, err)
	got, err = m.MapBasePositionToCurrent(pos(0, 7))
	require.NoError(t, err)
	assert.Equal(t, pos(1, 7), got)
}

func TestPositionMapperForClosedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a")
	require.NoError(t, os.WriteFile(path, []byte("x\ny"), 0644))

	o, _ := newOverlay(t, 1024)
	m, err := o.PositionMapper(path, "y")
	require.NoError(t, err)
	got, err := m.MapBasePositionToCurrent(pos(0, 0))
	require.NoError(t, err)
	assert.Equal(t, pos(1, 0), got)

	_, err = o.PositionMapper(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
}
