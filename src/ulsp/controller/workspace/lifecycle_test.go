package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis/analysistest"
	"github.com/uber/project-lsp/src/ulsp/controller/checker"
	"github.com/uber/project-lsp/src/ulsp/controller/diagnostics"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher/watchermock"
	"github.com/uber/project-lsp/src/ulsp/entity"
	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	"github.com/uber/project-lsp/src/ulsp/gateway/ide-client/ideclientmock"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"github.com/uber/project-lsp/src/ulsp/repository/session/repositorymock"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

// editorView keeps the diagnostics last published to the editor for every document.
type editorView struct {
	mu    sync.Mutex
	diags map[uri.URI][]protocol.Diagnostic
}

func (v *editorView) publish(_ context.Context, params *protocol.PublishDiagnosticsParams) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.diags[params.URI] = params.Diagnostics
	return nil
}

func (v *editorView) codes(docURI uri.URI) []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	result := []string{}
	for _, d := range v.diags[docURI] {
		code, _ := d.Code.(string)
		result = append(result, code)
	}
	return result
}

// stack wires the real overlay, registry, checker and tracker behind the workspace plugin.
type stack struct {
	root     string
	methods  *ulspplugin.Methods
	c        Controller
	engine   *analysistest.Engine
	executor interface{ Wait() }
	view     *editorView
	ctx      context.Context
}

func newStack(t *testing.T, files map[string]string) *stack {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	provider, err := config.NewStaticProvider(map[string]any{
		"maxFileSizeBytes": 1 << 20,
		"checker":          map[string]any{"buildTimeoutSeconds": 30},
	})
	require.NoError(t, err)
	logger := zap.NewNop().Sugar()

	s := &entity.Session{UUID: uuid.Must(uuid.NewV4()), WorkspaceFolders: []string{root}}
	sessions := repositorymock.NewMockRepository(ctrl)
	sessions.EXPECT().GetFromContext(gomock.Any()).Return(s, nil).AnyTimes()
	sessions.EXPECT().GetAllFromWorkspaceRoot(gomock.Any(), root).Return([]*entity.Session{s}, nil).AnyTimes()

	view := &editorView{diags: make(map[uri.URI][]protocol.Diagnostic)}
	gateway := ideclientmock.NewMockGateway(ctrl)
	gateway.EXPECT().PublishDiagnostics(gomock.Any(), gomock.Any()).DoAndReturn(view.publish).AnyTimes()

	w := watchermock.NewMockWatcher(ctrl)
	w.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	w.EXPECT().Subscribe(gomock.Any())

	o, err := overlay.New(overlay.Params{Config: provider, FS: fs.New(), Logger: logger, Stats: tally.NoopScope})
	require.NoError(t, err)
	engine := analysistest.NewEngine()
	registry := projects.New(projects.Params{
		Engine:  engine,
		Overlay: o,
		Factory: projectconfig.NewFactory(projectconfig.Config{}, fs.New(), logger),
		Watcher: w,
		Logger:  logger,
		Stats:   tally.NoopScope,
	})
	_, err = registry.AddRoot(context.Background(), root)
	require.NoError(t, err)

	tracker := diagnostics.New(diagnostics.Params{Sessions: sessions, IdeGateway: gateway, Logger: logger, Stats: tally.NoopScope})
	exec := executor.NewExecutor(executor.WithConcurrency(2))
	chk, err := checker.New(checker.Params{
		Config:   provider,
		Registry: registry,
		Overlay:  o,
		Tracker:  tracker,
		Executor: exec,
		Logger:   logger,
		Stats:    tally.NoopScope,
	})
	require.NoError(t, err)

	c := New(Params{
		Sessions:   sessions,
		IdeGateway: gateway,
		Registry:   registry,
		Checker:    chk,
		Overlay:    o,
		Tracker:    tracker,
		Watcher:    w,
		FS:         fs.New(),
		Logger:     logger,
		Stats:      tally.NoopScope,
	})
	info, err := c.StartupInfo(context.Background())
	require.NoError(t, err)

	return &stack{
		root:     root,
		methods:  info.Methods,
		c:        c,
		engine:   engine,
		executor: exec,
		view:     view,
		ctx:      context.WithValue(context.Background(), entity.SessionContextKey, s.UUID),
	}
}

func TestEditSaveDeleteWhileOpen(t *testing.T) {
	st := newStack(t, map[string]string{
		"project.yaml": "sourcePaths: [src]\nentryFiles: [src/a.go]\n",
		"src/a.go":     "def a\n",
	})
	path := filepath.Join(st.root, "src", "a.go")
	docURI := mapper.PathToURI(path)

	require.NoError(t, st.methods.DidOpen(st.ctx, &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: docURI, Version: 1, Text: "def a\n"},
	}))
	st.executor.Wait()
	assert.Empty(t, st.view.codes(docURI))

	// Editing only runs the quick path, which skips unused imports.
	require.NoError(t, st.methods.DidChange(st.ctx, &protocol.DidChangeTextDocumentParams{
		TextDocument:   protocol.VersionedTextDocumentIdentifier{TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: docURI}, Version: 2},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: "import missing\n"}},
	}))
	st.executor.Wait()
	assert.Equal(t, []string{"unresolved-import"}, st.view.codes(docURI))

	require.NoError(t, st.methods.DidSave(st.ctx, &protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: docURI},
	}))
	st.executor.Wait()
	assert.ElementsMatch(t, []string{"unresolved-import", "unused-import"}, st.view.codes(docURI))

	// The file disappears from disk but stays open in the editor.
	require.NoError(t, os.Remove(path))
	require.NoError(t, st.c.HandleWatchedFileEvents(context.Background(), []protocol.FileEvent{
		{URI: docURI, Type: protocol.FileChangeTypeDeleted},
	}))
	st.executor.Wait()
	assert.ElementsMatch(t, []string{"unresolved-import", "unused-import"}, st.view.codes(docURI))

	projectsCreated := st.engine.Projects()
	require.Len(t, projectsCreated, 1)
	assert.Contains(t, projectsCreated[0].Events(), "removed:"+path)
	assert.Contains(t, projectsCreated[0].Events(), "added:"+path)
	assert.Equal(t, "import missing\n", projectsCreated[0].FindUnit(path).Source())
}
