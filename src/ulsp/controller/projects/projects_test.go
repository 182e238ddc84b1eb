package projects

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/analysis/analysistest"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher/watchermock"
	"github.com/uber/project-lsp/src/ulsp/internal/errors"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fixture struct {
	registry Registry
	engine   *analysistest.Engine
	overlay  overlay.Overlay
	watcher  *watchermock.MockWatcher
	scope    tally.TestScope
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	provider, err := config.NewStaticProvider(map[string]any{"maxFileSizeBytes": 1 << 20})
	require.NoError(t, err)

	logger := zap.NewNop().Sugar()
	o, err := overlay.New(overlay.Params{
		Config: provider,
		FS:     fs.New(),
		Logger: logger,
		Stats:  tally.NewTestScope("", nil),
	})
	require.NoError(t, err)

	w := watchermock.NewMockWatcher(ctrl)
	w.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	w.EXPECT().Unwatch(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	f := &fixture{
		engine:  analysistest.NewEngine(),
		overlay: o,
		watcher: w,
		scope:   tally.NewTestScope("testing", nil),
	}
	f.registry = New(Params{
		Engine:  f.engine,
		Overlay: o,
		Factory: projectconfig.NewFactory(projectconfig.Config{}, fs.New(), logger),
		Watcher: w,
		Logger:  logger,
		Stats:   f.scope,
	})
	return f
}

func writeFile(t *testing.T, path, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// newApplication creates a root with a valid application configuration.
func newApplication(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "project.yaml"), "sourcePaths: [src]\nentryFiles: [src/main.go]\n")
	writeFile(t, filepath.Join(root, "src", "main.go"), "def main\n")
	return root
}

func TestAddRemoveRoot(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := newApplication(t)

	added, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)
	assert.True(t, added)
	added, err = f.registry.AddRoot(ctx, root)
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{root}, f.registry.Roots())
	assert.True(t, f.registry.HasRoot(root))
	assert.Equal(t, float64(1), f.scope.Snapshot().Gauges()["testing.projects.roots+"].Value())

	res, err := f.registry.ResolveProject(ctx, root)
	require.NoError(t, err)
	require.False(t, res.Broken())

	require.NoError(t, f.registry.RemoveRoot(ctx, root))
	assert.False(t, f.registry.HasRoot(root))
	assert.Equal(t, 1, f.engine.Disposed())
	assert.Equal(t, float64(0), f.scope.Snapshot().Gauges()["testing.projects.roots+"].Value())

	var notFound *errors.RootNotFoundError
	assert.ErrorAs(t, f.registry.RemoveRoot(ctx, root), &notFound)
	_, err = f.registry.ResolveProject(ctx, root)
	assert.ErrorAs(t, err, &notFound)
}

func TestResolveProject(t *testing.T) {
	ctx := context.Background()

	t.Run("creates once and reuses", func(t *testing.T) {
		f := newFixture(t)
		root := newApplication(t)
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		first, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		require.False(t, first.Broken())
		assert.Equal(t, analysis.KindApplication, first.Options.Kind)
		assert.Empty(t, first.Problems)

		second, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Same(t, first.Project, second.Project)
		assert.Equal(t, 1, f.engine.Created())
	})

	t.Run("recreates when forced", func(t *testing.T) {
		f := newFixture(t)
		root := newApplication(t)
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		first, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)

		f.registry.ForceChanged(root)
		second, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.NotSame(t, first.Project, second.Project)
		assert.Equal(t, 2, f.engine.Created())
		assert.Equal(t, 1, f.engine.Disposed())
	})

	t.Run("settings change marks every root changed", func(t *testing.T) {
		f := newFixture(t)
		root := newApplication(t)
		sdk := t.TempDir()
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)
		_, err = f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)

		f.registry.HandleSettingsChanged(projectconfig.Settings{SDKPath: sdk})
		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, sdk, res.Options.SDKPath)
		assert.Equal(t, 2, f.engine.Created())
	})

	t.Run("missing configuration without open files", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, res.Broken())
		assert.Nil(t, res.Options)
		assert.Empty(t, res.Problems)
		assert.Equal(t, 0, f.engine.Created())
		assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.projects.configuration_errors+"].Value())
	})

	t.Run("missing configuration reports on the first open file", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		open := filepath.Join(root, "b.go")
		require.NoError(t, f.overlay.Open(uuid.Must(uuid.NewV4()), open, "def b\n", 1))
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, res.Broken())
		require.Len(t, res.Problems[mapper.PathToURI(open)], 1)
		assert.Equal(t, ConfigurationCode, res.Problems[mapper.PathToURI(open)][0].Code)

		// A broken root is evaluated again on every call.
		writeFile(t, filepath.Join(root, "project.yaml"), "entryFiles: [b.go]\n")
		res, err = f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.False(t, res.Broken())
		assert.Empty(t, res.Problems)
	})

	t.Run("malformed configuration reports on the file", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		configFile := filepath.Join(root, "project.yaml")
		writeFile(t, configFile, "kind: plugin\n")
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, res.Broken())
		diags := res.Problems[mapper.PathToURI(configFile)]
		require.Len(t, diags, 1)
		assert.Equal(t, protocol.DiagnosticSeverityError, diags[0].Severity)
		assert.Contains(t, diags[0].Message, "plugin")
	})

	t.Run("library without output", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		configFile := filepath.Join(root, "project.yaml")
		writeFile(t, configFile, "kind: library\n")
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, res.Broken())
		require.NotNil(t, res.Options)
		assert.Len(t, res.Problems[mapper.PathToURI(configFile)], 1)
		assert.Equal(t, 1, f.engine.Created())
		assert.Equal(t, 1, f.engine.Disposed())
	})

	t.Run("application with missing entry files", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		configFile := filepath.Join(root, "project.yaml")
		writeFile(t, configFile, "entryFiles: [missing.go]\n")
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, res.Broken())
		diags := res.Problems[mapper.PathToURI(configFile)]
		require.Len(t, diags, 1)
		assert.Contains(t, diags[0].Message, "missing.go")
	})

	t.Run("engine configuration problems", func(t *testing.T) {
		f := newFixture(t)
		root := newApplication(t)
		main := filepath.Join(root, "src", "main.go")
		f.engine.ConfigProblems = []analysis.Problem{
			{Severity: protocol.DiagnosticSeverityWarning, Message: "deprecated option"},
			{Path: main, Message: "entry problem"},
		}
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.False(t, res.Broken())
		assert.Len(t, res.Problems[mapper.PathToURI(filepath.Join(root, "project.yaml"))], 1)
		assert.Len(t, res.Problems[mapper.PathToURI(main)], 1)

		// Reused until a full check has published them.
		again, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, res.Problems, again.Problems)
		assert.Equal(t, res.Generation, again.Generation)

		// A publish of an older generation does not count.
		f.registry.ConfigurationPublished(root, res.Generation-1)
		again, err = f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Equal(t, res.Problems, again.Problems)

		f.registry.ConfigurationPublished(root, res.Generation)
		again, err = f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Same(t, res.Project, again.Project)
		assert.Empty(t, again.Problems)
		assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.projects.configuration_problems_cleared+"].Value())

		// A new project reports them again.
		f.registry.ForceChanged(root)
		rebuilt, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.Greater(t, rebuilt.Generation, res.Generation)
		assert.Len(t, rebuilt.Problems[mapper.PathToURI(main)], 1)
	})

	t.Run("broken configuration keeps its problems", func(t *testing.T) {
		f := newFixture(t)
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "project.yaml"), "kind: library\n")
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		res, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		require.True(t, res.Broken())
		f.registry.ConfigurationPublished(root, res.Generation)

		again, err := f.registry.ResolveProject(ctx, root)
		require.NoError(t, err)
		assert.True(t, again.Broken())
		assert.Equal(t, res.Problems, again.Problems)
	})

	t.Run("canceled context", func(t *testing.T) {
		f := newFixture(t)
		root := newApplication(t)
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)

		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err = f.registry.ResolveProject(canceled, root)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, f.engine.Created())
	})
}

func TestResolveWatchesProjectDirectories(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	root := newApplication(t)
	logger := zap.NewNop().Sugar()

	provider, err := config.NewStaticProvider(map[string]any{"maxFileSizeBytes": 1024})
	require.NoError(t, err)
	o, err := overlay.New(overlay.Params{Config: provider, FS: fs.New(), Logger: logger, Stats: tally.NewTestScope("", nil)})
	require.NoError(t, err)

	w := watchermock.NewMockWatcher(ctrl)
	gomock.InOrder(
		w.EXPECT().Watch(gomock.Any(), root, []watcher.Target{{Path: root}}).Return(nil),
		w.EXPECT().Watch(gomock.Any(), root, []watcher.Target{
			{Path: root},
			{Path: filepath.Join(root, "src"), Recursive: true},
		}).Return(nil),
	)

	r := New(Params{
		Engine:  analysistest.NewEngine(),
		Overlay: o,
		Factory: projectconfig.NewFactory(projectconfig.Config{}, fs.New(), logger),
		Watcher: w,
		Logger:  logger,
		Stats:   tally.NewTestScope("testing", nil),
	})
	_, err = r.AddRoot(ctx, root)
	require.NoError(t, err)
	_, err = r.ResolveProject(ctx, root)
	require.NoError(t, err)
}

func TestRootsForPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for _, root := range []string{"/ws", "/ws/nested", "/other"} {
		_, err := f.registry.AddRoot(ctx, root)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"/ws/nested", "/ws"}, f.registry.RootsForPath("/ws/nested/a.go"))
	assert.Equal(t, []string{"/ws"}, f.registry.RootsForPath("/ws/nestedx/a.go"))
	assert.Empty(t, f.registry.RootsForPath("/elsewhere/a.go"))
}

func TestRootsReferencing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "project.yaml"), "libraryPaths: [lib]\nentryFiles: [main.go]\n")
	writeFile(t, filepath.Join(root, "main.go"), "import dep\n")
	_, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)

	// Nothing is known before the options are evaluated.
	assert.Empty(t, f.registry.RootsReferencing(filepath.Join(root, "lib", "dep.a")))

	_, err = f.registry.ResolveProject(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{root}, f.registry.RootsReferencing(filepath.Join(root, "lib", "dep.a")))
	assert.Empty(t, f.registry.RootsReferencing(filepath.Join(root, "other", "dep.a")))
}

func TestClassify(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, ClassConfig, f.registry.Classify("/ws/project.yaml"))
	assert.Equal(t, ClassArchive, f.registry.Classify("/ws/lib/dep.a"))
	assert.Equal(t, ClassSource, f.registry.Classify("/ws/main.go"))
	assert.Equal(t, ClassOther, f.registry.Classify("/ws/README.md"))
	assert.Equal(t, "project.yaml", f.registry.ConfigFileName())
}

func TestEnsureBuiltForRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := newApplication(t)
	main := filepath.Join(root, "src", "main.go")
	_, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)

	var built string
	require.NoError(t, f.registry.EnsureBuiltForRead(ctx, main, func(project analysis.Project, unit analysis.Unit) error {
		built = unit.Source()
		return nil
	}))
	assert.Equal(t, "def main\n", built)
	assert.Equal(t, 1, f.engine.Projects()[0].Builds(main))

	var notFound *errors.RootNotFoundError
	assert.ErrorAs(t, f.registry.EnsureBuiltForRead(ctx, "/elsewhere/a.go", func(analysis.Project, analysis.Unit) error {
		return nil
	}), &notFound)
}

func TestEnsureBuiltForReadBrokenProject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := t.TempDir()
	_, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)

	called := false
	err = f.registry.EnsureBuiltForRead(ctx, filepath.Join(root, "a.go"), func(analysis.Project, analysis.Unit) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrProjectBroken)
	assert.False(t, called)
}

func TestIncludesAndOutsideSourcePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := newApplication(t)
	_, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)

	f.registry.ReplaceIncludes(root, map[string]string{"/inc.go": "/main.go"})
	parent, ok := f.registry.IncludeParent(root, "/inc.go")
	assert.True(t, ok)
	assert.Equal(t, "/main.go", parent)

	f.registry.ReplaceOutsideSourcePath(root, []string{"/stray.go"})
	assert.True(t, f.registry.IsOutsideSourcePath(root, "/stray.go"))
	assert.False(t, f.registry.IsOutsideSourcePath(root, "/main.go"))

	// Recreating the project drops state derived from the previous one.
	f.registry.ForceChanged(root)
	_, err = f.registry.ResolveProject(ctx, root)
	require.NoError(t, err)
	_, ok = f.registry.IncludeParent(root, "/inc.go")
	assert.False(t, ok)
	assert.False(t, f.registry.IsOutsideSourcePath(root, "/stray.go"))
}

func TestNotifyFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	root := newApplication(t)
	_, err := f.registry.AddRoot(ctx, root)
	require.NoError(t, err)

	res, err := f.registry.ResolveProject(ctx, root)
	require.NoError(t, err)
	main := filepath.Join(root, "src", "main.go")
	require.NoError(t, f.registry.WithBuildLock(ctx, func() error {
		_, err := res.Project.GetOrCreateUnit(main)
		return err
	}))

	added := filepath.Join(root, "src", "added.go")
	f.registry.NotifyFile(root, main, FileChanged)
	f.registry.NotifyFile(root, added, FileAdded)
	f.registry.NotifyFile(root, filepath.Join(root, "src"), DirectoryRemoved)
	f.registry.NotifyFile("/unknown", main, FileChanged)

	// Nothing reaches the project until it is resolved again.
	project := f.engine.Projects()[0]
	assert.Empty(t, project.Events())

	_, err = f.registry.ResolveProject(ctx, root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"changed:" + main,
		"added:" + added,
		"removed:" + main,
	}, project.Events())
	assert.Equal(t, int64(3), f.scope.Snapshot().Counters()["testing.projects.file_events+"].Value())
}
