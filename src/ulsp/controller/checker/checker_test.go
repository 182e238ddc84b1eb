package checker

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/uber/project-lsp/src/ulsp/analysis"
	"github.com/uber/project-lsp/src/ulsp/analysis/analysistest"
	"github.com/uber/project-lsp/src/ulsp/controller/diagnostics/diagnosticsmock"
	"github.com/uber/project-lsp/src/ulsp/controller/overlay"
	"github.com/uber/project-lsp/src/ulsp/controller/projects"
	"github.com/uber/project-lsp/src/ulsp/controller/watcher/watchermock"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/mapper"
	"github.com/uber/project-lsp/src/ulsp/projectconfig"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	root     string
	checker  Checker
	engine   *analysistest.Engine
	overlay  overlay.Overlay
	registry projects.Registry
	tracker  *diagnosticsmock.MockTracker
	executor interface{ Wait() }
	scope    tally.TestScope
	session  uuid.UUID
}

// newFixture creates a checker for an application root whose entry file is src/main.go.
func newFixture(t *testing.T, files map[string]string) *fixture {
	ctrl := gomock.NewController(t)
	root := t.TempDir()
	if _, ok := files["project.yaml"]; !ok {
		files["project.yaml"] = "sourcePaths: [src]\nentryFiles: [src/main.go]\n"
	}
	for name, content := range files {
		if content == "" {
			continue
		}
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
	o, err := overlay.New(overlay.Params{Config: provider, FS: fs.New(), Logger: logger, Stats: tally.NewTestScope("", nil)})
	require.NoError(t, err)

	w := watchermock.NewMockWatcher(ctrl)
	w.EXPECT().Watch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	engine := analysistest.NewEngine()
	registry := projects.New(projects.Params{
		Engine:  engine,
		Overlay: o,
		Factory: projectconfig.NewFactory(projectconfig.Config{}, fs.New(), logger),
		Watcher: w,
		Logger:  logger,
		Stats:   tally.NewTestScope("", nil),
	})
	_, err = registry.AddRoot(context.Background(), root)
	require.NoError(t, err)

	exec := executor.NewExecutor(executor.WithConcurrency(2))
	tracker := diagnosticsmock.NewMockTracker(ctrl)
	scope := tally.NewTestScope("testing", nil)
	c, err := New(Params{
		Config:   provider,
		Registry: registry,
		Overlay:  o,
		Tracker:  tracker,
		Executor: exec,
		Logger:   logger,
		Stats:    scope,
	})
	require.NoError(t, err)

	return &fixture{
		root:     root,
		checker:  c,
		engine:   engine,
		overlay:  o,
		registry: registry,
		tracker:  tracker,
		executor: exec,
		scope:    scope,
		session:  uuid.Must(uuid.NewV4()),
	}
}

func (f *fixture) path(name string) string {
	return filepath.Join(f.root, name)
}

func (f *fixture) open(t *testing.T, name, text string) string {
	path := f.path(name)
	require.NoError(t, f.overlay.Open(f.session, path, text, 1))
	return path
}

// capture records the diagnostics of every matching publish.
func (f *fixture) capture(releaseStale bool) *[]map[uri.URI][]protocol.Diagnostic {
	var (
		mu  sync.Mutex
		got []map[uri.URI][]protocol.Diagnostic
	)
	f.tracker.EXPECT().Publish(gomock.Any(), f.root, gomock.Any(), releaseStale).DoAndReturn(
		func(_ context.Context, _ string, byURI map[uri.URI][]protocol.Diagnostic, _ bool) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, byURI)
			return nil
		}).AnyTimes()
	return &got
}

func codes(diags []protocol.Diagnostic) []string {
	result := make([]string, 0, len(diags))
	for _, d := range diags {
		code, _ := d.Code.(string)
		result = append(result, code)
	}
	return result
}

func TestNew(t *testing.T) {
	provider, err := config.NewStaticProvider(map[string]any{
		"syntax": map[string]any{"languages": map[string]string{".x": "cobol"}},
	})
	require.NoError(t, err)

	_, err = New(Params{Config: provider, Logger: zap.NewNop().Sugar(), Stats: tally.NoopScope})
	assert.ErrorContains(t, err, "cobol")
}

func TestQuickCheck(t *testing.T) {
	t.Run("reports problems of the file", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		published := f.capture(false)
		main := f.open(t, "src/main.go", "import dep\nerror boom\n")

		f.checker.QuickCheck(context.Background(), f.root, main)
		f.executor.Wait()

		require.Len(t, *published, 1)
		diags := (*published)[0][mapper.PathToURI(main)]
		assert.ElementsMatch(t, []string{"error", "unresolved-import"}, codes(diags))
		assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.checker.quick.runs+"].Value())
	})

	t.Run("unused imports when enabled", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n", "src/dep.go": "def d\n"})
		published := f.capture(false)
		main := f.open(t, "src/main.go", "import dep\n")

		f.checker.QuickCheck(context.Background(), f.root, main)
		f.executor.Wait()
		require.Len(t, *published, 1)
		assert.Empty(t, (*published)[0][mapper.PathToURI(main)])

		f.checker.SetQuickUnusedImports(true)
		f.checker.QuickCheck(context.Background(), f.root, main)
		f.executor.Wait()
		require.Len(t, *published, 2)
		assert.Equal(t, []string{_codeUnusedImport}, codes((*published)[1][mapper.PathToURI(main)]))
	})

	t.Run("broken configuration falls back to syntax", func(t *testing.T) {
		f := newFixture(t, map[string]string{"project.yaml": ""})
		published := f.capture(false)
		path := f.open(t, "a.go", "package a\nfunc {\n")

		f.checker.QuickCheck(context.Background(), f.root, path)
		f.executor.Wait()

		require.Len(t, *published, 1)
		diags := (*published)[0][mapper.PathToURI(path)]
		assert.Contains(t, codes(diags), projects.ConfigurationCode)
		assert.Contains(t, codes(diags), "syntax-error")
	})

	t.Run("publishes only the checked file", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		f.engine.ConfigProblems = []analysis.Problem{{Message: "deprecated option"}}
		published := f.capture(false)
		main := f.open(t, "src/main.go", "error boom\n")

		f.checker.QuickCheck(context.Background(), f.root, main)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Equal(t, []uri.URI{mapper.PathToURI(main)}, slices.Collect(maps.Keys((*published)[0])))
		assert.Equal(t, []string{"error"}, codes((*published)[0][mapper.PathToURI(main)]))
	})

	t.Run("requests are coalesced while running", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		published := f.capture(false)
		main := f.open(t, "src/main.go", "def main\n")

		started, release := make(chan struct{}), make(chan struct{})
		var once sync.Once
		f.engine.BeforeBuild = func(ctx context.Context, path string) {
			once.Do(func() {
				close(started)
				<-release
			})
		}

		f.checker.QuickCheck(context.Background(), f.root, main)
		<-started
		f.checker.QuickCheck(context.Background(), f.root, main)
		f.checker.QuickCheck(context.Background(), f.root, main)
		close(release)
		f.executor.Wait()

		assert.Len(t, *published, 1)
		assert.Equal(t, 2, f.engine.Projects()[0].Builds(main))
		assert.Equal(t, int64(2), f.scope.Snapshot().Counters()["testing.checker.quick.coalesced+"].Value())
	})
}

func TestFullCheck(t *testing.T) {
	t.Run("checks every reachable unit", func(t *testing.T) {
		f := newFixture(t, map[string]string{
			"src/main.go": "import dep\nif debug\nx\nendif\ninclude inc.txt\n",
			"src/dep.go":  "def d\n",
			"src/inc.txt": "error included problem\n",
		})
		published := f.capture(true)

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		got := (*published)[0]
		main, dep, inc := f.path("src/main.go"), f.path("src/dep.go"), f.path("src/inc.txt")

		mainDiags := got[mapper.PathToURI(main)]
		assert.ElementsMatch(t, []string{"error", _codeUnusedImport, _codeDisabledBlock}, codes(mainDiags))
		for _, d := range mainDiags {
			if d.Code == "error" {
				assert.Equal(t, "inc.txt:1: included problem", d.Message)
			}
		}
		assert.Contains(t, got, mapper.PathToURI(dep))
		assert.Empty(t, got[mapper.PathToURI(dep)])
		assert.NotContains(t, got, mapper.PathToURI(inc))

		parent, ok := f.registry.IncludeParent(f.root, inc)
		assert.True(t, ok)
		assert.Equal(t, main, parent)
	})

	t.Run("open files outside the source path", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		published := f.capture(true)
		stray := f.open(t, "tools/gen.go", "def gen\n")

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Equal(t, []string{_codeOutsideSourcePath}, codes((*published)[0][mapper.PathToURI(stray)]))
		assert.True(t, f.registry.IsOutsideSourcePath(f.root, stray))
	})

	t.Run("open files on the source path are roots", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		published := f.capture(true)
		extra := f.open(t, "src/extra.go", "error not reachable from main\n")

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Equal(t, []string{"error"}, codes((*published)[0][mapper.PathToURI(extra)]))
	})

	t.Run("build errors become diagnostics", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "import dep\n", "src/dep.go": "panic\n"})
		published := f.capture(true)

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Equal(t, []string{_codeBuildError}, codes((*published)[0][mapper.PathToURI(f.path("src/dep.go"))]))
		assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.checker.build_errors+"].Value())
	})

	t.Run("missing entry file falls back to syntax", func(t *testing.T) {
		f := newFixture(t, map[string]string{
			"project.yaml": "sourcePaths: [src]\nentryFiles: [src/main.go, src/gone.go]\n",
			"src/main.go":  "def main\n",
		})
		published := f.capture(true)

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Contains(t, (*published)[0], mapper.PathToURI(f.path("src/main.go")))
	})

	t.Run("configuration problems are published once", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		f.engine.ConfigProblems = []analysis.Problem{{Message: "deprecated option"}}
		published := f.capture(true)
		configURI := mapper.PathToURI(f.path("project.yaml"))

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()
		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 2)
		assert.Len(t, (*published)[0][configURI], 1)
		assert.NotContains(t, (*published)[1], configURI)
		assert.Equal(t, 1, f.engine.Created())
	})

	t.Run("concurrent modification is retried", func(t *testing.T) {
		f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
		f.engine.ForcedConcurrentModifications = 2
		published := f.capture(true)

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		assert.Len(t, *published, 1)
		assert.Equal(t, int64(2), f.scope.Snapshot().Counters()["testing.checker.full.retries+"].Value())
	})

	t.Run("broken configuration publishes only its problems", func(t *testing.T) {
		f := newFixture(t, map[string]string{"project.yaml": "kind: plugin\n"})
		published := f.capture(true)
		f.open(t, "a.go", "package a\nfunc {\n")

		f.checker.FullCheck(context.Background(), f.root)
		f.executor.Wait()

		require.Len(t, *published, 1)
		assert.Equal(t, map[uri.URI][]string{
			mapper.PathToURI(f.path("project.yaml")): {projects.ConfigurationCode},
		}, func() map[uri.URI][]string {
			result := make(map[uri.URI][]string)
			for k, v := range (*published)[0] {
				result[k] = codes(v)
			}
			return result
		}())
	})
}

func TestFullCheckCancelsQuickChecks(t *testing.T) {
	f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
	// Any quick publish fails the test through the mock.
	published := f.capture(true)
	main := f.open(t, "src/main.go", "def main\n")

	started, release := make(chan struct{}), make(chan struct{})
	var once sync.Once
	f.engine.BeforeBuild = func(ctx context.Context, path string) {
		once.Do(func() {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
		})
	}

	f.checker.QuickCheck(context.Background(), f.root, main)
	<-started
	f.checker.FullCheck(context.Background(), f.root)
	close(release)
	f.executor.Wait()

	assert.Len(t, *published, 1)
	assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.checker.quick.cancelled+"].Value())
}

func TestFullCheckReplacesRunningCheck(t *testing.T) {
	f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
	published := f.capture(true)

	started := make(chan struct{})
	var once sync.Once
	f.engine.BeforeBuild = func(ctx context.Context, path string) {
		once.Do(func() {
			close(started)
			<-ctx.Done()
		})
	}

	f.checker.FullCheck(context.Background(), f.root)
	<-started
	f.checker.FullCheck(context.Background(), f.root)
	f.executor.Wait()

	assert.Len(t, *published, 1)
	assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.checker.full.replaced+"].Value())
}

func TestCancelRoot(t *testing.T) {
	f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
	started := make(chan struct{})
	var once sync.Once
	f.engine.BeforeBuild = func(ctx context.Context, path string) {
		once.Do(func() {
			close(started)
			<-ctx.Done()
		})
	}

	// No publish is expected.
	f.checker.FullCheck(context.Background(), f.root)
	<-started
	f.checker.CancelRoot(f.root)
	f.executor.Wait()
}

func TestFullCheckRerunsAfterEdit(t *testing.T) {
	f := newFixture(t, map[string]string{"src/main.go": "def main\n"})
	a := f.open(t, "src/a.go", "error old\n")
	aURI := mapper.PathToURI(a)

	type publish struct {
		full  bool
		diags []protocol.Diagnostic
	}
	var (
		mu       sync.Mutex
		recorded []publish
	)
	f.tracker.EXPECT().Publish(gomock.Any(), f.root, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, byURI map[uri.URI][]protocol.Diagnostic, releaseStale bool) error {
			mu.Lock()
			defer mu.Unlock()
			if diags, ok := byURI[aURI]; ok {
				recorded = append(recorded, publish{full: releaseStale, diags: diags})
			}
			return nil
		}).AnyTimes()

	// The unit of a.go is parsed before its build starts, so the edit lands after the pass read it.
	var once sync.Once
	f.engine.BeforeBuild = func(ctx context.Context, path string) {
		if path != a {
			return
		}
		once.Do(func() {
			assert.NoError(t, f.overlay.Change(a, 2, []protocol.TextDocumentContentChangeEvent{{Text: "def fixed\n"}}))
			f.registry.NotifyFile(f.root, a, projects.FileChanged)
			f.checker.QuickCheck(ctx, f.root, a)
		})
	}

	f.checker.FullCheck(context.Background(), f.root)
	f.executor.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, recorded, 2)
	fulls := 0
	for _, p := range recorded {
		assert.Empty(t, p.diags)
		if p.full {
			fulls++
		}
	}
	assert.Equal(t, 1, fulls)
	assert.Equal(t, int64(1), f.scope.Snapshot().Counters()["testing.checker.full.rerun+"].Value())
}
