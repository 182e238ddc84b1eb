package app

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber/project-lsp/src/ulsp/internal/fs"
	"github.com/uber/project-lsp/src/ulsp/internal/fs/fsmock"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/mock/gomock"
)

func TestEnv(t *testing.T) {

	tests := []struct {
		name      string
		setEnvKey string
		setEnvVal string
		expectVal string
	}{
		{
			name:      "local",
			expectVal: EnvLocal,
		},
		{
			name:      "development",
			setEnvKey: _envUlspEnvironment,
			setEnvVal: "development",
			expectVal: EnvDevelopment,
		},
		{
			name:      "unknown value falls back to local",
			setEnvKey: _envUlspEnvironment,
			setEnvVal: "staging",
			expectVal: EnvLocal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setEnvKey != "" {
				os.Setenv(tt.setEnvKey, tt.setEnvVal)
				defer os.Unsetenv(tt.setEnvKey)
			}

			fxtest.New(
				t,
				fx.Provide(func() Context {
					return Context{
						Environment:        "local",
						RuntimeEnvironment: "local",
					}
				}),
				fx.Decorate(decorateEnvContext),
				fx.Invoke(func(ctx Context) {
					require.Equal(t, tt.expectVal, ctx.Environment, "unexpected environment")
					require.Equal(t, tt.expectVal, ctx.RuntimeEnvironment, "unexpected runtime environment")
				}),
			).RequireStart().RequireStop()
		})
	}
}

func newLoggingProvider(t *testing.T, outputs ...string) config.Provider {
	p, err := config.NewStaticProvider(map[string]interface{}{
		"logging": map[string]interface{}{
			"level":       "info",
			"encoding":    "json",
			"outputPaths": outputs,
		},
	})
	require.NoError(t, err)
	return p
}

func TestDecorateConfigProvider(t *testing.T) {
	t.Run("local keeps configured logging", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(nil)

		fxtest.New(
			t,
			fx.Provide(func() fs.ProjectFS {
				return fsMock
			}),
			fx.Provide(func() config.Provider {
				return newLoggingProvider(t, "/tmp/foo/myfile1.log")
			}),
			fx.Provide(func() Context {
				return Context{Environment: EnvLocal}
			}),
			fx.Decorate(decorateConfigProvider),
			fx.Invoke(func(cfg config.Provider) {
				assert.Equal(t, "info", cfg.Get("logging.level").String())
			}),
		).RequireStart().RequireStop()
	})

	t.Run("development switches to debug logging", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)

		got, err := decorateConfigProvider(DecorateConfigParams{
			Env: Context{Environment: EnvDevelopment},
			Cfg: newLoggingProvider(t, "stderr"),
			FS:  fsMock,
		})
		require.NoError(t, err)
		assert.Equal(t, "debug", got.Get("logging.level").String())
		assert.Equal(t, "console", got.Get("logging.encoding").String())

		var outputs []string
		require.NoError(t, got.Get("logging.outputPaths").Populate(&outputs))
		assert.Equal(t, []string{"stderr"}, outputs)
	})

	t.Run("log folder failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(errors.New("read-only file system"))

		_, err := decorateConfigProvider(DecorateConfigParams{
			Cfg: newLoggingProvider(t, "/tmp/foo/myfile1.log"),
			FS:  fsMock,
		})
		assert.Error(t, err)
	})
}

func TestEnsureLogFolder(t *testing.T) {
	t.Run("no errors", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(nil)
		fsMock.EXPECT().MkdirAll("/tmp/bar").Return(nil)

		_, err := ensureLogFolder(newLoggingProvider(t, "/tmp/foo/myfile1.log", "/tmp/bar/myfile2.log"), fsMock)
		assert.NoError(t, err)
	})

	t.Run("standard streams are skipped", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)

		_, err := ensureLogFolder(newLoggingProvider(t, "stderr", "stdout"), fsMock)
		assert.NoError(t, err)
	})

	t.Run("error creating directory", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		fsMock := fsmock.NewMockProjectFS(ctrl)
		fsMock.EXPECT().MkdirAll("/tmp/foo").Return(errors.New("error creating directory"))

		_, err := ensureLogFolder(newLoggingProvider(t, "/tmp/foo/myfile1.log", "/tmp/bar/myfile2.log"), fsMock)
		assert.Error(t, err)
	})
}
