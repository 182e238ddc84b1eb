package ulspdaemon

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/uber/project-lsp/src/ulsp/entity"
	ulspplugin "github.com/uber/project-lsp/src/ulsp/entity/ulsp-plugin"
	"github.com/uber/project-lsp/src/ulsp/factory"
	"github.com/uber/project-lsp/src/ulsp/internal/executor"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWorkspaceMethods(t *testing.T) {
	s := &entity.Session{
		UUID: factory.UUID(),
	}
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, s.UUID)

	core, recorded := observer.New(zap.ErrorLevel)
	c := controller{
		logger:        zap.New(core).Sugar(),
		pluginMethods: sampleWorkspaceMethods(s.UUID),
		executor:      executor.NewExecutor(),
	}

	t.Run("DidChangeWorkspaceFolders", func(t *testing.T) {
		err := c.DidChangeWorkspaceFolders(ctx, &protocol.DidChangeWorkspaceFoldersParams{})
		c.executor.Wait()
		assert.NoError(t, err)
		assert.Equal(t, 1, len(recorded.TakeAll()))
	})

	t.Run("DidChangeConfiguration", func(t *testing.T) {
		err := c.DidChangeConfiguration(ctx, &protocol.DidChangeConfigurationParams{})
		c.executor.Wait()
		assert.NoError(t, err)
		assert.Equal(t, 1, len(recorded.TakeAll()))
	})
}

// sampleWorkspaceMethods registers one plugin that succeeds and one that fails, both synchronous.
func sampleWorkspaceMethods(id uuid.UUID) map[uuid.UUID]ulspplugin.RuntimePrioritizedMethods {
	err := errors.New("sample")
	m := []*ulspplugin.Methods{
		{
			DidChangeWorkspaceFolders: func(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
				return nil
			},
			DidChangeConfiguration: func(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
				return nil
			},
		},
		{
			PluginNameKey: "failing",
			DidChangeWorkspaceFolders: func(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
				return err
			},
			DidChangeConfiguration: func(ctx context.Context, params *protocol.DidChangeConfigurationParams) error {
				return err
			},
		},
	}

	result := ulspplugin.RuntimePrioritizedMethods{
		protocol.MethodWorkspaceDidChangeWorkspaceFolders: {Sync: m},
		protocol.MethodWorkspaceDidChangeConfiguration:    {Sync: m},
	}
	return map[uuid.UUID]ulspplugin.RuntimePrioritizedMethods{id: result}
}
