package ulspdaemon

import (
	"context"

	"github.com/uber/project-lsp/src/ulsp/mapper"
	"go.lsp.dev/jsonrpc2"
)

func (r *jsonRPCRouter) GotoDefinition(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToDefinitionParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.ulspdaemon.GotoDefinition(ctx, params)
	return reply(ctx, result, err)
}

func (r *jsonRPCRouter) Hover(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToHoverParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	result, err := r.ulspdaemon.Hover(ctx, params)
	return reply(ctx, result, err)
}
