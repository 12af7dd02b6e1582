package main

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/jorge-barreto/conclave/internal/mcpserver"
	"github.com/jorge-barreto/conclave/internal/ops"
)

func serveMCP(ctx context.Context, o *ops.Operations) error {
	s := mcpserver.New(o, version)
	return server.ServeStdio(s)
}
