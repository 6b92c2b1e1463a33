package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"docsum/types"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type Asker interface {
	Query(ctx context.Context, hash, query string) (*types.ChatResponse, error)
}

// NewDocServer exposes the query engine as the ask_document tool.
func NewDocServer(asker Asker) *server.MCPServer {
	tool := mcplib.NewTool("ask_document",
		mcplib.WithDescription("Answer a question using only the content of one analyzed PDF document"),
		mcplib.WithString("hash",
			mcplib.Required(),
			mcplib.Description("SHA-256 content hash returned by the analyze endpoint"),
		),
		mcplib.WithString("query",
			mcplib.Required(),
			mcplib.Description("Question about the document"),
		))

	srv := server.NewMCPServer("docsum", "0.1.0", server.WithToolCapabilities(false))
	srv.AddTool(tool, askHandler(asker))
	return srv
}

func askHandler(asker Asker) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
		hash, err := request.RequireString("hash")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		q, err := request.RequireString("query")
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}
		params := types.HashParams{Hash: strings.ToLower(strings.TrimSpace(hash))}
		if errs := types.Validate(&params); len(errs) > 0 {
			return mcplib.NewToolResultError("hash must be a 64 character hex digest"), nil
		}

		resp, err := asker.Query(ctx, params.Hash, q)
		if err != nil {
			return mcplib.NewToolResultError(err.Error()), nil
		}

		var sb strings.Builder
		sb.WriteString(resp.Response)
		for _, s := range resp.Sources {
			raw, err := json.Marshal(struct {
				Page    int     `json:"page"`
				Score   float64 `json:"score"`
				Preview string  `json:"preview"`
			}{
				Page:    s.Metadata.Page,
				Score:   s.Metadata.Score,
				Preview: s.ContentPreview,
			})
			if err != nil {
				return mcplib.NewToolResultError(err.Error()), nil
			}
			sb.WriteString(fmt.Sprintf("\n%s", raw))
		}
		return mcplib.NewToolResultText(sb.String()), nil
	}
}
