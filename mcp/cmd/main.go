package main

import (
	"context"
	"log"
	"log/slog"

	"docsum/app/server"
	"docsum/config"
	"docsum/mcp"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	var asker mcp.Asker
	if cfg.MCP.APIURL != "" {
		logger.Info("answering through the docsum api", "url", cfg.MCP.APIURL)
		asker = mcp.NewAPIClient(cfg.MCP.APIURL)
	} else {
		deps, err := server.NewDeps(context.Background(), cfg, logger)
		if err != nil {
			log.Fatal("error building services: ", err)
		}
		defer deps.Close()
		if deps.Engine == nil {
			log.Fatal("chat is not configured: set MCP_API_URL or the LLM and embedding settings")
		}
		asker = deps.Engine
	}

	srv := mcp.NewDocServer(asker)
	sse := mcpserver.NewSSEServer(srv, mcpserver.WithBaseURL(cfg.MCP.BaseURL))
	logger.Info("mcp server listening", "addr", cfg.MCP.Addr)
	log.Println(sse.Start(cfg.MCP.Addr))
}
