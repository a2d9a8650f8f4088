// Command mcp serves the tutor to MCP clients over stdio.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/WessleyAI/wessley-tutor/engine/app"
	"github.com/WessleyAI/wessley-tutor/engine/config"
)

const (
	serverName    = "wessley-tutor"
	serverVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "config file (default searches ./config.yaml)")
	flag.Parse()

	// stdout carries the protocol.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("mcp server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	// The answer cache is shared with the API when NATS is reachable.
	if err := a.ConnectNATS(ctx); err != nil {
		logger.Warn("nats unavailable", "err", err)
	}

	logger.Info("mcp server starting", "name", serverName, "version", serverVersion)
	return server.ServeStdio(newServer(serverName, serverVersion, a.Tutor()))
}
