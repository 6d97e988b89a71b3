// Package main serves policy-document question answering over REST or MCP.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/policy-rag/internal/api"
	"github.com/bull/policy-rag/internal/app"
	"github.com/bull/policy-rag/internal/config"
	mcpserver "github.com/bull/policy-rag/internal/mcp"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to an optional YAML config file")
	flag.Parse()

	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// stdout belongs to the MCP protocol in stdio mode.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	svc, err := app.New(cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer svc.Close()

	if err := svc.EnsureIndex(ctx); err != nil {
		log.Fatalf("failed to load index: %v", err)
	}

	if cfg.WatchDataDir {
		if w := svc.Watcher(); w != nil {
			go func() {
				if err := w.Run(ctx); err != nil {
					logger.Error("Data directory watcher stopped", "error", err)
				}
			}()
		} else {
			logger.Warn("WATCH_DATA_DIR ignored for remote sources", "source", svc.Source().Name())
		}
	}

	mcp := mcpserver.NewServer(&mcpserver.Config{
		Pipeline: svc.Pipeline(),
		Searcher: svc.Retriever(),
		Index:    svc.Index(),
		Info:     svc.Info,
	})

	rest := api.NewServer(api.Config{
		Pipeline:    svc.Pipeline(),
		Index:       svc.Index(),
		CORSOrigins: cfg.Server.CORSOrigins,
		TopK:        cfg.Query.TopK,
		MinScore:    cfg.Query.MinScore,
		Logger:      logger,
	})

	mux := http.NewServeMux()
	if cfg.Server.Mode != "rest" {
		mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcp, false))
	}
	mux.Handle("/", rest)

	addr := "0.0.0.0:" + cfg.Server.Port
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		srv.Shutdown(shutdownCtx)
	}()

	switch cfg.Server.Mode {
	case "stdio":
		// Serve the REST API in the background for local testing
		go func() {
			logger.Info("Starting HTTP server", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()
		logger.Info("Starting policy MCP server (stdio mode)")
		if err := mcp.Run(ctx); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	default:
		logger.Info("Starting HTTP server", "addr", addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}
}
