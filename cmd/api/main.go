// Package main implements the tutor API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/wessley-tutor/engine/app"
	"github.com/WessleyAI/wessley-tutor/engine/config"
	"github.com/WessleyAI/wessley-tutor/engine/ingest"
	"github.com/WessleyAI/wessley-tutor/pkg/natsutil"
)

func main() {
	configPath := flag.String("config", "", "config file (default searches ./config.yaml)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("close connections", "err", err)
		}
	}()
	if err := a.ConnectNATS(ctx); err != nil {
		return err
	}

	s := &server{
		tutor:   a.Tutor(),
		docs:    a.Library,
		jobs:    natsQueue{nc: a.NATS, subject: cfg.NATS.IngestSubject},
		metrics: a.Metrics,
		logger:  logger,
		cors:    cfg.HTTP.CORSOrigin,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Ollama.GenerateTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.HTTP.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// natsQueue publishes ingestion jobs for cmd/ingest workers.
type natsQueue struct {
	nc      *nats.Conn
	subject string
}

func (q natsQueue) Enqueue(ctx context.Context, docID string) error {
	return natsutil.Publish(ctx, q.nc, q.subject, ingest.Job{DocID: docID}, nil)
}
