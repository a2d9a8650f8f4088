// Package app wires configuration into the stores and services the commands
// run: Qdrant, Neo4j, Ollama, NATS, the retrieval engine, the tutor service
// and the ingestion pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-tutor/engine/cache"
	"github.com/WessleyAI/wessley-tutor/engine/chunk"
	"github.com/WessleyAI/wessley-tutor/engine/config"
	"github.com/WessleyAI/wessley-tutor/engine/ingest"
	"github.com/WessleyAI/wessley-tutor/engine/library"
	"github.com/WessleyAI/wessley-tutor/engine/rag"
	"github.com/WessleyAI/wessley-tutor/engine/retrieval"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
	"github.com/WessleyAI/wessley-tutor/engine/source"
	"github.com/WessleyAI/wessley-tutor/pkg/fn"
	"github.com/WessleyAI/wessley-tutor/pkg/metrics"
	"github.com/WessleyAI/wessley-tutor/pkg/natsutil"
	"github.com/WessleyAI/wessley-tutor/pkg/ollama"
	"github.com/WessleyAI/wessley-tutor/pkg/resilience"
)

// App holds open connections. Close releases them.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Metrics   *metrics.Tutor
	Vectors   *semantic.VectorStore
	Library   *library.Library
	Embedder  *ollama.EmbedClient
	Generator *ollama.GenerateClient
	Retrieval *retrieval.Engine
	NATS      *nats.Conn

	driver neo4j.DriverWithContext
	cache  *cache.Cache
}

// Open connects to Qdrant and Neo4j and builds the Ollama clients. NATS is
// connected separately by ConnectNATS.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewTutor(metrics.New()),
	}

	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URL, neo4j.BasicAuth(cfg.Neo4j.User, cfg.Neo4j.Pass, ""))
	if err != nil {
		return nil, fmt.Errorf("app: neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("app: neo4j %s: %w", cfg.Neo4j.URL, err)
	}
	a.driver = driver
	a.Library = library.New(driver, logger)

	a.Vectors, err = semantic.New(cfg.Qdrant.Addr, logger)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("app: %w", err)
	}

	a.Embedder = ollama.NewEmbedClient(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, cfg.Ollama.EmbedTimeout)
	a.Generator = ollama.NewGenerateClient(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel, cfg.Ollama.GenerateTimeout)
	a.Retrieval = retrieval.New(a.Embedder, a.Vectors, a.Library, RetrievalConfig(cfg), logger)
	return a, nil
}

// ConnectNATS connects to cfg.NATS.URL and opens the answer cache bucket.
func (a *App) ConnectNATS(ctx context.Context) error {
	nc, err := nats.Connect(a.Config.NATS.URL, nats.Name("wessley-tutor"))
	if err != nil {
		return fmt.Errorf("app: nats %s: %w", a.Config.NATS.URL, err)
	}
	kv, err := natsutil.KeyValue(ctx, nc, a.Config.NATS.CacheBucket, a.Config.Cache.TTL)
	if err != nil {
		nc.Close()
		return fmt.Errorf("app: %w", err)
	}
	a.NATS = nc
	a.cache = cache.New(cache.NewKVStore(kv), a.Config.Cache.TTL)
	return nil
}

// Tutor builds the answering service. Without NATS answers are cached in
// process memory.
func (a *App) Tutor() *rag.Service {
	c := a.cache
	if c == nil {
		a.Logger.Warn("nats not connected, caching answers in memory")
		c = cache.New(cache.NewMemoryStore(), a.Config.Cache.TTL)
	}
	breaker := resilience.NewBreaker(resilience.BreakerOpts{
		FailThreshold: resilience.DefaultBreakerOpts.FailThreshold,
		Timeout:       resilience.DefaultBreakerOpts.Timeout,
		HalfOpenMax:   resilience.DefaultBreakerOpts.HalfOpenMax,
		OnStateChange: func(from, to resilience.State) {
			a.Logger.Warn("generation breaker", "from", from.String(), "to", to.String())
			a.Metrics.BreakerState("generation", int(to))
		},
	})
	return rag.New(a.Retrieval, a.Generator, c, RagConfig(a.Config), a.Logger,
		rag.WithBreaker(breaker),
		rag.WithLibrary(a.Library),
	)
}

// Pipeline builds the ingestion pipeline.
func (a *App) Pipeline() (*ingest.Pipeline, error) {
	chunker, err := chunk.New(a.Config.ChunkConfig(), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	loader := source.MultiLoader{Files: source.FileLoader{Root: a.Config.Ingest.DataDir}}
	if s := a.Config.Storage; s.Endpoint != "" {
		objects, err := source.NewObjectLoader(source.ObjectConfig{
			Endpoint:  s.Endpoint,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			UseSSL:    s.UseSSL,
			Region:    s.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		loader.Objects = objects
	}
	return ingest.New(a.Library, loader, chunker, a.Embedder, a.Vectors, IngestConfig(a.Config), a.Logger,
		ingest.WithMetrics(a.Metrics),
	), nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.NATS != nil {
		if err := a.NATS.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Vectors != nil {
		errs = append(errs, a.Vectors.Close())
	}
	if a.driver != nil {
		errs = append(errs, a.driver.Close(ctx))
	}
	return errors.Join(errs...)
}

// RetrievalConfig maps the retrieval section onto the engine's settings.
func RetrievalConfig(cfg config.Config) retrieval.Config {
	rc := retrieval.DefaultConfig()
	rc.Limit = cfg.Retrieval.Limit
	rc.Threshold = float32(cfg.Retrieval.Threshold)
	rc.ScanLimit = cfg.Retrieval.ScanLimit
	rc.FetchLimit = cfg.Retrieval.FetchLimit
	return rc
}

func RagConfig(cfg config.Config) rag.Config {
	rc := rag.DefaultConfig()
	rc.Limit = cfg.Retrieval.Limit
	rc.Threshold = float32(cfg.Retrieval.Threshold)
	rc.PreviewChars = cfg.Retrieval.PreviewChars
	rc.MaxTokens = cfg.Ollama.MaxTokens
	rc.GenerateTimeout = cfg.Ollama.GenerateTimeout
	return rc
}

func IngestConfig(cfg config.Config) ingest.Config {
	retry := fn.DefaultRetry
	retry.MaxAttempts = cfg.Ingest.Retry.Attempts
	retry.InitialWait = cfg.Ingest.Retry.Backoff
	return ingest.Config{
		BatchSize:        cfg.Ingest.BatchSize,
		Workers:          cfg.Ingest.Workers,
		EmbedRPS:         cfg.Ingest.EmbedRPS,
		ClearBeforeWrite: cfg.Ingest.ClearBeforeWrite,
		Retry:            retry,
	}
}
