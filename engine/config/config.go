// Package config holds the tutor's runtime configuration. Values come from
// Defaults, then an optional config.yaml, then TUTOR_* environment variables
// (TUTOR_RETRIEVAL_THRESHOLD overrides retrieval.threshold).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/WessleyAI/wessley-tutor/engine/chunk"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "TUTOR"

type Config struct {
	Qdrant    Qdrant    `mapstructure:"qdrant"`
	Ollama    Ollama    `mapstructure:"ollama"`
	Neo4j     Neo4j     `mapstructure:"neo4j"`
	NATS      NATS      `mapstructure:"nats"`
	Chunking  Chunking  `mapstructure:"chunking"`
	Retrieval Retrieval `mapstructure:"retrieval"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Cache     Cache     `mapstructure:"cache"`
	Storage   Storage   `mapstructure:"storage"`
	HTTP      HTTP      `mapstructure:"http"`
}

type Qdrant struct {
	Addr string `mapstructure:"addr"`
}

type Ollama struct {
	BaseURL         string        `mapstructure:"base_url"`
	EmbedModel      string        `mapstructure:"embed_model"`
	ChatModel       string        `mapstructure:"chat_model"`
	EmbedTimeout    time.Duration `mapstructure:"embed_timeout"`
	GenerateTimeout time.Duration `mapstructure:"generate_timeout"`
	MaxTokens       int           `mapstructure:"max_tokens"`
}

type Neo4j struct {
	URL  string `mapstructure:"url"`
	User string `mapstructure:"user"`
	Pass string `mapstructure:"pass"`
}

type NATS struct {
	URL           string `mapstructure:"url"`
	CacheBucket   string `mapstructure:"cache_bucket"`
	IngestSubject string `mapstructure:"ingest_subject"`
}

type Chunking struct {
	Strategy     string `mapstructure:"strategy"`
	MaxChars     int    `mapstructure:"max_chars"`
	MaxWords     int    `mapstructure:"max_words"`
	OverlapWords int    `mapstructure:"overlap_words"`
	MinChars     int    `mapstructure:"min_chars"`
}

type Retrieval struct {
	Limit        int     `mapstructure:"limit"`
	Threshold    float64 `mapstructure:"threshold"`
	PreviewChars int     `mapstructure:"preview_chars"`
	ScanLimit    int     `mapstructure:"scan_limit"`
	FetchLimit   int     `mapstructure:"fetch_limit"`
}

type Retry struct {
	Attempts int           `mapstructure:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff"`
}

type Ingest struct {
	BatchSize        int     `mapstructure:"batch_size"`
	Workers          int     `mapstructure:"workers"`
	EmbedRPS         float64 `mapstructure:"embed_rps"` // 0 disables pacing
	ClearBeforeWrite bool    `mapstructure:"clear_before_write"`
	Retry            Retry   `mapstructure:"retry"`
	DataDir          string  `mapstructure:"data_dir"`
}

type Cache struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// Storage locates the MinIO/S3 store used for s3:// document paths.
// An empty Endpoint disables object loading.
type Storage struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Region    string `mapstructure:"region"`
}

type HTTP struct {
	Port       string `mapstructure:"port"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		Qdrant: Qdrant{Addr: "localhost:6334"},
		Ollama: Ollama{
			BaseURL:         "http://localhost:11434",
			EmbedModel:      "nomic-embed-text",
			ChatModel:       "llama3",
			EmbedTimeout:    10 * time.Second,
			GenerateTimeout: 5 * time.Minute,
			MaxTokens:       512,
		},
		Neo4j: Neo4j{URL: "neo4j://localhost:7687", User: "neo4j", Pass: "password"},
		NATS: NATS{
			URL:           "nats://localhost:4222",
			CacheBucket:   "tutor_answers",
			IngestSubject: "tutor.ingest",
		},
		Chunking: Chunking{
			Strategy:     string(chunk.StrategyAuto),
			MaxChars:     500,
			MaxWords:     300,
			OverlapWords: 50,
			MinChars:     30,
		},
		Retrieval: Retrieval{
			Limit:        4,
			Threshold:    0.7,
			PreviewChars: 500,
			ScanLimit:    500,
			FetchLimit:   2000,
		},
		Ingest: Ingest{
			BatchSize:        10,
			Workers:          4,
			EmbedRPS:         0,
			ClearBeforeWrite: true,
			Retry:            Retry{Attempts: 3, Backoff: 500 * time.Millisecond},
			DataDir:          "data",
		},
		Cache: Cache{TTL: 24 * time.Hour},
		Storage: Storage{
			AccessKey: "minioadmin",
			SecretKey: "minioadmin",
			Region:    "us-east-1",
		},
		HTTP: HTTP{Port: "8080", CORSOrigin: "*"},
	}
}

// Load reads .env (if present), the config file and the environment.
// An empty path searches ./config.yaml, ./config/config.yaml and
// /etc/tutor/config.yaml; a missing file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/tutor")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys that no
// config file mentions.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("qdrant.addr", d.Qdrant.Addr)

	v.SetDefault("ollama.base_url", d.Ollama.BaseURL)
	v.SetDefault("ollama.embed_model", d.Ollama.EmbedModel)
	v.SetDefault("ollama.chat_model", d.Ollama.ChatModel)
	v.SetDefault("ollama.embed_timeout", d.Ollama.EmbedTimeout)
	v.SetDefault("ollama.generate_timeout", d.Ollama.GenerateTimeout)
	v.SetDefault("ollama.max_tokens", d.Ollama.MaxTokens)

	v.SetDefault("neo4j.url", d.Neo4j.URL)
	v.SetDefault("neo4j.user", d.Neo4j.User)
	v.SetDefault("neo4j.pass", d.Neo4j.Pass)

	v.SetDefault("nats.url", d.NATS.URL)
	v.SetDefault("nats.cache_bucket", d.NATS.CacheBucket)
	v.SetDefault("nats.ingest_subject", d.NATS.IngestSubject)

	v.SetDefault("chunking.strategy", d.Chunking.Strategy)
	v.SetDefault("chunking.max_chars", d.Chunking.MaxChars)
	v.SetDefault("chunking.max_words", d.Chunking.MaxWords)
	v.SetDefault("chunking.overlap_words", d.Chunking.OverlapWords)
	v.SetDefault("chunking.min_chars", d.Chunking.MinChars)

	v.SetDefault("retrieval.limit", d.Retrieval.Limit)
	v.SetDefault("retrieval.threshold", d.Retrieval.Threshold)
	v.SetDefault("retrieval.preview_chars", d.Retrieval.PreviewChars)
	v.SetDefault("retrieval.scan_limit", d.Retrieval.ScanLimit)
	v.SetDefault("retrieval.fetch_limit", d.Retrieval.FetchLimit)

	v.SetDefault("ingest.batch_size", d.Ingest.BatchSize)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.embed_rps", d.Ingest.EmbedRPS)
	v.SetDefault("ingest.clear_before_write", d.Ingest.ClearBeforeWrite)
	v.SetDefault("ingest.retry.attempts", d.Ingest.Retry.Attempts)
	v.SetDefault("ingest.retry.backoff", d.Ingest.Retry.Backoff)
	v.SetDefault("ingest.data_dir", d.Ingest.DataDir)

	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("storage.endpoint", d.Storage.Endpoint)
	v.SetDefault("storage.access_key", d.Storage.AccessKey)
	v.SetDefault("storage.secret_key", d.Storage.SecretKey)
	v.SetDefault("storage.use_ssl", d.Storage.UseSSL)
	v.SetDefault("storage.region", d.Storage.Region)

	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("http.cors_origin", d.HTTP.CORSOrigin)
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	if _, err := chunk.ParseStrategy(c.Chunking.Strategy); err != nil {
		errs = append(errs, err)
	}
	if err := c.ChunkConfig().Validate(); err != nil {
		errs = append(errs, err)
	}

	check(c.Retrieval.Limit > 0, "retrieval.limit must be positive, got %d", c.Retrieval.Limit)
	check(c.Retrieval.Threshold >= 0 && c.Retrieval.Threshold <= 1, "retrieval.threshold must be within [0,1], got %g", c.Retrieval.Threshold)
	check(c.Retrieval.PreviewChars > 0, "retrieval.preview_chars must be positive, got %d", c.Retrieval.PreviewChars)
	check(c.Retrieval.ScanLimit > 0, "retrieval.scan_limit must be positive, got %d", c.Retrieval.ScanLimit)
	check(c.Retrieval.FetchLimit > 0, "retrieval.fetch_limit must be positive, got %d", c.Retrieval.FetchLimit)

	check(c.Ingest.BatchSize > 0, "ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	check(c.Ingest.Workers > 0, "ingest.workers must be positive, got %d", c.Ingest.Workers)
	check(c.Ingest.EmbedRPS >= 0, "ingest.embed_rps must not be negative, got %g", c.Ingest.EmbedRPS)
	check(c.Ingest.Retry.Attempts > 0, "ingest.retry.attempts must be positive, got %d", c.Ingest.Retry.Attempts)

	check(c.Ollama.EmbedTimeout > 0, "ollama.embed_timeout must be positive, got %s", c.Ollama.EmbedTimeout)
	check(c.Ollama.GenerateTimeout > 0, "ollama.generate_timeout must be positive, got %s", c.Ollama.GenerateTimeout)
	check(c.Ollama.MaxTokens > 0, "ollama.max_tokens must be positive, got %d", c.Ollama.MaxTokens)
	check(c.Cache.TTL > 0, "cache.ttl must be positive, got %s", c.Cache.TTL)

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// ChunkConfig converts the chunking section for chunk.New.
func (c Config) ChunkConfig() chunk.Config {
	s, _ := chunk.ParseStrategy(c.Chunking.Strategy)
	return chunk.Config{
		Strategy:     s,
		MaxChars:     c.Chunking.MaxChars,
		MaxWords:     c.Chunking.MaxWords,
		OverlapWords: c.Chunking.OverlapWords,
		MinChars:     c.Chunking.MinChars,
	}
}
