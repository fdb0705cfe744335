// Package config builds the process-wide configuration value object.
//
// Configuration is environment-variable driven with documented defaults. A
// .env file in the working directory is loaded first when present, so local
// runs do not need to export anything. The resulting Config is constructed
// once at process start and passed explicitly to each component; there is no
// ambient global state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Store backend selectors.
const (
	VectorBackendBadger = "badger"
	VectorBackendQdrant = "qdrant"
)

// Config carries every externally configurable knob of the pipeline.
type Config struct {
	// DataDir is the directory holding the metadata database and job ledger.
	DataDir string

	// ListenAddr is the HTTP listen address for the query service.
	ListenAddr string

	// PollBudget is the maximum wall-clock time spent waiting for one
	// extraction job before it is declared timed out.
	PollBudget time.Duration

	// PollInterval is the delay between extraction status polls.
	PollInterval time.Duration

	// ChunkWindow is the chunk size in characters.
	ChunkWindow int

	// ChunkOverlap is the overlap between adjacent chunks in characters.
	ChunkOverlap int

	// EmbedBatchSize is the number of chunk texts sent to the embedding
	// provider per request.
	EmbedBatchSize int

	// EmbedMaxRetries is the retry ceiling for transient embedding failures.
	EmbedMaxRetries int

	// EmbedRetryDelay is the base delay for exponential embedding backoff.
	EmbedRetryDelay time.Duration

	// EmbedWorkers bounds the number of concurrent embedding batches.
	EmbedWorkers int

	// EmbeddingHost is the base URL of the OpenAI-compatible embedding API.
	EmbeddingHost string

	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string

	// ExtractorHost is the base URL of the asynchronous extraction service.
	ExtractorHost string

	// ExtractorAPIKey is the bearer token for the extraction service.
	ExtractorAPIKey string

	// VectorBackend selects the vector index implementation.
	VectorBackend string

	// QdrantAddr is the host:port of the Qdrant gRPC endpoint.
	QdrantAddr string

	// QdrantCollection is the Qdrant collection holding chunk embeddings.
	QdrantCollection string

	// TopK is the default number of results returned by queries.
	TopK int

	// MinScore is the relevance floor applied to semantic results.
	MinScore float32

	// WatchDir, when set, is a local directory watched for new uploads.
	WatchDir string
}

// Load reads the configuration from the environment, applying defaults for
// anything unset. A .env file is honored when present but never required.
func Load() (*Config, error) {
	// Best effort: absence of a .env file is the normal case.
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:          envString("DOCSTREAM_DATA_DIR", defaultDataDir()),
		ListenAddr:       envString("DOCSTREAM_LISTEN_ADDR", ":8080"),
		ChunkWindow:      1000,
		ChunkOverlap:     200,
		EmbedBatchSize:   16,
		EmbedMaxRetries:  3,
		EmbedRetryDelay:  time.Second,
		EmbedWorkers:     4,
		PollBudget:       180 * time.Second,
		PollInterval:     2 * time.Second,
		EmbeddingHost:    envString("DOCSTREAM_EMBEDDING_HOST", "http://localhost:11434/v1"),
		EmbeddingModel:   envString("DOCSTREAM_EMBEDDING_MODEL", "embeddinggemma"),
		ExtractorHost:    envString("DOCSTREAM_EXTRACTOR_HOST", ""),
		ExtractorAPIKey:  envString("DOCSTREAM_EXTRACTOR_API_KEY", ""),
		VectorBackend:    envString("DOCSTREAM_VECTOR_BACKEND", VectorBackendBadger),
		QdrantAddr:       envString("DOCSTREAM_QDRANT_ADDR", "localhost:6334"),
		QdrantCollection: envString("DOCSTREAM_QDRANT_COLLECTION", "doc_chunks"),
		TopK:             5,
		MinScore:         0.25,
		WatchDir:         envString("DOCSTREAM_WATCH_DIR", ""),
	}

	var err error
	if cfg.PollBudget, err = envDuration("DOCSTREAM_POLL_BUDGET", cfg.PollBudget); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("DOCSTREAM_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return nil, err
	}
	if cfg.ChunkWindow, err = envInt("DOCSTREAM_CHUNK_WINDOW", cfg.ChunkWindow); err != nil {
		return nil, err
	}
	if cfg.ChunkOverlap, err = envInt("DOCSTREAM_CHUNK_OVERLAP", cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.EmbedBatchSize, err = envInt("DOCSTREAM_EMBED_BATCH_SIZE", cfg.EmbedBatchSize); err != nil {
		return nil, err
	}
	if cfg.EmbedMaxRetries, err = envInt("DOCSTREAM_EMBED_MAX_RETRIES", cfg.EmbedMaxRetries); err != nil {
		return nil, err
	}
	if cfg.EmbedRetryDelay, err = envDuration("DOCSTREAM_EMBED_RETRY_DELAY", cfg.EmbedRetryDelay); err != nil {
		return nil, err
	}
	if cfg.EmbedWorkers, err = envInt("DOCSTREAM_EMBED_WORKERS", cfg.EmbedWorkers); err != nil {
		return nil, err
	}
	if cfg.TopK, err = envInt("DOCSTREAM_TOP_K", cfg.TopK); err != nil {
		return nil, err
	}
	if cfg.MinScore, err = envFloat32("DOCSTREAM_MIN_SCORE", cfg.MinScore); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ChunkWindow <= 0 {
		return errors.New("config: chunk window must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkWindow {
		return errors.New("config: chunk overlap must be in [0, window)")
	}
	if c.EmbedBatchSize <= 0 {
		return errors.New("config: embed batch size must be positive")
	}
	if c.EmbedMaxRetries <= 0 {
		return errors.New("config: embed max retries must be positive")
	}
	if c.EmbedWorkers <= 0 {
		return errors.New("config: embed workers must be positive")
	}
	if c.PollBudget <= 0 {
		return errors.New("config: poll budget must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("config: poll interval must be positive")
	}
	if c.TopK <= 0 {
		return errors.New("config: top K must be positive")
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return errors.New("config: min score must be in [0, 1]")
	}
	switch c.VectorBackend {
	case VectorBackendBadger, VectorBackendQdrant:
	default:
		return fmt.Errorf("config: unknown vector backend %q", c.VectorBackend)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docstream"
	}
	return home + "/.docstream"
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func envFloat32(key string, fallback float32) (float32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return float32(f), nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	// Accept plain seconds for compatibility with the original deployment.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
