// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package docstream

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/docstream/ai"
	"github.com/poiesic/docstream/ai/openai"
	"github.com/poiesic/docstream/chunker"
	"github.com/poiesic/docstream/config"
	"github.com/poiesic/docstream/dispatch"
	"github.com/poiesic/docstream/embedding"
	"github.com/poiesic/docstream/extract"
	"github.com/poiesic/docstream/extract/textractapi"
	"github.com/poiesic/docstream/ingest"
	"github.com/poiesic/docstream/search"
	"github.com/poiesic/docstream/storage"
	badgerstore "github.com/poiesic/docstream/storage/badger"
	"github.com/poiesic/docstream/storage/qdrant"
	"github.com/poiesic/docstream/storage/sqlite"
)

// System wires the stores, the extraction orchestrator and the embedding
// client into one handle the commands and the HTTP server build on.
type System struct {
	cfg       *config.Config
	backend   *badgerstore.Backend
	documents storage.DocumentStore
	jobs      storage.JobStore
	index     storage.VectorIndex
	embedder  *embedding.Client
	extractor *extract.Orchestrator
	logger    *slog.Logger
}

// SystemOption configures a System.
type SystemOption func(*systemOptions)

type systemOptions struct {
	embedder ai.Embedder
	provider extract.Provider
	logger   *slog.Logger
}

// WithEmbedder overrides the OpenAI-compatible embedder, mostly for tests.
func WithEmbedder(embedder ai.Embedder) SystemOption {
	return func(o *systemOptions) {
		o.embedder = embedder
	}
}

// WithExtractProvider overrides the extraction provider, mostly for tests.
func WithExtractProvider(provider extract.Provider) SystemOption {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithSystemLogger sets the logger shared by all components.
func WithSystemLogger(logger *slog.Logger) SystemOption {
	return func(o *systemOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open constructs the full system from configuration. Callers own the
// returned handle and must Close it.
func Open(cfg *config.Config, opts ...SystemOption) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	documents, err := sqlite.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}

	backend, err := badgerstore.OpenBackend(filepath.Join(cfg.DataDir, "ledger"), false)
	if err != nil {
		documents.Close()
		return nil, fmt.Errorf("opening job ledger: %w", err)
	}

	jobs, err := badgerstore.NewJobStore(backend)
	if err != nil {
		backend.Close()
		documents.Close()
		return nil, err
	}

	index, err := openIndex(cfg, backend)
	if err != nil {
		jobs.Close()
		backend.Close()
		documents.Close()
		return nil, err
	}

	aiEmbedder := options.embedder
	if aiEmbedder == nil {
		aiEmbedder, err = openai.NewEmbedder(ai.NewConfig(
			ai.WithHost(cfg.EmbeddingHost),
			ai.WithModel(cfg.EmbeddingModel),
		))
		if err != nil {
			closeStores(index, jobs, backend, documents, options.logger)
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
	}

	embedClient, err := embedding.NewClient(aiEmbedder,
		embedding.WithBatchSize(cfg.EmbedBatchSize),
		embedding.WithRetry(cfg.EmbedMaxRetries, cfg.EmbedRetryDelay),
		embedding.WithWorkers(cfg.EmbedWorkers),
		embedding.WithLogger(options.logger),
	)
	if err != nil {
		closeStores(index, jobs, backend, documents, options.logger)
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		if cfg.ExtractorHost == "" {
			embedClient.Release()
			closeStores(index, jobs, backend, documents, options.logger)
			return nil, fmt.Errorf("extractor host is not configured")
		}
		provider, err = textractapi.NewClient(textractapi.Config{
			Host:   cfg.ExtractorHost,
			APIKey: cfg.ExtractorAPIKey,
		})
		if err != nil {
			embedClient.Release()
			closeStores(index, jobs, backend, documents, options.logger)
			return nil, fmt.Errorf("creating extraction client: %w", err)
		}
	}

	extractor, err := extract.NewOrchestrator(provider, jobs,
		extract.WithPollInterval(cfg.PollInterval),
		extract.WithPollBudget(cfg.PollBudget),
		extract.WithLogger(options.logger),
	)
	if err != nil {
		embedClient.Release()
		closeStores(index, jobs, backend, documents, options.logger)
		return nil, err
	}

	return &System{
		cfg:       cfg,
		backend:   backend,
		documents: documents,
		jobs:      jobs,
		index:     index,
		embedder:  embedClient,
		extractor: extractor,
		logger:    options.logger,
	}, nil
}

func openIndex(cfg *config.Config, backend *badgerstore.Backend) (storage.VectorIndex, error) {
	switch cfg.VectorBackend {
	case config.VectorBackendQdrant:
		return qdrant.NewIndex(cfg.QdrantAddr, cfg.QdrantCollection)
	default:
		return badgerstore.NewIndex(backend)
	}
}

func closeStores(index storage.VectorIndex, jobs storage.JobStore, backend *badgerstore.Backend, documents storage.DocumentStore, logger *slog.Logger) {
	if err := index.Close(); err != nil {
		logger.Error("error closing vector index", "err", err)
	}
	if err := jobs.Close(); err != nil {
		logger.Error("error closing job ledger", "err", err)
	}
	if err := backend.Close(); err != nil {
		logger.Error("error closing ledger backend", "err", err)
	}
	if err := documents.Close(); err != nil {
		logger.Error("error closing document store", "err", err)
	}
}

// Close releases every component in reverse construction order.
func (s *System) Close() error {
	s.embedder.Release()

	if err := s.index.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
		return err
	}
	if err := s.jobs.Close(); err != nil {
		s.logger.Error("error closing job ledger", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing ledger backend", "err", err)
		return err
	}
	if err := s.documents.Close(); err != nil {
		s.logger.Error("error closing document store", "err", err)
		return err
	}
	return nil
}

// DocumentStore exposes the metadata store.
func (s *System) DocumentStore() storage.DocumentStore {
	return s.documents
}

// JobStore exposes the extraction job ledger.
func (s *System) JobStore() storage.JobStore {
	return s.jobs
}

// VectorIndex exposes the vector index.
func (s *System) VectorIndex() storage.VectorIndex {
	return s.index
}

// NewIngestionPipeline builds the ingestion pipeline over the system's
// stores.
func (s *System) NewIngestionPipeline(opts ...ingest.Option) (*ingest.Pipeline, error) {
	splitter := chunker.New(
		chunker.WithWindow(s.cfg.ChunkWindow),
		chunker.WithOverlap(s.cfg.ChunkOverlap),
	)
	opts = append([]ingest.Option{ingest.WithLogger(s.logger)}, opts...)
	return ingest.NewPipeline(s.extractor, splitter, s.documents, s.embedder, s.index, opts...)
}

// NewSearcher builds the query service over the system's stores.
func (s *System) NewSearcher(opts ...search.Option) (*search.Service, error) {
	opts = append([]search.Option{
		search.WithTopK(s.cfg.TopK),
		search.WithMinScore(s.cfg.MinScore),
		search.WithLogger(s.logger),
	}, opts...)
	return search.NewService(s.documents, s.index, s.embedder, opts...)
}

// NewDispatcher builds the event dispatcher in front of the given pipeline.
func (s *System) NewDispatcher(pipeline *ingest.Pipeline) (*dispatch.Dispatcher, error) {
	return dispatch.NewDispatcher(pipeline, s.documents, dispatch.WithLogger(s.logger))
}
