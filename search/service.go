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


// Package search answers ranked queries over ingested documents. Three modes
// are supported: semantic (vector similarity), keyword (term matching in the
// metadata store) and hybrid (union of both with a boost for chunks found by
// both paths). Rankings are deterministic: ties break by ascending chunk
// index, then ascending document ID.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/embedding"
	"github.com/poiesic/docstream/storage"
)

// Mode selects the query strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeHybrid   Mode = "hybrid"
)

// ParseMode parses a query mode string. Empty input defaults to semantic.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModeSemantic:
		return ModeSemantic, nil
	case ModeKeyword:
		return ModeKeyword, nil
	case ModeHybrid:
		return ModeHybrid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

const (
	// DefaultTopK is the default result count.
	DefaultTopK = 5
	// DefaultMinScore is the default relevance floor for semantic matches.
	DefaultMinScore = 0.25

	// hybridBothBoost multiplies the semantic score of chunks the keyword
	// path also found.
	hybridBothBoost = 1.5
	// hybridKeywordScore is the flat score for keyword-only hits.
	hybridKeywordScore = 1.2
)

// Service executes queries against the vector index and metadata store.
type Service struct {
	documents storage.DocumentStore
	index     storage.VectorIndex
	embedder  *embedding.Client
	topK      int
	minScore  float32
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service) error

// WithTopK sets the default result count.
func WithTopK(k int) Option {
	return func(s *Service) error {
		if k > 0 {
			s.topK = k
		}
		return nil
	}
}

// WithMinScore sets the relevance floor applied to semantic matches.
func WithMinScore(min float32) Option {
	return func(s *Service) error {
		if min >= 0 {
			s.minScore = min
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewService creates a query service.
func NewService(
	documents storage.DocumentStore,
	index storage.VectorIndex,
	embedder *embedding.Client,
	opts ...Option,
) (*Service, error) {
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Service{
		documents: documents,
		index:     index,
		embedder:  embedder,
		topK:      DefaultTopK,
		minScore:  DefaultMinScore,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Query runs a search in the given mode and returns up to topK ranked hits
// (topK <= 0 uses the service default). An empty corpus yields an empty
// slice, never an error.
func (s *Service) Query(ctx context.Context, query string, mode Mode, topK int) ([]core.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = s.topK
	}

	switch mode {
	case ModeSemantic, "":
		return s.semantic(ctx, query, topK)
	case ModeKeyword:
		return s.keyword(ctx, query, topK)
	case ModeHybrid:
		return s.hybrid(ctx, query, topK)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}
}

// semantic embeds the query and ranks nearest neighbours above the
// relevance floor.
func (s *Service) semantic(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	matches, err := s.semanticMatches(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(matches))
	for _, match := range matches {
		results = append(results, core.SearchResult{
			DocumentId: match.Record.DocumentId,
			ChunkIndex: match.Record.ChunkIndex,
			Text:       match.Record.Text,
			Score:      match.Score,
		})
	}

	sortResults(results)
	return results, nil
}

// keyword delegates to the metadata store's term matching.
func (s *Service) keyword(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	results, err := s.documents.SearchChunksKeyword(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []core.SearchResult{}
	}
	sortResults(results)
	return results, nil
}

// hybrid unions the semantic and keyword paths. Chunks found by both get
// their semantic score boosted; keyword-only hits get a flat score above
// an unboosted semantic hit's ceiling.
func (s *Service) hybrid(ctx context.Context, query string, topK int) ([]core.SearchResult, error) {
	matches, err := s.semanticMatches(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	keywordHits, err := s.documents.SearchChunksKeyword(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	type key struct {
		doc   core.ID
		chunk int
	}
	keywordSet := make(map[key]bool, len(keywordHits))
	for _, hit := range keywordHits {
		keywordSet[key{hit.DocumentId, hit.ChunkIndex}] = true
	}

	results := make([]core.SearchResult, 0, len(matches)+len(keywordHits))
	seen := make(map[key]bool, len(matches))

	for _, match := range matches {
		k := key{match.Record.DocumentId, match.Record.ChunkIndex}
		seen[k] = true

		score := match.Score
		if keywordSet[k] {
			score *= hybridBothBoost
		}
		results = append(results, core.SearchResult{
			DocumentId: match.Record.DocumentId,
			ChunkIndex: match.Record.ChunkIndex,
			Text:       match.Record.Text,
			Score:      score,
		})
	}

	for _, hit := range keywordHits {
		k := key{hit.DocumentId, hit.ChunkIndex}
		if seen[k] {
			continue
		}
		hit.Score = hybridKeywordScore
		results = append(results, hit)
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// semanticMatches embeds the query and returns index matches above the
// relevance floor. Pending chunks never appear: they were not upserted.
func (s *Service) semanticMatches(ctx context.Context, query string, topK int) ([]core.SimilarityMatch, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := s.index.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	filtered := matches[:0]
	for _, match := range matches {
		if match.Score >= s.minScore {
			filtered = append(filtered, match)
		}
	}
	return filtered, nil
}

// sortResults orders by score descending, then chunk index ascending, then
// document ID ascending.
func sortResults(results []core.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentId < results[j].DocumentId
	})
}
