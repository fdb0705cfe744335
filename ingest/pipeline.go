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


package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docstream/chunker"
	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/embedding"
	"github.com/poiesic/docstream/storage"
)

// Extractor turns an uploaded document into text. Satisfied by
// extract.Orchestrator.
type Extractor interface {
	Extract(ctx context.Context, sourceURI, contentVersion string) (string, error)
}

// Report summarizes one pipeline run.
type Report struct {
	DocumentID core.ID
	Chunks     int
	Indexed    int
	Pending    int
	Duplicate  bool
}

// ReindexReport summarizes one embedding backfill pass.
type ReindexReport struct {
	Scanned      int
	Indexed      int
	StillPending int
}

// Pipeline orchestrates ingestion of uploaded documents.
type Pipeline struct {
	extractor Extractor
	chunker   *chunker.Chunker
	documents storage.DocumentStore
	embedder  *embedding.Client
	index     storage.VectorIndex
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	extractor Extractor,
	splitter *chunker.Chunker,
	documents storage.DocumentStore,
	embedder *embedding.Client,
	index storage.VectorIndex,
	opts ...Option,
) (*Pipeline, error) {
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if splitter == nil {
		return nil, ErrChunkerRequired
	}
	if documents == nil {
		return nil, ErrDocumentStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	p := &Pipeline{
		extractor: extractor,
		chunker:   splitter,
		documents: documents,
		embedder:  embedder,
		index:     index,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	return p, nil
}

// Ingest runs the full pipeline for one upload event: extract, chunk,
// persist, embed, index. The metadata transaction is the durability point;
// a failure before it leaves no trace, a failure after it leaves the
// document persisted with its unembedded chunks flagged pending.
//
// Re-ingesting the same (source, version) is a no-op reported via
// Report.Duplicate.
func (p *Pipeline) Ingest(ctx context.Context, event core.UploadEvent) (*Report, error) {
	sourceURI := event.SourceURI()
	docID := core.IdempotencyKey(sourceURI, event.Version)

	text, err := p.extractor.Extract(ctx, sourceURI, event.Version)
	if err != nil {
		if errors.Is(err, storage.ErrJobActive) {
			p.logger.Info("extraction already in flight, skipping",
				"source", sourceURI, "version", event.Version)
			return &Report{DocumentID: docID, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("extracting %s: %w", sourceURI, err)
	}

	chunks := p.chunker.Split(text)
	for i := range chunks {
		chunks[i].Id = chunkID(docID, i)
		chunks[i].DocumentId = docID
	}
	if err := core.ValidateChunks(chunks, len([]rune(text))); err != nil {
		return nil, fmt.Errorf("chunking %s: %w", sourceURI, err)
	}

	doc := &core.Document{
		Id:             docID,
		SourceURI:      sourceURI,
		ContentVersion: event.Version,
		Title:          core.TitleFromKey(event.Key),
		UploadedAt:     time.Now().UTC(),
		Status:         core.DocumentStatusPartial,
	}

	id, err := p.documents.InsertDocumentWithChunks(ctx, doc, chunks)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			p.logger.Info("document already ingested, skipping",
				"source", sourceURI, "version", event.Version, "document", id)
			return &Report{DocumentID: id, Duplicate: true}, nil
		}
		return nil, fmt.Errorf("persisting %s: %w", sourceURI, err)
	}

	p.logger.Info("document persisted",
		"document", docID, "source", sourceURI, "chunks", len(chunks))

	indexed, err := p.embedAndIndex(ctx, chunks)
	if err != nil {
		return nil, err
	}

	report := &Report{
		DocumentID: docID,
		Chunks:     len(chunks),
		Indexed:    len(indexed),
		Pending:    len(chunks) - len(indexed),
	}

	status := core.DocumentStatusComplete
	if report.Pending > 0 {
		status = core.DocumentStatusPartial
		p.logger.Warn("document ingested with pending embeddings",
			"document", docID, "pending", report.Pending)
	}
	if err := p.documents.UpdateDocumentStatus(ctx, docID, status); err != nil {
		return nil, fmt.Errorf("updating status for %d: %w", docID, err)
	}

	return report, nil
}

// Reindex backfills embeddings for chunks that previous runs left pending,
// up to limit chunks (limit <= 0 means all). Documents whose last pending
// chunk gets indexed are promoted to complete.
func (p *Pipeline) Reindex(ctx context.Context, limit int) (*ReindexReport, error) {
	pending, err := p.documents.ListChunksPendingEmbedding(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing pending chunks: %w", err)
	}
	if len(pending) == 0 {
		return &ReindexReport{}, nil
	}

	indexed, err := p.embedAndIndex(ctx, pending)
	if err != nil {
		return nil, err
	}

	report := &ReindexReport{
		Scanned:      len(pending),
		Indexed:      len(indexed),
		StillPending: len(pending) - len(indexed),
	}

	for docID := range affectedDocuments(pending) {
		remaining, err := p.documents.ListChunksPendingEmbedding(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("checking pending chunks: %w", err)
		}
		done := true
		for i := range remaining {
			if remaining[i].DocumentId == docID {
				done = false
				break
			}
		}
		if done {
			if err := p.documents.UpdateDocumentStatus(ctx, docID, core.DocumentStatusComplete); err != nil {
				return nil, fmt.Errorf("updating status for %d: %w", docID, err)
			}
		}
	}

	p.logger.Info("reindex pass finished",
		"scanned", report.Scanned, "indexed", report.Indexed, "pending", report.StillPending)
	return report, nil
}

// embedAndIndex embeds the chunks, upserts successful vectors into the
// index and marks them embedded. It returns the chunks that made it into
// the index; the rest stay pending. Index failures downgrade to pending
// rather than failing the run, the metadata commit is the source of truth.
func (p *Pipeline) embedAndIndex(ctx context.Context, chunks []core.Chunk) ([]core.ID, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	result, err := p.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}

	records := make([]core.EmbeddingRecord, 0, len(chunks))
	for i, vector := range result.Vectors {
		if vector == nil {
			continue
		}
		records = append(records, core.EmbeddingRecord{
			ChunkId:    chunks[i].Id,
			DocumentId: chunks[i].DocumentId,
			ChunkIndex: chunks[i].ChunkIndex,
			Text:       chunks[i].Text,
			Vector:     vector,
		})
	}
	if len(records) == 0 {
		return nil, nil
	}

	if err := p.index.EnsureReady(ctx, len(records[0].Vector)); err != nil {
		p.logger.Warn("vector index unavailable, chunks left pending", "err", err)
		return nil, nil
	}
	if err := p.index.Upsert(ctx, records); err != nil {
		p.logger.Warn("vector index upsert failed, chunks left pending", "err", err)
		return nil, nil
	}

	indexed := make([]core.ID, len(records))
	for i := range records {
		indexed[i] = records[i].ChunkId
	}
	if err := p.documents.MarkChunksEmbedded(ctx, indexed...); err != nil {
		return nil, fmt.Errorf("marking chunks embedded: %w", err)
	}

	return indexed, nil
}

// chunkID derives a stable chunk ID from the document and position, so
// re-ingesting a version writes the same point IDs into the vector index.
func chunkID(docID core.ID, index int) core.ID {
	return core.IDFromContent(fmt.Sprintf("%d:%d", docID, index))
}

// affectedDocuments collects the distinct document IDs in a chunk set.
func affectedDocuments(chunks []core.Chunk) map[core.ID]struct{} {
	docs := make(map[core.ID]struct{})
	for i := range chunks {
		docs[chunks[i].DocumentId] = struct{}{}
	}
	return docs
}
