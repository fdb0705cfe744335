package storage

import (
	"context"

	"github.com/poiesic/docstream/core"
)

// DocumentStore persists documents and their chunks. The relational store is
// the source of truth for document metadata; vector index writes happen after
// the metadata commit and may lag behind it.
// Implementations must be thread-safe and support concurrent access.
type DocumentStore interface {
	// InsertDocumentWithChunks persists a document and all of its chunks in a
	// single transaction. Either everything commits or nothing does.
	// A document is identified by its (SourceURI, ContentVersion) pair; if a
	// document with the same pair already exists, the existing document's ID
	// is returned along with ErrDuplicate and nothing is written.
	InsertDocumentWithChunks(ctx context.Context, doc *core.Document, chunks []core.Chunk) (core.ID, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocumentBySource retrieves a document by its source URI and content
	// version. Returns ErrNotFound if no matching document exists.
	GetDocumentBySource(ctx context.Context, sourceURI, contentVersion string) (*core.Document, error)

	// UpdateDocumentStatus sets the document's status.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocumentStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error

	// ListChunks retrieves all chunks of a document ordered by chunk index.
	ListChunks(ctx context.Context, documentID core.ID) ([]core.Chunk, error)

	// ListChunksPendingEmbedding retrieves chunks that have not been embedded
	// yet, across all documents, up to limit. Pass limit <= 0 for no limit.
	ListChunksPendingEmbedding(ctx context.Context, limit int) ([]core.Chunk, error)

	// MarkChunksEmbedded records the embedding timestamp for the given chunks.
	// Chunks that don't exist are skipped without error.
	MarkChunksEmbedded(ctx context.Context, chunkIDs ...core.ID) error

	// SearchChunksKeyword finds chunks whose text matches the query terms,
	// ranked by how many terms match. Matching is case-insensitive.
	SearchChunksKeyword(ctx context.Context, query string, limit int) ([]core.SearchResult, error)

	// DeleteDocument removes a document and all of its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error

	// Close closes the store and releases resources.
	Close() error
}

// JobStore tracks extraction jobs keyed by the idempotency key of their
// source document. At most one non-terminal job may exist per key.
type JobStore interface {
	// CreateJob records a new extraction job. Returns ErrJobActive if a
	// non-terminal job already exists for the same idempotency key.
	CreateJob(ctx context.Context, job *core.ExtractionJob) error

	// SetProviderJob records the provider-side job ID for a submitted job.
	// Returns ErrNotFound if the job doesn't exist.
	SetProviderJob(ctx context.Context, id core.ID, providerJobID string) error

	// UpdateJobState advances a job's state. Only transitions permitted by
	// core.JobState.CanTransition are accepted; others return
	// core.ErrInvalidStateTransition. Reason is stored for terminal states.
	UpdateJobState(ctx context.Context, id core.ID, state core.JobState, reason string) error

	// GetJob retrieves a job by its idempotency key.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id core.ID) (*core.ExtractionJob, error)

	// DeleteJob removes a job record.
	DeleteJob(ctx context.Context, id core.ID) error

	// Close closes the store and releases resources.
	Close() error
}

// VectorIndex stores chunk embeddings and answers nearest-neighbour queries.
// Vectors are expected to be normalized so that dot product equals cosine
// similarity. Implementations must be thread-safe.
type VectorIndex interface {
	// EnsureReady prepares the index for vectors of the given dimension,
	// creating the underlying collection if needed. Safe to call repeatedly.
	EnsureReady(ctx context.Context, dim int) error

	// Upsert writes embedding records keyed by chunk ID. Re-upserting the
	// same chunk ID overwrites the previous entry.
	Upsert(ctx context.Context, records []core.EmbeddingRecord) error

	// Search returns up to limit records most similar to vector, ordered by
	// similarity score descending. An empty index yields an empty slice.
	Search(ctx context.Context, vector []float32, limit int) ([]core.SimilarityMatch, error)

	// DeleteByDocument removes all records belonging to a document.
	DeleteByDocument(ctx context.Context, documentID core.ID) error

	// Close closes the index and releases resources.
	Close() error
}
