// Package ingest runs the full document ingestion pipeline: extraction,
// chunking, transactional metadata persist, batched embedding and vector
// index writes.
//
// The metadata commit is the pipeline's durability point. Everything after
// it tolerates partial failure: chunks whose embeddings fail stay persisted
// and keyword-searchable, flagged as pending so Reindex can pick them up
// later. The vector index write is best-effort relative to the commit.
package ingest
