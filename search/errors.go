package search

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrEmbedderRequired is returned when an embedding client is not provided.
	ErrEmbedderRequired = errors.New("embedding client required")

	// ErrUnknownMode is returned for a query mode outside semantic, keyword
	// and hybrid.
	ErrUnknownMode = errors.New("unknown query mode")

	// ErrEmptyQuery is returned for a blank query string.
	ErrEmptyQuery = errors.New("empty query")
)
