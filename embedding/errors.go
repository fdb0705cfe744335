package embedding

import "errors"

var (
	// ErrInvalidMaxAttempts is returned for a non-positive retry ceiling.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrCountMismatch indicates the provider returned a different number of
	// vectors than texts submitted.
	ErrCountMismatch = errors.New("embedding count mismatch")
)
