package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// IdempotencyKey derives the deduplication key for an upload from its source
// URI and content version token. Reprocessing the same object version always
// yields the same key.
func IdempotencyKey(sourceURI, contentVersion string) ID {
	return IDFromContent(sourceURI + "\x00" + contentVersion)
}

// DocumentStatus describes the observable processing state of a document.
type DocumentStatus string

const (
	// DocumentStatusComplete means all chunks are persisted and indexed.
	DocumentStatusComplete DocumentStatus = "complete"
	// DocumentStatusPartial means the document and chunks are persisted but
	// some chunks are still awaiting embeddings.
	DocumentStatusPartial DocumentStatus = "partial"
	// DocumentStatusFailed marks a terminal post-persist failure.
	DocumentStatusFailed DocumentStatus = "failed"
)

// Document represents one extracted upload. A document row is created only
// after text extraction succeeds and is immutable afterwards, apart from its
// status marker.
type Document struct {
	Id             ID
	SourceURI      string
	ContentVersion string
	Title          string
	UploadedAt     time.Time
	Status         DocumentStatus
}

// Chunk is a bounded contiguous slice of a document's extracted text.
// CharStart/CharEnd form a half-open range measured in characters (runes),
// not bytes. A zero EmbeddedAt means the chunk is still awaiting its
// embedding and is excluded from semantic search.
type Chunk struct {
	Id         ID
	DocumentId ID
	ChunkIndex int
	CharStart  int
	CharEnd    int
	Text       string
	EmbeddedAt time.Time
}

// Pending reports whether the chunk is still awaiting its embedding.
func (c *Chunk) Pending() bool {
	return c.EmbeddedAt.IsZero()
}

// JobState is the state of an extraction job. Transitions are monotonic and
// one-directional; there is no transition out of a terminal state.
type JobState int

const (
	// JobStateSubmitted means the job was handed to the extraction provider.
	JobStateSubmitted JobState = iota + 1
	// JobStatePolling means the orchestrator is waiting on the provider.
	JobStatePolling
	// JobStateSucceeded means the provider produced text. Terminal.
	JobStateSucceeded
	// JobStateFailed means the provider reported an unrecoverable error. Terminal.
	JobStateFailed
	// JobStateTimedOut means the polling budget was exhausted. Terminal.
	JobStateTimedOut
)

// String returns the lowercase name of the state.
func (s JobState) String() string {
	switch s {
	case JobStateSubmitted:
		return "submitted"
	case JobStatePolling:
		return "polling"
	case JobStateSucceeded:
		return "succeeded"
	case JobStateFailed:
		return "failed"
	case JobStateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state permits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed || s == JobStateTimedOut
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s JobState) CanTransition(next JobState) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case JobStateSubmitted:
		return next == JobStatePolling || next.Terminal()
	case JobStatePolling:
		return next.Terminal()
	default:
		return false
	}
}

// ExtractionJob tracks one asynchronous extraction run against an uploaded
// document. Its Id is the upload's idempotency key, so at most one job can
// exist per (source_uri, content_version).
type ExtractionJob struct {
	Id             ID
	SourceURI      string
	ContentVersion string
	ProviderJobId  string
	State          JobState
	Reason         string // populated for failed and timed out jobs
	SubmittedAt    time.Time
	CompletedAt    time.Time
}

// EmbeddingRecord is the denormalized payload stored in the vector index,
// keyed by chunk ID so retrieval needs no join against the metadata store.
type EmbeddingRecord struct {
	ChunkId    ID
	DocumentId ID
	ChunkIndex int
	Text       string
	Vector     []float32
}

// SimilarityMatch is a raw nearest-neighbor hit from the vector index.
type SimilarityMatch struct {
	Record *EmbeddingRecord
	Score  float32
}

// SearchResult is a ranked query hit returned to callers.
type SearchResult struct {
	DocumentId ID
	ChunkIndex int
	Text       string
	Score      float32
}

// EventType identifies the kind of object-store notification.
type EventType string

// EventTypeCreated is the only event type that enters the pipeline.
const EventTypeCreated EventType = "created"

// UploadEvent is an object-store notification as delivered by an event
// source. Delivery is at-least-once; duplicates are absorbed downstream via
// the idempotency key.
type UploadEvent struct {
	Bucket  string
	Key     string
	Type    EventType
	Version string
}

// SourceURI returns the canonical URI for the uploaded object.
func (e UploadEvent) SourceURI() string {
	if e.Bucket == "" {
		return "file://" + e.Key
	}
	return "s3://" + e.Bucket + "/" + e.Key
}

// TitleFromKey derives a default document title from an object key,
// mirroring how uploads without explicit titles are named.
func TitleFromKey(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	return key
}
