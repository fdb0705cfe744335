// Package embedding provides the batched embedding client used by the
// ingestion pipeline and the query service.
//
// Texts are embedded in order-preserving batches. Batches run concurrently on
// a bounded worker pool, each with bounded exponential-backoff retries. When
// a batch exhausts its retries the client returns a partial result naming the
// failed positions instead of discarding the whole set; callers persist the
// successes and report the gaps.
package embedding

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/docstream/ai"
)

const (
	// DefaultBatchSize is the default number of texts per provider request.
	DefaultBatchSize = 16
	// DefaultMaxRetries is the default retry ceiling per batch.
	DefaultMaxRetries = 3
	// DefaultRetryBaseDelay is the default base delay for exponential backoff.
	DefaultRetryBaseDelay = time.Second
	// DefaultWorkers bounds concurrent batches against the provider.
	DefaultWorkers = 4
)

// Result holds the outcome of embedding an ordered list of texts.
// Vectors is aligned with the input: Vectors[i] is the normalized embedding
// of texts[i], or nil if that text could not be embedded. Failed lists the
// indexes of the nil entries in ascending order.
type Result struct {
	Vectors [][]float32
	Failed  []int
}

// Complete reports whether every text received an embedding.
func (r *Result) Complete() bool {
	return len(r.Failed) == 0
}

// Client embeds texts through an ai.Embedder with batching, bounded
// concurrency and retry-with-backoff on transient provider errors.
type Client struct {
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
	pool           *ants.Pool
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client) error

// WithBatchSize sets the number of texts per provider request.
func WithBatchSize(size int) Option {
	return func(c *Client) error {
		if size > 0 {
			c.batchSize = size
		}
		return nil
	}
}

// WithRetry sets the retry ceiling and base backoff delay per batch.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) error {
		if maxRetries > 0 {
			c.maxRetries = maxRetries
		}
		if baseDelay > 0 {
			c.retryBaseDelay = baseDelay
		}
		return nil
	}
}

// WithWorkers sets the worker pool size for concurrent batches.
func WithWorkers(size int) Option {
	return func(c *Client) error {
		if size < 1 {
			size = 1
		}
		if c.pool != nil {
			c.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		c.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewClient creates an embedding client.
func NewClient(embedder ai.Embedder, opts ...Option) (*Client, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	pool, err := ants.NewPool(DefaultWorkers)
	if err != nil {
		return nil, err
	}

	c := &Client{
		embedder:       embedder,
		batchSize:      DefaultBatchSize,
		maxRetries:     DefaultMaxRetries,
		retryBaseDelay: DefaultRetryBaseDelay,
		pool:           pool,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.Release()
			return nil, optErr
		}
	}

	return c, nil
}

// Release releases the worker pool. The client should not be used afterwards.
func (c *Client) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// EmbedAll embeds texts in order-preserving batches. It returns a partial
// Result rather than an error when some batches exhaust their retries; the
// only error conditions are context cancellation and an unusable worker pool.
func (c *Client) EmbedAll(ctx context.Context, texts []string) (*Result, error) {
	result := &Result{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []int
	)

	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batchStart, batch := start, texts[start:end]

		wg.Add(1)
		task := func() {
			defer wg.Done()

			var vectors [][]float32
			err := RetryWithBackoff(ctx, func() error {
				var embedErr error
				vectors, embedErr = c.embedder.EmbedTexts(ctx, batch)
				if embedErr != nil {
					return embedErr
				}
				if len(vectors) != len(batch) {
					return ErrCountMismatch
				}
				return nil
			}, c.maxRetries, c.retryBaseDelay)

			if err != nil {
				c.logger.Error("embedding batch failed after retries",
					"offset", batchStart, "size", len(batch), "err", err)
				mu.Lock()
				for i := range batch {
					failed = append(failed, batchStart+i)
				}
				mu.Unlock()
				return
			}

			for i, vector := range vectors {
				result.Vectors[batchStart+i] = NormalizeVector(vector)
			}
		}

		if submitErr := c.pool.Submit(task); submitErr != nil {
			// Pool unavailable; run the batch on the caller's goroutine.
			task()
		}
	}

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(failed) > 0 {
		// Batches complete out of order; report gaps in input order.
		sort.Ints(failed)
		result.Failed = failed
	}

	return result, nil
}

// EmbedQuery embeds a single query string with the same retry policy as
// document batches and returns a normalized vector.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		var embedErr error
		vector, embedErr = c.embedder.EmbedText(ctx, text)
		return embedErr
	}, c.maxRetries, c.retryBaseDelay)
	if err != nil {
		return nil, err
	}
	return NormalizeVector(vector), nil
}
