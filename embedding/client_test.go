package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockEmbedder for testing
type mockEmbedder struct {
	mu             sync.Mutex
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
	calls          int
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedTextFunc != nil {
		return m.embedTextFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestClient(t *testing.T, embedder *mockEmbedder, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(client.Release)
	return client
}

func TestEmbedAll_Normalizes(t *testing.T) {
	embedder := &mockEmbedder{}
	client := newTestClient(t, embedder, WithRetry(3, 10*time.Millisecond))

	result, err := client.EmbedAll(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.True(t, result.Complete())
	require.Len(t, result.Vectors, 2)

	for i, vector := range result.Vectors {
		require.NotEmpty(t, vector, "vector %d", i)
		var magnitude float32
		for _, v := range vector {
			magnitude += v * v
		}
		assert.InDelta(t, 1.0, magnitude, 0.01, "vector %d should be normalized", i)
	}
}

func TestEmbedAll_Empty(t *testing.T) {
	client := newTestClient(t, &mockEmbedder{})

	result, err := client.EmbedAll(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Empty(t, result.Vectors)
}

func TestEmbedAll_PreservesOrder(t *testing.T) {
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			// Encode the text's numeric suffix in the vector so we can check
			// reassembly order after concurrent batches.
			result := make([][]float32, len(texts))
			for i, text := range texts {
				var n float32
				fmt.Sscanf(text, "text-%f", &n)
				result[i] = []float32{n, 1}
			}
			return result, nil
		},
	}
	client := newTestClient(t, embedder, WithBatchSize(3), WithWorkers(4))

	texts := make([]string, 20)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}

	result, err := client.EmbedAll(context.Background(), texts)
	require.NoError(t, err)
	require.True(t, result.Complete())

	for i, vector := range result.Vectors {
		require.Len(t, vector, 2)
		ratio := vector[0] / vector[1]
		assert.InDelta(t, float32(i), ratio, 0.001, "vector %d out of order", i)
	}
}

func TestEmbedAll_Retries(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 3 {
				return nil, errors.New("rate limited")
			}
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{1, 0, 0}
			}
			return result, nil
		},
	}
	client := newTestClient(t, embedder, WithRetry(3, time.Millisecond))

	result, err := client.EmbedAll(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.True(t, result.Complete())
	assert.Equal(t, 3, attempts)
}

func TestEmbedAll_PartialFailure(t *testing.T) {
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			// The batch containing "bad" always fails.
			for _, text := range texts {
				if strings.Contains(text, "bad") {
					return nil, errors.New("unprocessable")
				}
			}
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{1, 0}
			}
			return result, nil
		},
	}
	client := newTestClient(t, embedder, WithBatchSize(1), WithRetry(2, time.Millisecond))

	result, err := client.EmbedAll(context.Background(), []string{"a", "b", "bad", "d", "e"})
	require.NoError(t, err)
	require.False(t, result.Complete())

	assert.Equal(t, []int{2}, result.Failed)
	assert.Nil(t, result.Vectors[2])
	for _, i := range []int{0, 1, 3, 4} {
		assert.NotEmpty(t, result.Vectors[i], "vector %d should have succeeded", i)
	}
}

func TestEmbedAll_CountMismatch(t *testing.T) {
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil // always one vector back
		},
	}
	client := newTestClient(t, embedder, WithBatchSize(2), WithRetry(2, time.Millisecond))

	result, err := client.EmbedAll(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, result.Failed)
}

func TestEmbedAll_ContextCanceled(t *testing.T) {
	embedder := &mockEmbedder{}
	client := newTestClient(t, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.EmbedAll(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEmbedQuery(t *testing.T) {
	embedder := &mockEmbedder{
		embedTextFunc: func(ctx context.Context, text string) ([]float32, error) {
			return []float32{3, 4}, nil // magnitude = 5
		},
	}
	client := newTestClient(t, embedder)

	vector, err := client.EmbedQuery(context.Background(), "greeting")
	require.NoError(t, err)
	require.Len(t, vector, 2)
	assert.InDelta(t, 0.6, vector[0], 0.001)
	assert.InDelta(t, 0.8, vector[1], 0.001)
	assert.Equal(t, 1, embedder.callCount())
}

func TestNewClient_RequiresEmbedder(t *testing.T) {
	_, err := NewClient(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
