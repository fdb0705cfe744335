package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docstream/ai/mock"
	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/dispatch"
	"github.com/poiesic/docstream/embedding"
	"github.com/poiesic/docstream/search"
	"github.com/poiesic/docstream/storage"
	badgerstore "github.com/poiesic/docstream/storage/badger"
)

// fakeDocuments backs the handlers with an in-memory document table.
type fakeDocuments struct {
	storage.DocumentStore
	docs   map[core.ID]*core.Document
	chunks map[core.ID][]core.Chunk
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		docs:   make(map[core.ID]*core.Document),
		chunks: make(map[core.ID][]core.Chunk),
	}
}

func (f *fakeDocuments) GetDocument(_ context.Context, id core.ID) (*core.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return doc, nil
}

func (f *fakeDocuments) ListChunks(_ context.Context, documentID core.ID) ([]core.Chunk, error) {
	return f.chunks[documentID], nil
}

func (f *fakeDocuments) DeleteDocument(_ context.Context, id core.ID) error {
	if _, ok := f.docs[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.docs, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeDocuments) SearchChunksKeyword(_ context.Context, _ string, _ int) ([]core.SearchResult, error) {
	return nil, nil
}

type serverEnv struct {
	router *gin.Engine
	docs   *fakeDocuments
	index  storage.VectorIndex
	events *dispatch.ChannelSource
}

func newServerEnv(t *testing.T) *serverEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend, err := badgerstore.OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	index, err := badgerstore.NewIndex(backend)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	client, err := embedding.NewClient(embedder)
	require.NoError(t, err)
	t.Cleanup(client.Release)

	docs := newFakeDocuments()
	searcher, err := search.NewService(docs, index, client)
	require.NoError(t, err)

	events := dispatch.NewChannelSource(4)
	handler := NewHandler(searcher, docs, index, events)

	return &serverEnv{
		router: SetupRouter(handler),
		docs:   docs,
		index:  index,
		events: events,
	}
}

func (env *serverEnv) request(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestRequestID(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestSearch(t *testing.T) {
	env := newServerEnv(t)
	require.NoError(t, env.index.Upsert(context.Background(), []core.EmbeddingRecord{
		{ChunkId: 1, DocumentId: 10, ChunkIndex: 0, Text: "closest", Vector: []float32{1, 0, 0}},
		{ChunkId: 2, DocumentId: 10, ChunkIndex: 1, Text: "further", Vector: []float32{0.6, 0.8, 0}},
	}))

	w := env.request(t, http.MethodGet, "/search?q=report&mode=semantic&k=5", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "semantic", body["mode"])
	results, ok := body["results"].([]any)
	require.True(t, ok)
	require.Len(t, results, 2)

	first := results[0].(map[string]any)
	assert.Equal(t, "closest", first["text"])
	assert.Equal(t, "10", first["document_id"])
}

func TestSearch_MissingQuery(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_UnknownMode(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/search?q=report&mode=fuzzy", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch_InvalidK(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/search?q=report&k=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocument(t *testing.T) {
	env := newServerEnv(t)
	env.docs.docs[42] = &core.Document{
		Id:             42,
		SourceURI:      "s3://docs/report.pdf",
		ContentVersion: "v1",
		Title:          "report.pdf",
		Status:         core.DocumentStatusPartial,
	}
	env.docs.chunks[42] = []core.Chunk{
		{Id: 1, DocumentId: 42, ChunkIndex: 0, EmbeddedAt: time.Now()},
		{Id: 2, DocumentId: 42, ChunkIndex: 1},
	}

	w := env.request(t, http.MethodGet, "/documents/42", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "42", body["document_id"])
	assert.Equal(t, "partial", body["status"])
	assert.Equal(t, float64(2), body["chunks"])
	assert.Equal(t, float64(1), body["pending"])
}

func TestGetDocument_NotFound(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/documents/7", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetDocument_InvalidID(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodGet, "/documents/abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDocument(t *testing.T) {
	env := newServerEnv(t)
	env.docs.docs[42] = &core.Document{Id: 42, SourceURI: "s3://docs/a.pdf"}
	require.NoError(t, env.index.Upsert(context.Background(), []core.EmbeddingRecord{
		{ChunkId: 1, DocumentId: 42, ChunkIndex: 0, Text: "a", Vector: []float32{1, 0, 0}},
	}))

	w := env.request(t, http.MethodDelete, "/documents/42", "")
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.docs.GetDocument(context.Background(), 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	matches, err := env.index.Search(context.Background(), []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, matches, "index entries must be removed with the document")
}

func TestDeleteDocument_NotFound(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodDelete, "/documents/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPostEvent(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodPost, "/events",
		`{"bucket":"docs","key":"report.pdf","version":"v1"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	events, err := env.events.Events(context.Background())
	require.NoError(t, err)
	select {
	case event := <-events:
		assert.Equal(t, "report.pdf", event.Key)
		assert.Equal(t, core.EventTypeCreated, event.Type, "type defaults to created")
	case <-time.After(time.Second):
		t.Fatal("event was not delivered to the source")
	}
}

func TestPostEvent_MissingKey(t *testing.T) {
	env := newServerEnv(t)

	w := env.request(t, http.MethodPost, "/events", `{"bucket":"docs","version":"v1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPostEvent_NoIntake(t *testing.T) {
	env := newServerEnv(t)

	handler := NewHandler(nil, env.docs, env.index, nil)
	router := SetupRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/events",
		strings.NewReader(`{"key":"a.pdf","version":"v1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
