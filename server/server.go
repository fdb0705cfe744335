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


// Package server exposes the query and admin HTTP API.
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/dispatch"
	"github.com/poiesic/docstream/search"
	"github.com/poiesic/docstream/storage"
)

// Handler holds the dependencies behind the HTTP API.
type Handler struct {
	searcher  *search.Service
	documents storage.DocumentStore
	index     storage.VectorIndex
	events    *dispatch.ChannelSource
}

// NewHandler creates the API handler. The event source may be nil; the
// events endpoint then responds with 503.
func NewHandler(
	searcher *search.Service,
	documents storage.DocumentStore,
	index storage.VectorIndex,
	events *dispatch.ChannelSource,
) *Handler {
	return &Handler{
		searcher:  searcher,
		documents: documents,
		index:     index,
		events:    events,
	}
}

// SetupRouter builds the gin engine with all routes registered.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), gin.Logger(), gin.Recovery())

	r.GET("/health", healthCheck)
	r.GET("/search", h.Search)
	r.GET("/documents/:id", h.GetDocument)
	r.DELETE("/documents/:id", h.DeleteDocument)
	r.POST("/events", h.PostEvent)

	return r
}

// requestID tags every response with an X-Request-ID header, honoring one
// supplied by the client.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "docstream"})
}

type searchHit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

// Search handles GET /search?q=...&mode=...&k=...
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q parameter required"})
		return
	}

	mode, err := search.ParseMode(c.Query("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topK := 0
	if raw := c.Query("k"); raw != "" {
		topK, err = strconv.Atoi(raw)
		if err != nil || topK < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "k must be a positive integer"})
			return
		}
	}

	results, err := h.searcher.Query(c.Request.Context(), query, mode, topK)
	if err != nil {
		if errors.Is(err, search.ErrEmptyQuery) || errors.Is(err, search.ErrUnknownMode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hits := make([]searchHit, len(results))
	for i, result := range results {
		hits[i] = searchHit{
			DocumentID: strconv.FormatUint(uint64(result.DocumentId), 10),
			ChunkIndex: result.ChunkIndex,
			Text:       result.Text,
			Score:      result.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "mode": string(mode), "results": hits})
}

// GetDocument handles GET /documents/:id with a chunk summary.
func (h *Handler) GetDocument(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}

	doc, err := h.documents.GetDocument(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	chunks, err := h.documents.ListChunks(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	pending := 0
	for i := range chunks {
		if chunks[i].Pending() {
			pending++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"document_id":     strconv.FormatUint(uint64(doc.Id), 10),
		"source_uri":      doc.SourceURI,
		"content_version": doc.ContentVersion,
		"title":           doc.Title,
		"status":          string(doc.Status),
		"uploaded_at":     doc.UploadedAt,
		"chunks":          len(chunks),
		"pending":         pending,
	})
}

// DeleteDocument handles DELETE /documents/:id, cascading through the
// metadata store and the vector index.
func (h *Handler) DeleteDocument(c *gin.Context) {
	id, ok := parseDocumentID(c)
	if !ok {
		return
	}

	if err := h.documents.DeleteDocument(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.index.DeleteByDocument(c.Request.Context(), id); err != nil {
		// Metadata is gone; report the index as the failing side.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "index cleanup failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": strconv.FormatUint(uint64(id), 10)})
}

type eventRequest struct {
	Bucket  string `json:"bucket"`
	Key     string `json:"key" binding:"required"`
	Type    string `json:"type"`
	Version string `json:"version" binding:"required"`
}

// PostEvent handles POST /events, injecting an upload event into the
// dispatcher. Used for manual re-drives.
func (h *Handler) PostEvent(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event intake not running"})
		return
	}

	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventType := core.EventType(req.Type)
	if req.Type == "" {
		eventType = core.EventTypeCreated
	}

	event := core.UploadEvent{
		Bucket:  req.Bucket,
		Key:     req.Key,
		Type:    eventType,
		Version: req.Version,
	}
	if err := h.events.Push(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func parseDocumentID(c *gin.Context) (core.ID, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document id"})
		return 0, false
	}
	return core.ID(id), true
}
