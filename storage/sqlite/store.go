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


// Package sqlite implements storage.DocumentStore on an embedded SQLite
// database. The relational schema is the source of truth for document
// metadata: a document exists once InsertDocumentWithChunks commits.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
	"github.com/poiesic/docstream/storage/sqlite/migrations"
)

// Store is the SQLite-backed document store.
type Store struct {
	db   *sql.DB
	path string
}

var _ storage.DocumentStore = (*Store)(nil)

// NewStore creates a document store at the specified data directory.
// The directory is created if it doesn't exist.
func NewStore(dataDir string) (storage.DocumentStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory required")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "docstream.db")

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, path: dbPath}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// InsertDocumentWithChunks persists the document and all chunks in a single
// transaction. If a document with the same (source_uri, content_version)
// already exists, the existing document's ID is returned with ErrDuplicate
// and nothing is written.
func (s *Store) InsertDocumentWithChunks(ctx context.Context, doc *core.Document, chunks []core.Chunk) (core.ID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	status := doc.Status
	if status == "" {
		status = core.DocumentStatusPartial
	}
	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}

	// The unique (source_uri, content_version) constraint is the sole
	// serialization point for concurrent inserts of the same upload. A
	// conflicting insert affects zero rows and resolves to the winner's ID.
	res, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, source_uri, content_version, title, uploaded_at, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, int64(doc.Id), doc.SourceURI, doc.ContentVersion, doc.Title, uploadedAt, string(status))
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	} else if n == 0 {
		var existingID int64
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM documents WHERE source_uri = ? AND content_version = ?
		`, doc.SourceURI, doc.ContentVersion).Scan(&existingID)
		if err != nil {
			return 0, fmt.Errorf("resolving duplicate: %w", err)
		}
		return core.ID(existingID), storage.ErrDuplicate
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO doc_chunks (id, document_id, chunk_index, char_start, char_end, text, embedded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing chunk statement: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		var embeddedAt any
		if !chunk.EmbeddedAt.IsZero() {
			embeddedAt = chunk.EmbeddedAt
		}
		if _, err := stmt.ExecContext(ctx, int64(chunk.Id), int64(doc.Id), chunk.ChunkIndex,
			chunk.CharStart, chunk.CharEnd, chunk.Text, embeddedAt); err != nil {
			return 0, fmt.Errorf("inserting chunk %d: %w", chunk.ChunkIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return doc.Id, nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_uri, content_version, title, uploaded_at, status
		FROM documents WHERE id = ?
	`, int64(id))
	return scanDocument(row)
}

// GetDocumentBySource retrieves a document by source URI and content version.
func (s *Store) GetDocumentBySource(ctx context.Context, sourceURI, contentVersion string) (*core.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source_uri, content_version, title, uploaded_at, status
		FROM documents WHERE source_uri = ? AND content_version = ?
	`, sourceURI, contentVersion)
	return scanDocument(row)
}

// UpdateDocumentStatus sets the document's status.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id core.ID, status core.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE documents SET status = ? WHERE id = ?", string(status), int64(id))
	if err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListChunks retrieves all chunks of a document ordered by chunk index.
func (s *Store) ListChunks(ctx context.Context, documentID core.ID) ([]core.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, char_start, char_end, text, embedded_at
		FROM doc_chunks WHERE document_id = ?
		ORDER BY chunk_index
	`, int64(documentID))
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// ListChunksPendingEmbedding retrieves chunks that have not been embedded yet.
func (s *Store) ListChunksPendingEmbedding(ctx context.Context, limit int) ([]core.Chunk, error) {
	query := `
		SELECT id, document_id, chunk_index, char_start, char_end, text, embedded_at
		FROM doc_chunks WHERE embedded_at IS NULL
		ORDER BY document_id, chunk_index
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pending chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// MarkChunksEmbedded records the embedding timestamp for the given chunks.
func (s *Store) MarkChunksEmbedded(ctx context.Context, chunkIDs ...core.ID) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(chunkIDs))
	args := make([]any, 0, len(chunkIDs)+1)
	args = append(args, time.Now().UTC())
	for i, id := range chunkIDs {
		placeholders[i] = "?"
		args = append(args, int64(id))
	}

	_, err := s.db.ExecContext(ctx,
		"UPDATE doc_chunks SET embedded_at = ? WHERE id IN ("+strings.Join(placeholders, ",")+")",
		args...)
	if err != nil {
		return fmt.Errorf("marking chunks embedded: %w", err)
	}
	return nil
}

// SearchChunksKeyword finds chunks matching the query terms, ranked by how
// many distinct terms match. Chunks matching every term rank above chunks
// matching a subset. Ties break by chunk index, then document ID.
func (s *Store) SearchChunksKeyword(ctx context.Context, query string, limit int) ([]core.SearchResult, error) {
	terms := splitTerms(query)
	if len(terms) == 0 || limit <= 0 {
		return []core.SearchResult{}, nil
	}

	// Fetch candidates matching any term, score in memory.
	conditions := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, term := range terms {
		conditions[i] = "lower(text) LIKE ?"
		args[i] = "%" + term + "%"
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, char_start, char_end, text, embedded_at
		FROM doc_chunks WHERE `+strings.Join(conditions, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks by keyword: %w", err)
	}
	defer rows.Close()

	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(chunks))
	for _, chunk := range chunks {
		lowered := strings.ToLower(chunk.Text)
		matched := 0
		for _, term := range terms {
			if strings.Contains(lowered, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := float32(matched) / float32(len(terms))
		results = append(results, core.SearchResult{
			DocumentId: chunk.DocumentId,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
			Score:      score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].ChunkIndex != results[j].ChunkIndex {
			return results[i].ChunkIndex < results[j].ChunkIndex
		}
		return results[i].DocumentId < results[j].DocumentId
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteDocument removes a document; chunks cascade.
func (s *Store) DeleteDocument(ctx context.Context, id core.ID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// splitTerms lowercases and splits a query into search terms.
func splitTerms(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

func scanDocument(row *sql.Row) (*core.Document, error) {
	var doc core.Document
	var id int64
	var status string
	var uploadedAt sql.NullTime

	if err := row.Scan(&id, &doc.SourceURI, &doc.ContentVersion, &doc.Title,
		&uploadedAt, &status); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scanning document: %w", err)
	}

	doc.Id = core.ID(id)
	doc.Status = core.DocumentStatus(status)
	if uploadedAt.Valid {
		doc.UploadedAt = uploadedAt.Time
	}
	return &doc, nil
}

func scanChunks(rows *sql.Rows) ([]core.Chunk, error) {
	var chunks []core.Chunk //nolint:prealloc // size unknown from query
	for rows.Next() {
		var chunk core.Chunk
		var id, documentID int64
		var embeddedAt sql.NullTime

		if err := rows.Scan(&id, &documentID, &chunk.ChunkIndex,
			&chunk.CharStart, &chunk.CharEnd, &chunk.Text, &embeddedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}

		chunk.Id = core.ID(id)
		chunk.DocumentId = core.ID(documentID)
		if embeddedAt.Valid {
			chunk.EmbeddedAt = embeddedAt.Time
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return chunks, nil
}
