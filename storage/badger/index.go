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


// Package badger implements the extraction job ledger and an embedded vector
// index on BadgerDB. The embedded index does a full prefix scan with
// dot-product scoring; it suits single-node deployments, with the qdrant
// package as the server-backed alternative.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/embedding"
	"github.com/poiesic/docstream/storage"
)

// index implements storage.VectorIndex on a badger backend. Records are
// JSON-encoded and keyed by chunk ID; a secondary key per (document, chunk)
// supports cascade deletes without scanning the whole index.
type index struct {
	backend *Backend
}

var _ storage.VectorIndex = (*index)(nil)

// NewIndex creates an embedded vector index on the given backend.
func NewIndex(backend *Backend) (storage.VectorIndex, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &index{backend: backend}, nil
}

// EnsureReady validates the dimension. The embedded index needs no
// collection bootstrap.
func (x *index) EnsureReady(_ context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid vector dimension")
	}
	return nil
}

// Upsert writes embedding records keyed by chunk ID. Re-upserting a chunk
// overwrites its previous entry.
func (x *index) Upsert(_ context.Context, records []core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	return x.backend.WithTx(func(tx *badger.Txn) error {
		for i := range records {
			record := &records[i]
			data, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if err := tx.Set(makeEmbeddingKey(record.ChunkId), data); err != nil {
				return err
			}
			if err := tx.Set(makeEmbeddingDocKey(record.DocumentId, record.ChunkId), nil); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Search scans all records and returns up to limit matches ordered by
// dot-product score descending. Ties break by chunk index, then document ID.
func (x *index) Search(_ context.Context, vector []float32, limit int) ([]core.SimilarityMatch, error) {
	matches := []core.SimilarityMatch{}
	if limit <= 0 {
		return matches, nil
	}

	err := x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(embeddingPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			if len(record.Vector) == 0 {
				continue
			}

			matches = append(matches, core.SimilarityMatch{
				Record: &record,
				Score:  embedding.DotProduct(vector, record.Vector),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b core.SimilarityMatch) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if a.Record.ChunkIndex != b.Record.ChunkIndex {
			return a.Record.ChunkIndex - b.Record.ChunkIndex
		}
		if a.Record.DocumentId != b.Record.DocumentId {
			if a.Record.DocumentId < b.Record.DocumentId {
				return -1
			}
			return 1
		}
		return 0
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DeleteByDocument removes all records belonging to a document.
func (x *index) DeleteByDocument(_ context.Context, documentID core.ID) error {
	return x.backend.WithTx(func(tx *badger.Txn) error {
		var docKeys [][]byte
		var chunkIDs []core.ID

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialEmbeddingDocKey(documentID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			docKeys = append(docKeys, key)
			if chunkID, ok := chunkIDFromDocKey(key); ok {
				chunkIDs = append(chunkIDs, chunkID)
			}
		}
		iter.Close()

		for _, chunkID := range chunkIDs {
			if err := tx.Delete(makeEmbeddingKey(chunkID)); err != nil {
				return err
			}
		}
		for _, key := range docKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Close is a no-op; the backend is owned and closed by the caller.
func (x *index) Close() error {
	return nil
}
