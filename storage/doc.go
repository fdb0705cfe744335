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


// Package storage provides the storage abstraction layer for docstream.
//
// This package defines the interfaces that decouple storage implementations
// from the ingestion and query logic. Three concerns are kept separate:
//
//   - DocumentStore: relational metadata for documents and chunks. This is
//     the source of truth; a document exists once its metadata transaction
//     commits, regardless of the state of the vector index.
//   - JobStore: the extraction job ledger, enforcing one active job per
//     source and monotonic state transitions.
//   - VectorIndex: chunk embeddings and similarity search. Index writes are
//     best-effort relative to the metadata commit; chunks missing from the
//     index stay queryable by keyword and can be backfilled later.
//
// # Backends
//
// The sqlite subpackage implements DocumentStore on an embedded SQLite
// database with schema migrations. The badger subpackage implements JobStore
// and an embedded VectorIndex on BadgerDB. The qdrant subpackage implements
// VectorIndex against a Qdrant server over gRPC.
//
// Public constructors return the storage interfaces rather than concrete
// types so that backends stay interchangeable:
//
//	store, err := sqlite.NewStore(path)      // returns storage.DocumentStore
//	index, err := badger.NewIndex(backend)   // returns storage.VectorIndex
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
