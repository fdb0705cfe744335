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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates that a document with the same source URI and
	// content version already exists.
	ErrDuplicate = errors.New("duplicate document")

	// ErrJobActive indicates that a non-terminal extraction job already
	// exists for the same source.
	ErrJobActive = errors.New("extraction job already active")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrIndexUnavailable indicates that the vector index cannot be reached.
	ErrIndexUnavailable = errors.New("vector index unavailable")
)
