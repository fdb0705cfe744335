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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptySourceURI indicates the SourceURI field is empty.
	ErrEmptySourceURI = errors.New("source URI cannot be empty")

	// ErrEmptyChunkText indicates a chunk carries no text.
	ErrEmptyChunkText = errors.New("chunk text cannot be empty")

	// ErrChunkIndexNotDense indicates chunk indexes are not dense from 0.
	ErrChunkIndexNotDense = errors.New("chunk indexes must be dense and ordered from 0")

	// ErrChunkRangeInvalid indicates a char range is not half-open within the text.
	ErrChunkRangeInvalid = errors.New("chunk char range invalid")

	// ErrChunkCoverageGap indicates chunk ranges leave a gap in the text.
	ErrChunkCoverageGap = errors.New("chunk ranges leave a coverage gap")

	// ErrInvalidStateTransition indicates an illegal extraction job state change.
	ErrInvalidStateTransition = errors.New("invalid job state transition")
)
