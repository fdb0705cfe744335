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

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - SourceURI must not be empty
//
// NOT validated:
//   - ID (0 is valid before the store assigns one)
//   - Title (optional)
//   - Status (set by the pipeline after persistence)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.SourceURI == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptySourceURI)
	}
	return nil
}

// ValidateChunks validates an ordered chunk set against the length of the
// extracted text it was produced from.
//
// Validation rules:
//   - ChunkIndex is dense and ordered from 0
//   - every char range is half-open and within [0, textLen)
//   - ranges are monotonically non-decreasing with no gaps between
//     adjacent chunks (overlap is permitted)
//   - the union of ranges covers [0, textLen)
//   - no chunk has zero length
func ValidateChunks(chunks []Chunk, textLen int) error {
	if len(chunks) == 0 {
		if textLen != 0 {
			return fmt.Errorf("%w: no chunks for %d characters of text", ErrChunkCoverageGap, textLen)
		}
		return nil
	}

	for i, chunk := range chunks {
		if chunk.ChunkIndex != i {
			return fmt.Errorf("%w: got %d at position %d", ErrChunkIndexNotDense, chunk.ChunkIndex, i)
		}
		if chunk.CharStart < 0 || chunk.CharEnd > textLen || chunk.CharStart >= chunk.CharEnd {
			return fmt.Errorf("%w: [%d,%d) of %d", ErrChunkRangeInvalid, chunk.CharStart, chunk.CharEnd, textLen)
		}
		if chunk.Text == "" {
			return fmt.Errorf("%w: chunk %d", ErrEmptyChunkText, i)
		}
		if i > 0 {
			prev := chunks[i-1]
			if chunk.CharStart < prev.CharStart {
				return fmt.Errorf("%w: chunk %d starts before chunk %d", ErrChunkRangeInvalid, i, i-1)
			}
			if chunk.CharStart > prev.CharEnd {
				return fmt.Errorf("%w: between chunks %d and %d", ErrChunkCoverageGap, i-1, i)
			}
		}
	}

	if chunks[0].CharStart != 0 {
		return fmt.Errorf("%w: first chunk starts at %d", ErrChunkCoverageGap, chunks[0].CharStart)
	}
	if last := chunks[len(chunks)-1]; last.CharEnd != textLen {
		return fmt.Errorf("%w: last chunk ends at %d of %d", ErrChunkCoverageGap, last.CharEnd, textLen)
	}
	return nil
}
