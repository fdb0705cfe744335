package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docstream/core"
)

// Key prefixes for different data types
const (
	jobRecordPrefix    = "exjob"
	embeddingPrefix    = "embrec"
	embeddingDocPrefix = "embdoc"
)

// makeJobKey generates a key for an extraction job by idempotency key.
func makeJobKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobRecordPrefix, id))
}

// makeEmbeddingKey generates a key for an embedding record by chunk ID.
func makeEmbeddingKey(chunkID core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", embeddingPrefix, chunkID))
}

// makeEmbeddingDocKey generates a composite key for the document index.
// Format: prefix:documentID:chunkID
func makeEmbeddingDocKey(documentID, chunkID core.ID) []byte {
	prefix := embeddingDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for documentID + 8 bytes for chunkID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(chunkID))
	return buf
}

// makePartialEmbeddingDocKey generates a partial key for per-document scans.
// Format: prefix:documentID
func makePartialEmbeddingDocKey(documentID core.ID) []byte {
	prefix := embeddingDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	binary.BigEndian.PutUint64(buf[offset:], uint64(documentID))
	return buf
}

// chunkIDFromDocKey extracts the chunk ID from a document index key.
func chunkIDFromDocKey(key []byte) (core.ID, bool) {
	prefixSize := len(embeddingDocPrefix) + 1
	if len(key) != prefixSize+16 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[prefixSize+8:])), true
}
