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


// Package qdrant implements storage.VectorIndex against a Qdrant server over
// gRPC. Points are keyed by chunk ID and carry the document ID, chunk index
// and text as payload so search hits need no join against the metadata store.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sync"

	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
)

// index implements storage.VectorIndex on a Qdrant collection.
type index struct {
	conn        *grpc.ClientConn
	collections qdrantclient.CollectionsClient
	points      qdrantclient.PointsClient
	collection  string

	mu    sync.Mutex
	ready bool
}

var _ storage.VectorIndex = (*index)(nil)

// NewIndex connects to a Qdrant server and returns a vector index backed by
// the named collection. The collection is created on the first EnsureReady.
func NewIndex(addr, collection string) (storage.VectorIndex, error) {
	if addr == "" {
		return nil, errors.New("qdrant address required")
	}
	if collection == "" {
		return nil, errors.New("qdrant collection name required")
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	return &index{
		conn:        conn,
		collections: qdrantclient.NewCollectionsClient(conn),
		points:      qdrantclient.NewPointsClient(conn),
		collection:  collection,
	}, nil
}

// EnsureReady creates the collection if it doesn't exist.
func (x *index) EnsureReady(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.New("invalid vector dimension")
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.ready {
		return nil
	}

	collections, err := x.collections.List(ctx, &qdrantclient.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("%w: listing collections: %v", storage.ErrIndexUnavailable, err)
	}

	for _, col := range collections.GetCollections() {
		if col.GetName() == x.collection {
			x.ready = true
			return nil
		}
	}

	_, err = x.collections.Create(ctx, &qdrantclient.CreateCollection{
		CollectionName: x.collection,
		VectorsConfig: &qdrantclient.VectorsConfig{
			Config: &qdrantclient.VectorsConfig_Params{
				Params: &qdrantclient.VectorParams{
					Size:     uint64(dim),
					Distance: qdrantclient.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", x.collection, err)
	}

	x.ready = true
	return nil
}

// Upsert writes embedding records as points keyed by chunk ID.
func (x *index) Upsert(ctx context.Context, records []core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrantclient.PointStruct, len(records))
	for i, record := range records {
		points[i] = &qdrantclient.PointStruct{
			Id: &qdrantclient.PointId{
				PointIdOptions: &qdrantclient.PointId_Num{Num: uint64(record.ChunkId)},
			},
			Vectors: &qdrantclient.Vectors{
				VectorsOptions: &qdrantclient.Vectors_Vector{
					Vector: &qdrantclient.Vector{Data: record.Vector},
				},
			},
			Payload: map[string]*qdrantclient.Value{
				"document_id": {Kind: &qdrantclient.Value_IntegerValue{IntegerValue: int64(record.DocumentId)}},
				"chunk_index": {Kind: &qdrantclient.Value_IntegerValue{IntegerValue: int64(record.ChunkIndex)}},
				"text":        {Kind: &qdrantclient.Value_StringValue{StringValue: record.Text}},
			},
		}
	}

	wait := true
	_, err := x.points.Upsert(ctx, &qdrantclient.UpsertPoints{
		CollectionName: x.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}
	return nil
}

// Search returns up to limit points most similar to vector.
func (x *index) Search(ctx context.Context, vector []float32, limit int) ([]core.SimilarityMatch, error) {
	if limit <= 0 {
		return []core.SimilarityMatch{}, nil
	}

	resp, err := x.points.Search(ctx, &qdrantclient.SearchPoints{
		CollectionName: x.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload: &qdrantclient.WithPayloadSelector{
			SelectorOptions: &qdrantclient.WithPayloadSelector_Include{
				Include: &qdrantclient.PayloadIncludeSelector{
					Fields: []string{"document_id", "chunk_index", "text"},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	matches := make([]core.SimilarityMatch, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		record := &core.EmbeddingRecord{
			ChunkId: core.ID(point.GetId().GetNum()),
		}
		if v, ok := point.GetPayload()["document_id"]; ok {
			record.DocumentId = core.ID(v.GetIntegerValue())
		}
		if v, ok := point.GetPayload()["chunk_index"]; ok {
			record.ChunkIndex = int(v.GetIntegerValue())
		}
		if v, ok := point.GetPayload()["text"]; ok {
			record.Text = v.GetStringValue()
		}
		matches = append(matches, core.SimilarityMatch{
			Record: record,
			Score:  point.GetScore(),
		})
	}
	return matches, nil
}

// DeleteByDocument removes all points whose payload carries the document ID.
func (x *index) DeleteByDocument(ctx context.Context, documentID core.ID) error {
	wait := true
	_, err := x.points.Delete(ctx, &qdrantclient.DeletePoints{
		CollectionName: x.collection,
		Wait:           &wait,
		Points: &qdrantclient.PointsSelector{
			PointsSelectorOneOf: &qdrantclient.PointsSelector_Filter{
				Filter: &qdrantclient.Filter{
					Must: []*qdrantclient.Condition{
						{
							ConditionOneOf: &qdrantclient.Condition_Field{
								Field: &qdrantclient.FieldCondition{
									Key: "document_id",
									Match: &qdrantclient.Match{
										MatchValue: &qdrantclient.Match_Integer{Integer: int64(documentID)},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting points for document %d: %w", documentID, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (x *index) Close() error {
	return x.conn.Close()
}
