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


// Package dispatch turns object-store upload notifications into ingestion
// runs. The dispatcher filters events, decodes object keys and absorbs
// duplicate deliveries before they reach the pipeline; concurrent duplicates
// are serialized by the stores' uniqueness guarantees, not by a lock here.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/ingest"
	"github.com/poiesic/docstream/storage"
)

// ErrIngestorRequired is returned when an ingestor is not provided.
var ErrIngestorRequired = errors.New("ingestor required")

// Ingestor runs the ingestion pipeline for one upload event. Satisfied by
// ingest.Pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, event core.UploadEvent) (*ingest.Report, error)
}

// Source delivers upload events. The channel closes when the source stops.
type Source interface {
	Events(ctx context.Context) (<-chan core.UploadEvent, error)
}

// Dispatcher routes upload events to the ingestion pipeline.
type Dispatcher struct {
	ingestor  Ingestor
	documents storage.DocumentStore
	logger    *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		d.logger = logger
		return nil
	}
}

// NewDispatcher creates a dispatcher. The document store is optional; when
// present it lets the dispatcher skip already-ingested uploads without
// starting an extraction job.
func NewDispatcher(ingestor Ingestor, documents storage.DocumentStore, opts ...Option) (*Dispatcher, error) {
	if ingestor == nil {
		return nil, ErrIngestorRequired
	}

	d := &Dispatcher{
		ingestor:  ingestor,
		documents: documents,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Dispatch handles one upload event. Events that are not PDF creations are
// ignored; duplicate deliveries are absorbed as no-ops. A nil report means
// the event was filtered out.
func (d *Dispatcher) Dispatch(ctx context.Context, event core.UploadEvent) (*ingest.Report, error) {
	// Object-store notifications percent-encode keys; decode before
	// filtering so an encoded extension is still recognized.
	if decoded, err := url.QueryUnescape(event.Key); err == nil {
		event.Key = decoded
	}

	if !d.accepts(event) {
		d.logger.Debug("event filtered", "key", event.Key, "type", string(event.Type))
		return nil, nil
	}

	if d.documents != nil {
		existing, err := d.documents.GetDocumentBySource(ctx, event.SourceURI(), event.Version)
		if err == nil {
			d.logger.Info("upload already ingested, skipping",
				"source", event.SourceURI(), "version", event.Version)
			return &ingest.Report{DocumentID: existing.Id, Duplicate: true}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	return d.ingestor.Ingest(ctx, event)
}

// Run consumes events from the source until the context is done or the
// source closes its channel. Ingestion failures are logged, not fatal; one
// bad document must not stall the stream.
func (d *Dispatcher) Run(ctx context.Context, source Source) error {
	events, err := source.Events(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			report, err := d.Dispatch(ctx, event)
			if err != nil {
				d.logger.Error("ingestion failed",
					"key", event.Key, "version", event.Version, "err", err)
				continue
			}
			if report != nil && !report.Duplicate {
				d.logger.Info("upload ingested",
					"document", report.DocumentID, "chunks", report.Chunks,
					"indexed", report.Indexed, "pending", report.Pending)
			}
		}
	}
}

// accepts reports whether the event should reach the pipeline: object
// creations with a .pdf suffix, matched case-insensitively.
func (d *Dispatcher) accepts(event core.UploadEvent) bool {
	if event.Type != core.EventTypeCreated {
		return false
	}
	return strings.HasSuffix(strings.ToLower(event.Key), ".pdf")
}
