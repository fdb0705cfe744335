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


package badger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
)

// jobStore implements storage.JobStore on a badger backend. Job records are
// JSON-encoded; badger's serializable transactions provide the one-active-job
// guarantee under concurrent dispatches.
type jobStore struct {
	backend *Backend
}

var _ storage.JobStore = (*jobStore)(nil)

// NewJobStore creates an extraction job ledger on the given backend.
func NewJobStore(backend *Backend) (storage.JobStore, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &jobStore{backend: backend}, nil
}

// CreateJob records a new extraction job. Returns storage.ErrJobActive if a
// non-terminal job already exists for the same idempotency key.
func (s *jobStore) CreateJob(_ context.Context, job *core.ExtractionJob) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := readJob(tx, job.Id)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if existing != nil && !existing.State.Terminal() {
			return storage.ErrJobActive
		}

		if err := writeJob(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// SetProviderJob records the provider-side job ID for a submitted job.
func (s *jobStore) SetProviderJob(_ context.Context, id core.ID, providerJobID string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		job, err := readJob(tx, id)
		if err != nil {
			return err
		}
		job.ProviderJobId = providerJobID
		if err := writeJob(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// UpdateJobState advances a job's state. Illegal transitions return
// core.ErrInvalidStateTransition; terminal states never move again.
func (s *jobStore) UpdateJobState(_ context.Context, id core.ID, state core.JobState, reason string) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		job, err := readJob(tx, id)
		if err != nil {
			return err
		}
		if !job.State.CanTransition(state) {
			return core.ErrInvalidStateTransition
		}

		job.State = state
		job.Reason = reason
		if state.Terminal() {
			job.CompletedAt = time.Now().UTC()
		}

		if err := writeJob(tx, job); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetJob retrieves a job by its idempotency key.
func (s *jobStore) GetJob(_ context.Context, id core.ID) (*core.ExtractionJob, error) {
	var job *core.ExtractionJob
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		var readErr error
		job, readErr = readJob(tx, id)
		return readErr
	}, false)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// DeleteJob removes a job record. Missing jobs are not an error.
func (s *jobStore) DeleteJob(_ context.Context, id core.ID) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeJobKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Close is a no-op; the backend is owned and closed by the caller.
func (s *jobStore) Close() error {
	return nil
}

func readJob(tx *badger.Txn, id core.ID) (*core.ExtractionJob, error) {
	item, err := tx.Get(makeJobKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var job core.ExtractionJob
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func writeJob(tx *badger.Txn, job *core.ExtractionJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return tx.Set(makeJobKey(job.Id), data)
}
