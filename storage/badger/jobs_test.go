package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return backend
}

func newTestJobStore(t *testing.T) storage.JobStore {
	t.Helper()
	jobs, err := NewJobStore(newTestBackend(t))
	require.NoError(t, err)
	return jobs
}

func testJob(sourceURI, version string) *core.ExtractionJob {
	return &core.ExtractionJob{
		Id:             core.IdempotencyKey(sourceURI, version),
		SourceURI:      sourceURI,
		ContentVersion: version,
		State:          core.JobStateSubmitted,
		SubmittedAt:    time.Now().UTC(),
	}
}

func TestJobStore_CreateAndGet(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))

	got, err := jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, job.SourceURI, got.SourceURI)
	assert.Equal(t, core.JobStateSubmitted, got.State)

	_, err = jobs.GetJob(ctx, core.ID(12345))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_OneActivePerKey(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))

	// Second create for the same key while the first is active.
	err := jobs.CreateJob(ctx, testJob("s3://docs/a.pdf", "v1"))
	assert.ErrorIs(t, err, storage.ErrJobActive)

	// Different version is a different key.
	assert.NoError(t, jobs.CreateJob(ctx, testJob("s3://docs/a.pdf", "v2")))
}

func TestJobStore_TerminalJobAllowsRecreate(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))
	require.NoError(t, jobs.UpdateJobState(ctx, job.Id, core.JobStateFailed, "provider error"))

	assert.NoError(t, jobs.CreateJob(ctx, testJob("s3://docs/a.pdf", "v1")))
}

func TestJobStore_StateTransitions(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))

	require.NoError(t, jobs.UpdateJobState(ctx, job.Id, core.JobStatePolling, ""))
	require.NoError(t, jobs.UpdateJobState(ctx, job.Id, core.JobStateSucceeded, ""))

	got, err := jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobStateSucceeded, got.State)
	assert.False(t, got.CompletedAt.IsZero())

	// Terminal states are absorbing.
	err = jobs.UpdateJobState(ctx, job.Id, core.JobStateFailed, "late failure")
	assert.ErrorIs(t, err, core.ErrInvalidStateTransition)
}

func TestJobStore_InvalidTransition(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))
	require.NoError(t, jobs.UpdateJobState(ctx, job.Id, core.JobStatePolling, ""))

	// Polling cannot go back to polling.
	err := jobs.UpdateJobState(ctx, job.Id, core.JobStatePolling, "")
	assert.ErrorIs(t, err, core.ErrInvalidStateTransition)
}

func TestJobStore_SetProviderJob(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))
	require.NoError(t, jobs.SetProviderJob(ctx, job.Id, "textract-abc123"))

	got, err := jobs.GetJob(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, "textract-abc123", got.ProviderJobId)

	err = jobs.SetProviderJob(ctx, core.ID(999), "x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestJobStore_Delete(t *testing.T) {
	jobs := newTestJobStore(t)
	ctx := context.Background()

	job := testJob("s3://docs/a.pdf", "v1")
	require.NoError(t, jobs.CreateJob(ctx, job))
	require.NoError(t, jobs.DeleteJob(ctx, job.Id))

	_, err := jobs.GetJob(ctx, job.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
