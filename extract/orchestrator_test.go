package extract

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
)

// memJobStore is an in-memory storage.JobStore for orchestrator tests.
type memJobStore struct {
	mu   sync.Mutex
	jobs map[core.ID]*core.ExtractionJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[core.ID]*core.ExtractionJob)}
}

func (s *memJobStore) CreateJob(_ context.Context, job *core.ExtractionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.jobs[job.Id]; ok && !existing.State.Terminal() {
		return storage.ErrJobActive
	}
	clone := *job
	s.jobs[job.Id] = &clone
	return nil
}

func (s *memJobStore) SetProviderJob(_ context.Context, id core.ID, providerJobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	job.ProviderJobId = providerJobID
	return nil
}

func (s *memJobStore) UpdateJobState(_ context.Context, id core.ID, state core.JobState, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !job.State.CanTransition(state) {
		return core.ErrInvalidStateTransition
	}
	job.State = state
	job.Reason = reason
	if state.Terminal() {
		job.CompletedAt = time.Now().UTC()
	}
	return nil
}

func (s *memJobStore) GetJob(_ context.Context, id core.ID) (*core.ExtractionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *memJobStore) DeleteJob(_ context.Context, id core.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *memJobStore) Close() error { return nil }

// scriptedProvider is an inline Provider with a fixed poll script.
type scriptedProvider struct {
	mu        sync.Mutex
	script    []pollStep
	pos       int
	submitErr error
	polls     int
}

type pollStep struct {
	status Status
	err    error
}

func (p *scriptedProvider) Submit(_ context.Context, _ string) (string, error) {
	if p.submitErr != nil {
		return "", p.submitErr
	}
	return "job-1", nil
}

func (p *scriptedProvider) Poll(_ context.Context, _ string) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	step := p.script[p.pos]
	if p.pos < len(p.script)-1 {
		p.pos++
	}
	return step.status, step.err
}

func newTestOrchestrator(t *testing.T, provider Provider, jobs storage.JobStore, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{
		WithPollInterval(time.Millisecond),
		WithPollBudget(time.Second),
	}
	o, err := NewOrchestrator(provider, jobs, append(base, opts...)...)
	require.NoError(t, err)
	return o
}

func jobFor(t *testing.T, jobs *memJobStore, sourceURI, version string) *core.ExtractionJob {
	t.Helper()
	job, err := jobs.GetJob(context.Background(), core.IdempotencyKey(sourceURI, version))
	require.NoError(t, err)
	return job
}

func TestExtract_Succeeds(t *testing.T) {
	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateRunning}},
		{status: Status{State: StateRunning}},
		{status: Status{State: StateSucceeded, Text: "extracted text"}},
	}}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs)

	text, err := o.Extract(context.Background(), "s3://docs/report.pdf", "v1")
	require.NoError(t, err)
	assert.Equal(t, "extracted text", text)

	job := jobFor(t, jobs, "s3://docs/report.pdf", "v1")
	assert.Equal(t, core.JobStateSucceeded, job.State)
	assert.Equal(t, "job-1", job.ProviderJobId)
	assert.False(t, job.CompletedAt.IsZero())
	assert.Equal(t, 3, provider.polls)
}

func TestExtract_ProviderFailure(t *testing.T) {
	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateFailed, Reason: "unsupported format"}},
	}}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs)

	_, err := o.Extract(context.Background(), "s3://docs/broken.pdf", "v1")
	require.ErrorIs(t, err, ErrExtractionFailed)
	assert.Contains(t, err.Error(), "unsupported format")

	job := jobFor(t, jobs, "s3://docs/broken.pdf", "v1")
	assert.Equal(t, core.JobStateFailed, job.State)
	assert.Equal(t, "unsupported format", job.Reason)
}

func TestExtract_SubmitFailure(t *testing.T) {
	provider := &scriptedProvider{submitErr: errors.New("service unavailable")}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs)

	_, err := o.Extract(context.Background(), "s3://docs/a.pdf", "v1")
	require.ErrorIs(t, err, ErrExtractionFailed)

	job := jobFor(t, jobs, "s3://docs/a.pdf", "v1")
	assert.Equal(t, core.JobStateFailed, job.State)
}

func TestExtract_Timeout(t *testing.T) {
	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateRunning}},
	}}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs,
		WithPollInterval(time.Millisecond),
		WithPollBudget(20*time.Millisecond))

	start := time.Now()
	_, err := o.Extract(context.Background(), "s3://docs/slow.pdf", "v1")
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrExtractionTimeout)
	assert.Less(t, elapsed, 5*time.Second, "timeout must be enforced by the budget")

	job := jobFor(t, jobs, "s3://docs/slow.pdf", "v1")
	assert.Equal(t, core.JobStateTimedOut, job.State)
	assert.NotEmpty(t, job.Reason)
}

func TestExtract_TransientPollErrorsRetried(t *testing.T) {
	provider := &scriptedProvider{script: []pollStep{
		{err: errors.New("connection reset")},
		{err: errors.New("connection reset")},
		{status: Status{State: StateSucceeded, Text: "ok"}},
	}}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs)

	text, err := o.Extract(context.Background(), "s3://docs/flaky.pdf", "v1")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, provider.polls)
}

func TestExtract_DuplicateActiveJob(t *testing.T) {
	jobs := newMemJobStore()
	require.NoError(t, jobs.CreateJob(context.Background(), &core.ExtractionJob{
		Id:    core.IdempotencyKey("s3://docs/dup.pdf", "v1"),
		State: core.JobStatePolling,
	}))

	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateSucceeded, Text: "x"}},
	}}
	o := newTestOrchestrator(t, provider, jobs)

	_, err := o.Extract(context.Background(), "s3://docs/dup.pdf", "v1")
	assert.ErrorIs(t, err, storage.ErrJobActive)
}

func TestExtract_TerminalJobDoesNotBlockRerun(t *testing.T) {
	jobs := newMemJobStore()
	require.NoError(t, jobs.CreateJob(context.Background(), &core.ExtractionJob{
		Id:    core.IdempotencyKey("s3://docs/redo.pdf", "v1"),
		State: core.JobStateFailed,
	}))

	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateSucceeded, Text: "second try"}},
	}}
	o := newTestOrchestrator(t, provider, jobs)

	text, err := o.Extract(context.Background(), "s3://docs/redo.pdf", "v1")
	require.NoError(t, err)
	assert.Equal(t, "second try", text)
}

func TestExtract_ContextCanceled(t *testing.T) {
	provider := &scriptedProvider{script: []pollStep{
		{status: Status{State: StateRunning}},
	}}
	jobs := newMemJobStore()
	o := newTestOrchestrator(t, provider, jobs,
		WithPollInterval(10*time.Millisecond),
		WithPollBudget(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err := o.Extract(ctx, "s3://docs/cancel.pdf", "v1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrExtractionTimeout)

	// A canceled wait is a timeout: the provider never returned a verdict.
	job := jobFor(t, jobs, "s3://docs/cancel.pdf", "v1")
	assert.Equal(t, core.JobStateTimedOut, job.State)
	assert.Equal(t, context.Canceled.Error(), job.Reason)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	jobs := newMemJobStore()
	_, err := NewOrchestrator(nil, jobs)
	assert.ErrorIs(t, err, ErrProviderRequired)

	_, err = NewOrchestrator(&scriptedProvider{}, nil)
	assert.ErrorIs(t, err, ErrJobStoreRequired)
}
