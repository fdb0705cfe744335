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


// Package extract drives asynchronous text extraction against a Provider.
//
// The Orchestrator owns the extraction job lifecycle: it submits a document,
// records the job in the ledger, and polls the provider at a fixed interval
// until the run finishes or a wall-clock budget expires. State transitions
// are monotonic; once a job reaches a terminal state it never moves again.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/docstream/core"
	"github.com/poiesic/docstream/storage"
)

const (
	// DefaultPollInterval is the default delay between provider polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultPollBudget is the default wall-clock budget for one extraction.
	DefaultPollBudget = 180 * time.Second
)

// Orchestrator runs extractions and records their lifecycle in a JobStore.
type Orchestrator struct {
	provider     Provider
	jobs         storage.JobStore
	pollInterval time.Duration
	pollBudget   time.Duration
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithPollInterval sets the delay between provider polls.
func WithPollInterval(interval time.Duration) Option {
	return func(o *Orchestrator) error {
		if interval > 0 {
			o.pollInterval = interval
		}
		return nil
	}
}

// WithPollBudget sets the wall-clock budget for one extraction. A run that
// has not finished when the budget expires is recorded as timed out.
func WithPollBudget(budget time.Duration) Option {
	return func(o *Orchestrator) error {
		if budget > 0 {
			o.pollBudget = budget
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// NewOrchestrator creates an orchestrator for the given provider and ledger.
func NewOrchestrator(provider Provider, jobs storage.JobStore, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if jobs == nil {
		return nil, ErrJobStoreRequired
	}

	o := &Orchestrator{
		provider:     provider,
		jobs:         jobs,
		pollInterval: DefaultPollInterval,
		pollBudget:   DefaultPollBudget,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// Extract runs one extraction for the given source and returns the extracted
// text. The job is keyed by core.IdempotencyKey(sourceURI, contentVersion);
// if a non-terminal job already exists for that key, Extract returns
// storage.ErrJobActive without contacting the provider.
//
// Terminal outcomes map to distinct errors: ErrExtractionFailed when the
// provider rejects the document, ErrExtractionTimeout when the polling
// budget runs out or the wait is canceled. Transient poll errors are
// retried within the budget.
func (o *Orchestrator) Extract(ctx context.Context, sourceURI, contentVersion string) (string, error) {
	key := core.IdempotencyKey(sourceURI, contentVersion)

	job := &core.ExtractionJob{
		Id:             key,
		SourceURI:      sourceURI,
		ContentVersion: contentVersion,
		State:          core.JobStateSubmitted,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := o.jobs.CreateJob(ctx, job); err != nil {
		return "", err
	}

	providerJobID, err := o.provider.Submit(ctx, sourceURI)
	if err != nil {
		o.recordState(ctx, key, core.JobStateFailed, err.Error())
		return "", fmt.Errorf("%w: submit: %v", ErrExtractionFailed, err)
	}
	if err := o.jobs.SetProviderJob(ctx, key, providerJobID); err != nil {
		o.logger.Warn("failed to record provider job id", "job", key, "err", err)
	}
	o.recordState(ctx, key, core.JobStatePolling, "")

	o.logger.Info("extraction submitted",
		"source", sourceURI, "provider_job", providerJobID)

	return o.poll(ctx, key, providerJobID)
}

func (o *Orchestrator) poll(ctx context.Context, key core.ID, providerJobID string) (string, error) {
	deadline := time.Now().Add(o.pollBudget)
	timer := time.NewTimer(o.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Cancellation cuts the wait short; the job never learned a
			// provider verdict, so it is a timeout, not a failure.
			o.recordState(ctx, key, core.JobStateTimedOut, ctx.Err().Error())
			return "", fmt.Errorf("%w: %w", ErrExtractionTimeout, ctx.Err())
		case <-timer.C:
		}

		if time.Now().After(deadline) {
			reason := fmt.Sprintf("budget %s exhausted", o.pollBudget)
			o.recordState(ctx, key, core.JobStateTimedOut, reason)
			return "", fmt.Errorf("%w: %s", ErrExtractionTimeout, reason)
		}

		status, err := o.provider.Poll(ctx, providerJobID)
		if err != nil {
			// Transient; keep polling until the budget runs out.
			o.logger.Warn("poll failed", "provider_job", providerJobID, "err", err)
			timer.Reset(o.pollInterval)
			continue
		}

		switch status.State {
		case StateSucceeded:
			o.recordState(ctx, key, core.JobStateSucceeded, "")
			return status.Text, nil
		case StateFailed:
			o.recordState(ctx, key, core.JobStateFailed, status.Reason)
			return "", fmt.Errorf("%w: %s", ErrExtractionFailed, status.Reason)
		}

		timer.Reset(o.pollInterval)
	}
}

// recordState writes a transition to the ledger. Ledger errors are logged
// rather than returned; the extraction outcome takes precedence.
func (o *Orchestrator) recordState(ctx context.Context, key core.ID, state core.JobState, reason string) {
	if err := o.jobs.UpdateJobState(context.WithoutCancel(ctx), key, state, reason); err != nil {
		o.logger.Error("failed to record job state",
			"job", key, "state", state.String(), "err", err)
	}
}
