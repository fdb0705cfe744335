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


// Package mock provides a scripted extraction provider for tests and local
// runs without an extraction service.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/docstream/extract"
)

// MockProvider implements extract.Provider with configurable behavior.
// By default Submit returns a deterministic job ID and Poll succeeds
// immediately, returning the source URI itself as the extracted text.
type MockProvider struct {
	mu sync.Mutex

	// SubmitFunc overrides Submit behavior when set.
	SubmitFunc func(ctx context.Context, sourceURI string) (string, error)

	// PollFunc overrides Poll behavior when set.
	PollFunc func(ctx context.Context, providerJobID string) (extract.Status, error)

	// Script, when non-empty, is consumed one Status per Poll call after
	// which the last entry repeats. Ignored when PollFunc is set.
	Script []extract.Status

	// Text is the extracted text the default Poll returns.
	Text string

	SubmitCalls int
	PollCalls   int

	submitted map[string]string
	scriptPos int
}

// NewMockProvider creates a mock provider that immediately succeeds with
// the given text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{Text: text}
}

func (m *MockProvider) Submit(ctx context.Context, sourceURI string) (string, error) {
	m.mu.Lock()
	m.SubmitCalls++
	n := m.SubmitCalls
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, sourceURI)
	}

	jobID := fmt.Sprintf("mock-job-%d", n)
	m.mu.Lock()
	if m.submitted == nil {
		m.submitted = make(map[string]string)
	}
	m.submitted[jobID] = sourceURI
	m.mu.Unlock()
	return jobID, nil
}

func (m *MockProvider) Poll(ctx context.Context, providerJobID string) (extract.Status, error) {
	m.mu.Lock()
	m.PollCalls++
	m.mu.Unlock()

	if m.PollFunc != nil {
		return m.PollFunc(ctx, providerJobID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Script) > 0 {
		status := m.Script[m.scriptPos]
		if m.scriptPos < len(m.Script)-1 {
			m.scriptPos++
		}
		return status, nil
	}

	text := m.Text
	if text == "" {
		text = m.submitted[providerJobID]
	}
	return extract.Status{State: extract.StateSucceeded, Text: text}, nil
}

// Reset clears call counts and rewinds the script.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitCalls = 0
	m.PollCalls = 0
	m.scriptPos = 0
	m.submitted = nil
}
