package extract

import "context"

// RunState is the provider-side state of an extraction run.
type RunState int

const (
	// StateRunning means the provider is still working on the document.
	StateRunning RunState = iota + 1
	// StateSucceeded means extracted text is available.
	StateSucceeded
	// StateFailed means the provider gave up on the document.
	StateFailed
)

// String returns the lowercase name of the state.
func (s RunState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status is one poll observation of an extraction run.
type Status struct {
	State RunState
	// Text holds the extracted document text when State is StateSucceeded.
	Text string
	// Reason describes the failure when State is StateFailed.
	Reason string
}

// Provider is an asynchronous text extraction service. Submit starts a run
// and returns the provider's job handle; Poll reports progress for that
// handle. Poll errors are treated as transient by the orchestrator and
// retried within the polling budget.
type Provider interface {
	Submit(ctx context.Context, sourceURI string) (string, error)
	Poll(ctx context.Context, providerJobID string) (Status, error)
}
