package core

import (
	"testing"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "same content produces same ID",
			content: "test content",
		},
		{
			name:    "empty string",
			content: "",
		},
		{
			name:    "long content",
			content: "This is a much longer piece of content that should still hash consistently",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestIdempotencyKey(t *testing.T) {
	k1 := IdempotencyKey("s3://bucket/report.pdf", "v1")
	k2 := IdempotencyKey("s3://bucket/report.pdf", "v1")
	if k1 != k2 {
		t.Errorf("IdempotencyKey() not deterministic: %d vs %d", k1, k2)
	}

	// A new version of the same object must produce a new key.
	if k3 := IdempotencyKey("s3://bucket/report.pdf", "v2"); k3 == k1 {
		t.Errorf("IdempotencyKey() ignored version token")
	}

	// The separator must keep (uri, version) pairs unambiguous.
	if IdempotencyKey("s3://bucket/a", "bv1") == IdempotencyKey("s3://bucket/ab", "v1") {
		t.Errorf("IdempotencyKey() collides across uri/version boundary")
	}
}

func TestJobState_Terminal(t *testing.T) {
	tests := []struct {
		state JobState
		want  bool
	}{
		{JobStateSubmitted, false},
		{JobStatePolling, false},
		{JobStateSucceeded, true},
		{JobStateFailed, true},
		{JobStateTimedOut, true},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJobState_CanTransition(t *testing.T) {
	tests := []struct {
		name string
		from JobState
		to   JobState
		want bool
	}{
		{"submitted to polling", JobStateSubmitted, JobStatePolling, true},
		{"submitted straight to failed", JobStateSubmitted, JobStateFailed, true},
		{"polling to succeeded", JobStatePolling, JobStateSucceeded, true},
		{"polling to timed out", JobStatePolling, JobStateTimedOut, true},
		{"polling back to submitted", JobStatePolling, JobStateSubmitted, false},
		{"succeeded to failed", JobStateSucceeded, JobStateFailed, false},
		{"timed out to polling", JobStateTimedOut, JobStatePolling, false},
		{"failed to succeeded", JobStateFailed, JobStateSucceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestUploadEvent_SourceURI(t *testing.T) {
	e := UploadEvent{Bucket: "uploads", Key: "reports/q3.pdf", Type: EventTypeCreated}
	if got := e.SourceURI(); got != "s3://uploads/reports/q3.pdf" {
		t.Errorf("SourceURI() = %q", got)
	}

	local := UploadEvent{Key: "/tmp/q3.pdf", Type: EventTypeCreated}
	if got := local.SourceURI(); got != "file:///tmp/q3.pdf" {
		t.Errorf("SourceURI() = %q", got)
	}
}

func TestTitleFromKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"reports/q3.pdf", "q3.pdf"},
		{"q3.pdf", "q3.pdf"},
		{"a/b/c/deep.pdf", "deep.pdf"},
	}

	for _, tt := range tests {
		if got := TitleFromKey(tt.key); got != tt.want {
			t.Errorf("TitleFromKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
