package dispatch

import (
	"context"

	"github.com/poiesic/docstream/core"
)

// ChannelSource is a Source fed programmatically, used by the HTTP event
// endpoint and in tests.
type ChannelSource struct {
	events chan core.UploadEvent
}

var _ Source = (*ChannelSource)(nil)

// NewChannelSource creates a channel-backed event source with the given
// buffer size.
func NewChannelSource(buffer int) *ChannelSource {
	if buffer < 0 {
		buffer = 0
	}
	return &ChannelSource{events: make(chan core.UploadEvent, buffer)}
}

// Events returns the event channel.
func (s *ChannelSource) Events(_ context.Context) (<-chan core.UploadEvent, error) {
	return s.events, nil
}

// Push delivers an event to the dispatcher. It blocks when the buffer is
// full and the context is not done.
func (s *ChannelSource) Push(ctx context.Context, event core.UploadEvent) error {
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the source. The dispatcher's Run returns once the channel
// drains.
func (s *ChannelSource) Close() {
	close(s.events)
}
