package sink

import (
	"context"
	"sync"

	"staychat/domain/chat"
	"staychat/domain/event"
)

// Timeline holds a simple local projection of session events: the
// messages in arrival order and the connection states traversed.
type Timeline struct {
	mu       sync.Mutex
	messages []chat.Message
	states   []chat.ConnectionState
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) Consume(_ context.Context, e event.SessionEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch evt := e.(type) {
	case event.MessageAccepted:
		t.messages = append(t.messages, evt.Message)
	case event.StateChanged:
		t.states = append(t.states, evt.To)
	}
	return nil
}

// Messages returns the observed messages in notification order.
func (t *Timeline) Messages() []chat.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// States returns the connection states in transition order.
func (t *Timeline) States() []chat.ConnectionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]chat.ConnectionState, len(t.states))
	copy(out, t.states)
	return out
}
