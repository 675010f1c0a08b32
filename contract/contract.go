//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"

	"staychat/domain/chat"
	"staychat/domain/event"
)

// Channel owns exactly one live connection for a conversation.
// Opening is asynchronous: readiness is reported by an event.Opened on
// Events, never by the dial call itself.
type Channel interface {
	// Send hands a payload to the server. Before the channel reported
	// Opened it returns errors.ErrNotConnected; nothing is queued.
	Send(payload chat.Outbound) error
	// Events surfaces channel lifecycle and inbound messages.
	// The channel closes it after Close or a terminal failure.
	Events() <-chan event.ChannelEvent
	// Close tears the connection down. Idempotent.
	Close() error
}

// Dialer creates channels. Only the session's reconnection logic may call
// it; the resulting Channel is exclusively owned by that session.
type Dialer interface {
	Dial(ctx context.Context, conversation chat.ConversationID,
		participant chat.ParticipantID) (Channel, error)
}

// HistoryFetcher loads the paginated message history. It is called exactly
// once per session lifetime, before the stream becomes authoritative.
type HistoryFetcher interface {
	Fetch(ctx context.Context, conversation chat.ConversationID) ([]chat.Message, error)
}

// EventSink consumes session events (timeline projections, archive, UI).
type EventSink interface {
	Consume(ctx context.Context, e event.SessionEvent) error
}
