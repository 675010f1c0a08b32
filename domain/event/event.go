// Package event defines the events flowing between the transport channel,
// the session, and its sinks.
package event

import (
	"time"

	"staychat/domain/chat"
)

// ChannelEvent is emitted by a transport channel on its event surface.
type ChannelEvent interface {
	channelEvent()
}

// Opened signals that the channel is ready for traffic.
// It is always delivered asynchronously, never from the dial call itself.
type Opened struct{}

// Inbound carries a message pushed by the server.
type Inbound struct {
	Message chat.Message
}

// Closed signals that the server or the network ended the channel.
type Closed struct {
	Reason string
}

// Failed signals a transport-level error on the channel.
type Failed struct {
	Err error
}

func (Opened) channelEvent()  {}
func (Inbound) channelEvent() {}
func (Closed) channelEvent()  {}
func (Failed) channelEvent()  {}

// SessionEvent is delivered to subscribed sinks.
type SessionEvent interface {
	ConversationID() chat.ConversationID
}

// MessageAccepted fires after a new message became visible in the
// reconciled timeline. Duplicate deliveries of an already-known ID
// never produce this event.
type MessageAccepted struct {
	Conversation chat.ConversationID
	Message      chat.Message
}

func (e MessageAccepted) ConversationID() chat.ConversationID {
	return e.Conversation
}

// StateChanged fires on every connection state transition.
type StateChanged struct {
	Conversation chat.ConversationID
	From         chat.ConnectionState
	To           chat.ConnectionState
	Err          error
	At           time.Time
}

func (e StateChanged) ConversationID() chat.ConversationID {
	return e.Conversation
}
