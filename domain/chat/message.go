// Package chat contains core concepts of the conversation client.
// This file defines Message records and related rules.
// Messages are immutable and identified by their server-assigned ID.
package chat

import (
	"strings"
	"time"
)

// ConversationID scopes a transport session to one booking conversation.
type ConversationID string

// ParticipantID identifies the local actor. It only classifies message
// provenance (self vs. other); authorization stays server-side.
type ParticipantID string

// Message represents an immutable chat event.
// Identity is the server-assigned ID: two records sharing an ID are the
// same message regardless of any other field difference.
type Message struct {
	ID             string
	ConversationID ConversationID
	SenderID       ParticipantID
	Content        string
	IsRead         bool
	CreatedAt      time.Time
}

// OwnedBy reports whether the message was written by the given participant.
func (m Message) OwnedBy(p ParticipantID) bool {
	return m.SenderID == p
}

// Outbound is the payload handed to the transport for delivery.
// The created Message comes back asynchronously as a stream echo,
// never as a direct response to the send.
type Outbound struct {
	ConversationID ConversationID
	Text           string
}

// NormalizeText trims an outgoing message body.
// An empty result means there is nothing worth sending.
func NormalizeText(text string) string {
	return strings.TrimSpace(text)
}
