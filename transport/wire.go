// Package transport provides the concrete collaborators of a session: the
// WebSocket live channel and the HTTP history client. Both speak the JSON
// wire shapes of the marketplace conversation service.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"staychat/domain/chat"
	"staychat/errors"
)

// Frame types exchanged over the live channel.
const (
	frameSubscribe = "subscribe"
	frameSend      = "send"
	frameReady     = "ready"
	frameMessage   = "message"
	frameError     = "error"
)

// outboundFrame is the JSON envelope written to the server.
type outboundFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	ParticipantID  string `json:"participant_id,omitempty"`
	Text           string `json:"text,omitempty"`
}

// inboundFrame is the JSON envelope read from the server.
type inboundFrame struct {
	Type    string       `json:"type" validate:"required,oneof=ready message error"`
	Message *wireMessage `json:"message,omitempty" validate:"required_if=Type message"`
	Error   string       `json:"error,omitempty"`
}

// wireMessage mirrors the conversation service's message payload,
// shared by the stream and the paginated history endpoint.
type wireMessage struct {
	ID             string    `json:"id" validate:"required"`
	ConversationID string    `json:"conversation_id" validate:"required"`
	SenderID       string    `json:"sender_id" validate:"required"`
	Text           string    `json:"text" validate:"required"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at" validate:"required"`
}

var validate = validator.New()

// decodeFrame parses and validates a raw frame. A frame that cannot be
// interpreted is a malformed event: the caller drops it without tearing
// down the channel.
func decodeFrame(raw []byte) (inboundFrame, error) {
	var f inboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return inboundFrame{}, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	if err := validate.Struct(f); err != nil {
		return inboundFrame{}, fmt.Errorf("%w: %v", errors.ErrMalformedEvent, err)
	}
	return f, nil
}

func toMessage(w wireMessage) chat.Message {
	return chat.Message{
		ID:             w.ID,
		ConversationID: chat.ConversationID(w.ConversationID),
		SenderID:       chat.ParticipantID(w.SenderID),
		Content:        w.Text,
		IsRead:         w.IsRead,
		CreatedAt:      w.CreatedAt,
	}
}
