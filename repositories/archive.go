//go:generate go run go.uber.org/mock/mockgen -source=archive.go -destination=../mocks/mock_archive.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"staychat/domain/chat"
)

// IMessageArchive persists reconciled messages locally. The archive is a
// client-side cache for offline display and search; the history endpoint
// stays authoritative.
type IMessageArchive interface {
	Store(m chat.Message) error
	Recent(conversation chat.ConversationID, cursor *string) ([]chat.Message, *string, error)
}

type MessageArchive struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageArchive(db *badger.DB, log *slog.Logger, limitMessages *int) MessageArchive {
	return MessageArchive{db: db, log: log, limitMessages: limitMessages}
}

// archivedMessage is the JSON value stored in BadgerDB.
type archivedMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	At             int64  `json:"at"`
}

// Store persists a message in BadgerDB.
// The key is formatted as "msg:{conversation_id}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message ID as a collision
//     disconnector if two messages share the same nanosecond.
//
// Re-storing an already-archived message overwrites the same key, so
// duplicate delivery stays idempotent at the storage level too.
func (a MessageArchive) Store(m chat.Message) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		m.ConversationID,
		m.CreatedAt.UnixNano(),
		m.ID,
	)
	bytes, err := json.Marshal(fromMessage(m))
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent retrieves archived messages for a conversation using a reverse
// prefix scan, newest first. Thanks to the padded timestamp in the key,
// messages are naturally sorted by time. It stops collecting once the
// configured limitMessages is reached and returns a cursor for the next
// page.
func (a MessageArchive) Recent(conversation chat.ConversationID, cursor *string) ([]chat.Message, *string, error) {
	var rawValues [][]byte
	var lastKey string
	err := a.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversation)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if a.limitMessages != nil && len(rawValues) == *a.limitMessages {
				a.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *a.limitMessages))
				break
			}
			item := it.Item()
			// Memorize the cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawValues = append(rawValues, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []chat.Message
	for _, raw := range rawValues {
		var archived archivedMessage
		if err = json.Unmarshal(raw, &archived); err != nil {
			return nil, nil, err
		}
		messages = append(messages, toArchivedMessage(archived))
	}
	return messages, &lastKey, nil
}

func fromMessage(m chat.Message) archivedMessage {
	return archivedMessage{
		ID:             m.ID,
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		IsRead:         m.IsRead,
		At:             m.CreatedAt.UnixNano(),
	}
}

func toArchivedMessage(a archivedMessage) chat.Message {
	return chat.Message{
		ID:             a.ID,
		ConversationID: chat.ConversationID(a.ConversationID),
		SenderID:       chat.ParticipantID(a.SenderID),
		Content:        a.Content,
		IsRead:         a.IsRead,
		CreatedAt:      time.Unix(0, a.At).UTC(),
	}
}
