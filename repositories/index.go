package repositories

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blugelabs/bluge"

	"staychat/domain/chat"
)

// MessageIndex maintains a Bluge full-text index over archived messages,
// so a participant can search their own conversation history offline.
type MessageIndex struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{log: log, writer: writer}
}

// Hit is a single search result, rebuilt from stored fields.
type Hit struct {
	MessageID      string
	ConversationID string
	SenderID       string
	Content        string
}

// Index upserts a message document. Keyed by message ID, so duplicate
// delivery replaces rather than duplicates.
func (i *MessageIndex) Index(m chat.Message) error {
	doc := bluge.NewDocument(m.ID).
		AddField(bluge.NewTextField("content", m.Content).StoreValue()).
		AddField(bluge.NewKeywordField("conversation_id", string(m.ConversationID)).StoreValue()).
		AddField(bluge.NewKeywordField("sender_id", string(m.SenderID)).StoreValue()).
		AddField(bluge.NewDateTimeField("created_at", m.CreatedAt))
	return i.writer.Update(doc.ID(), doc)
}

// Search matches terms against message content, optionally scoped to one
// conversation. Results come back by relevance.
func (i *MessageIndex) Search(ctx context.Context, terms string,
	conversation chat.ConversationID, limit int) ([]Hit, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("index reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	var query bluge.Query = bluge.NewMatchQuery(terms).SetField("content")
	if conversation != "" {
		query = bluge.NewBooleanQuery().
			AddMust(query).
			AddMust(bluge.NewTermQuery(string(conversation)).SetField("conversation_id"))
	}

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	var hits []Hit
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			return hits, nil
		}
		var hit Hit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				hit.MessageID = string(value)
			case "content":
				hit.Content = string(value)
			case "conversation_id":
				hit.ConversationID = string(value)
			case "sender_id":
				hit.SenderID = string(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
}
