package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"staychat/domain/chat"
	"staychat/domain/event"
)

func TestTimeline_ProjectsMessagesAndStates(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	ctx := context.Background()

	req.NoError(timeline.Consume(ctx, event.StateChanged{
		Conversation: "bkg-42",
		From:         chat.StateConnecting,
		To:           chat.StateConnected,
		At:           time.Now().UTC(),
	}))
	req.NoError(timeline.Consume(ctx, accepted("m1", "hello")))
	req.NoError(timeline.Consume(ctx, accepted("m2", "hi there")))

	messages := timeline.Messages()
	req.Len(messages, 2)
	req.Equal("m1", messages[0].ID)
	req.Equal("m2", messages[1].ID)
	req.Equal([]chat.ConnectionState{chat.StateConnected}, timeline.States())
}

func TestTimeline_AccessorsReturnCopies(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()

	req.NoError(timeline.Consume(context.Background(), accepted("m1", "hello")))

	snapshot := timeline.Messages()
	snapshot[0].Content = "mutated"
	req.Equal("hello", timeline.Messages()[0].Content)
}
