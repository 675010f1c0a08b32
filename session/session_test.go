package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"staychat/contract"
	"staychat/domain/chat"
	"staychat/domain/event"
	"staychat/mocks"
)

const (
	testConversation = chat.ConversationID("bkg-42")
	testParticipant  = chat.ParticipantID("guest-1")
)

// scriptedChannel is a channel whose events are pushed by the test.
// Events are buffered so a script can be written before the session
// even attaches the channel.
type scriptedChannel struct {
	mu     sync.Mutex
	events chan event.ChannelEvent
	sent   []chat.Outbound
	ready  bool
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{events: make(chan event.ChannelEvent, 16)}
}

func (c *scriptedChannel) Send(payload chat.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ready {
		return fmt.Errorf("not ready")
	}
	c.sent = append(c.sent, payload)
	return nil
}

func (c *scriptedChannel) Events() <-chan event.ChannelEvent { return c.events }

func (c *scriptedChannel) Close() error { return nil }

func (c *scriptedChannel) pushOpened() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	c.events <- event.Opened{}
}

func (c *scriptedChannel) pushMessage(m chat.Message) {
	c.events <- event.Inbound{Message: m}
}

func (c *scriptedChannel) pushClosed(reason string) {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	c.events <- event.Closed{Reason: reason}
}

func (c *scriptedChannel) sentPayloads() []chat.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chat.Outbound, len(c.sent))
	copy(out, c.sent)
	return out
}

// scriptedDialer hands out pre-queued channels in order. An empty queue
// means the dial fails, which is how the tests simulate an unreachable
// server.
type scriptedDialer struct {
	mu    sync.Mutex
	queue []*scriptedChannel
	dials int
}

func (d *scriptedDialer) push(ch *scriptedChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, ch)
}

func (d *scriptedDialer) Dial(_ context.Context, _ chat.ConversationID, _ chat.ParticipantID) (contract.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.queue) == 0 {
		return nil, fmt.Errorf("connection refused")
	}
	ch := d.queue[0]
	d.queue = d.queue[1:]
	return ch, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recordingSink collects every published session event.
type recordingSink struct {
	mu     sync.Mutex
	states []chat.ConnectionState
	msgs   []chat.Message
}

func (r *recordingSink) Consume(_ context.Context, e event.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev := e.(type) {
	case event.StateChanged:
		r.states = append(r.states, ev.To)
	case event.MessageAccepted:
		r.msgs = append(r.msgs, ev.Message)
	}
	return nil
}

func (r *recordingSink) stateLog() []chat.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.ConnectionState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *recordingSink) messageLog() []chat.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]chat.Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

type sinkFunc func(context.Context, event.SessionEvent) error

func (f sinkFunc) Consume(ctx context.Context, e event.SessionEvent) error { return f(ctx, e) }

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelError)
}

func emptyHistory(t *testing.T) *mocks.MockHistoryFetcher {
	t.Helper()
	history := mocks.NewMockHistoryFetcher(gomock.NewController(t))
	history.EXPECT().Fetch(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
	return history
}

func waitStatus(req *require.Assertions, s *Session, want chat.ConnectionState) {
	req.Eventually(func() bool {
		return s.Status() == want
	}, 3*time.Second, 5*time.Millisecond, "session never reached %s", want)
}

func TestSession_ConnectsOnOpenedEvent(t *testing.T) {
	req := require.New(t)

	// Given a reachable channel that acknowledges the subscription
	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)
	recorder := &recordingSink{}

	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant, Config{})
	s.Subscribe(recorder)

	// When the session starts
	s.Start(context.Background())
	defer s.Close()

	// Then it reports connecting first and connected once the stream is live
	waitStatus(req, s, chat.StateConnected)
	req.Equal([]chat.ConnectionState{chat.StateConnecting, chat.StateConnected}, recorder.stateLog())
	req.Empty(s.LastError())
}

func TestSession_EchoScenario(t *testing.T) {
	req := require.New(t)
	t0 := time.Now().UTC()

	// Given a conversation with one historical message
	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)
	history := mocks.NewMockHistoryFetcher(gomock.NewController(t))
	history.EXPECT().Fetch(gomock.Any(), testConversation).
		Return([]chat.Message{message("m1", "welcome", t0)}, nil)

	s := New(testLogger(), dialer, history, testConversation, testParticipant, Config{})
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateConnected)

	// When the other side speaks and we reply
	ch.pushMessage(message("m2", "anyone there?", t0.Add(time.Second)))
	req.Eventually(func() bool { return len(s.Messages()) == 2 },
		3*time.Second, 5*time.Millisecond)
	req.True(s.Send("  yo  "))

	// Then the sent text reached the transport trimmed
	payloads := ch.sentPayloads()
	req.Len(payloads, 1)
	req.Equal(testConversation, payloads[0].ConversationID)
	req.Equal("yo", payloads[0].Text)

	// And the server echo completes the timeline in order
	ch.pushMessage(message("m3", "yo", t0.Add(2*time.Second)))
	req.Eventually(func() bool { return len(s.Messages()) == 3 },
		3*time.Second, 5*time.Millisecond)
	timeline := s.Messages()
	req.Equal("m1", timeline[0].ID)
	req.Equal("m2", timeline[1].ID)
	req.Equal("m3", timeline[2].ID)
}

func TestSession_ReconnectsAfterDropAndResetsBudget(t *testing.T) {
	req := require.New(t)

	// Given three channels, each dropping after it connects. With a
	// budget of one retry, the second drop only recovers because a
	// successful connection resets the budget.
	ch1, ch2, ch3 := newScriptedChannel(), newScriptedChannel(), newScriptedChannel()
	ch1.pushOpened()
	ch2.pushOpened()
	ch3.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch1)
	dialer.push(ch2)
	dialer.push(ch3)
	recorder := &recordingSink{}

	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant,
		Config{MaxRetries: 1, BaseDelay: 5 * time.Millisecond})
	s.Subscribe(recorder)
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateConnected)

	// When the connection drops twice
	ch1.pushClosed("connection reset")
	req.Eventually(func() bool { return dialer.dialCount() == 2 },
		3*time.Second, 5*time.Millisecond)
	waitStatus(req, s, chat.StateConnected)
	ch2.pushClosed("connection reset")
	req.Eventually(func() bool { return dialer.dialCount() == 3 },
		3*time.Second, 5*time.Millisecond)

	// Then the session ends connected without ever exhausting
	waitStatus(req, s, chat.StateConnected)
	req.Equal([]chat.ConnectionState{
		chat.StateConnecting, chat.StateConnected,
		chat.StateDisconnected, chat.StateConnecting, chat.StateConnected,
		chat.StateDisconnected, chat.StateConnecting, chat.StateConnected,
	}, recorder.stateLog())
}

func TestSession_ExhaustsBudgetThenManualRetry(t *testing.T) {
	req := require.New(t)

	// Given an unreachable server and a budget of two retries
	dialer := &scriptedDialer{}
	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant,
		Config{MaxRetries: 2, BaseDelay: 2 * time.Millisecond})
	s.Start(context.Background())
	defer s.Close()

	// Then the session exhausts after the initial dial plus two retries
	waitStatus(req, s, chat.StateExhausted)
	req.Equal(3, dialer.dialCount())
	req.Contains(s.LastError(), "retry budget exhausted")

	// And stays put: no timer keeps dialing on its own
	time.Sleep(50 * time.Millisecond)
	req.Equal(3, dialer.dialCount())

	// When the server comes back and the user retries manually
	ch := newScriptedChannel()
	ch.pushOpened()
	dialer.push(ch)
	s.Retry()

	// Then the session recovers with a fresh budget
	waitStatus(req, s, chat.StateConnected)
	req.Empty(s.LastError())
}

func TestSession_SendFailsFastWhenNotConnected(t *testing.T) {
	req := require.New(t)

	dialer := &scriptedDialer{}
	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant,
		Config{MaxRetries: 1, BaseDelay: 2 * time.Millisecond})
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateExhausted)

	req.False(s.Send("hello?"))
}

func TestSession_SendRejectsBlankInput(t *testing.T) {
	req := require.New(t)

	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)
	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant, Config{})
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateConnected)

	// Blank input never reaches the transport, even when connected
	req.False(s.Send(""))
	req.False(s.Send("   \t  "))
	req.Empty(ch.sentPayloads())
}

func TestSession_CloseCancelsPendingRetry(t *testing.T) {
	req := require.New(t)

	// Given a failed dial with a long retry delay pending
	dialer := &scriptedDialer{}
	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant,
		Config{MaxRetries: 3, BaseDelay: 300 * time.Millisecond})
	s.Start(context.Background())
	waitStatus(req, s, chat.StateDisconnected)
	req.Equal(1, dialer.dialCount())

	// When the session closes before the timer fires
	s.Close()

	// Then no reconnect is attempted against the dead session
	time.Sleep(400 * time.Millisecond)
	req.Equal(1, dialer.dialCount())
}

func TestSession_HistoryFailureThenRetryRecovers(t *testing.T) {
	req := require.New(t)
	t0 := time.Now().UTC()

	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)
	history := mocks.NewMockHistoryFetcher(gomock.NewController(t))
	gomock.InOrder(
		history.EXPECT().Fetch(gomock.Any(), testConversation).
			Return(nil, fmt.Errorf("503 service unavailable")),
		history.EXPECT().Fetch(gomock.Any(), testConversation).
			Return([]chat.Message{message("m1", "welcome back", t0)}, nil),
	)

	s := New(testLogger(), dialer, history, testConversation, testParticipant, Config{})
	s.Start(context.Background())
	defer s.Close()

	// Then the startup failure parks the session in failed, not a crash
	waitStatus(req, s, chat.StateFailed)
	req.Contains(s.LastError(), "history fetch")
	req.Equal(0, dialer.dialCount())

	// When the user retries, history is refetched before connecting
	s.Retry()
	waitStatus(req, s, chat.StateConnected)
	timeline := s.Messages()
	req.Len(timeline, 1)
	req.Equal("m1", timeline[0].ID)
}

func TestSession_DuplicateDeliveryKeepsSingleCopy(t *testing.T) {
	req := require.New(t)
	t0 := time.Now().UTC()

	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)
	recorder := &recordingSink{}

	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant, Config{})
	s.Subscribe(recorder)
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateConnected)

	// When the stream redelivers the same message around a fresh one
	ch.pushMessage(message("m1", "hello", t0))
	ch.pushMessage(message("m1", "hello", t0))
	ch.pushMessage(message("m2", "still there?", t0.Add(time.Second)))

	// Then the timeline holds one copy each and sinks fire once each
	req.Eventually(func() bool { return len(s.Messages()) == 2 },
		3*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	req.Len(s.Messages(), 2)
	req.Len(recorder.messageLog(), 2)
}

func TestSession_MessageVisibleBeforeNotification(t *testing.T) {
	req := require.New(t)
	t0 := time.Now().UTC()

	ch := newScriptedChannel()
	ch.pushOpened()
	dialer := &scriptedDialer{}
	dialer.push(ch)

	s := New(testLogger(), dialer, emptyHistory(t), testConversation, testParticipant, Config{})
	notified := make(chan bool, 1)
	s.Subscribe(sinkFunc(func(_ context.Context, e event.SessionEvent) error {
		accepted, ok := e.(event.MessageAccepted)
		if !ok {
			return nil
		}
		// The accepted message must already be readable by the UI
		for _, m := range s.Messages() {
			if m.ID == accepted.Message.ID {
				notified <- true
				return nil
			}
		}
		notified <- false
		return nil
	}))
	s.Start(context.Background())
	defer s.Close()
	waitStatus(req, s, chat.StateConnected)

	ch.pushMessage(message("m1", "hello", t0))

	select {
	case visible := <-notified:
		req.True(visible, "sink fired before the message was visible")
	case <-time.After(3 * time.Second):
		req.Fail("sink never notified")
	}
}
