// Package session implements the client-side conversation session: one
// object the UI holds for the lifetime of an open conversation. It owns
// the reconnection state machine, the retry budget, and the reconciled
// message timeline, and exposes them as observable state instead of
// raising transport failures at the caller.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"staychat/contract"
	"staychat/domain/chat"
	"staychat/domain/event"
	"staychat/errors"
)

// stateUnstarted is the internal pre-Start value. Status reports it as
// connecting so the UI never sees a sixth state.
const stateUnstarted = chat.ConnectionState(-1)

// Config controls the reconnection policy of a session.
type Config struct {
	// MaxRetries bounds automatic reconnect attempts since the last
	// successful connection. Once spent, the session goes exhausted
	// and only a manual Retry revives it.
	MaxRetries int
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the growing delay between consecutive retries.
	MaxDelay time.Duration
	// SinkTimeout bounds each sink notification.
	SinkTimeout time.Duration
	// CommandBuffer sizes the UI command channel.
	CommandBuffer int
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = 5 * time.Second
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = 8
	}
	return c
}

type command interface{}

type sendCommand struct {
	text  string
	reply chan bool
}

type retryCommand struct{}

type dialResult struct {
	gen uint64
	ch  contract.Channel
	err error
}

// Session is the facade a UI holds for one open conversation.
//
// All state transitions, retries, and message ingestion happen on a single
// run-loop goroutine, so the state machine needs no internal ordering
// logic. UI-facing reads take a snapshot under a mutex whose only writer
// is that loop; Send and Retry are routed through the loop so a send
// racing a channel swap is rejected deterministically.
type Session struct {
	log          *slog.Logger
	dialer       contract.Dialer
	history      contract.HistoryFetcher
	conversation chat.ConversationID
	participant  chat.ParticipantID
	cfg          Config

	mu         sync.RWMutex
	state      chat.ConnectionState
	lastErr    error
	reconciler *Reconciler
	sinks      []contract.EventSink
	started    bool

	commands chan command
	dials    chan dialResult
	done     chan struct{}
	cancel   context.CancelFunc
	closing  sync.Once

	// Loop-owned; never touched outside run and its helpers.
	policy     *RetryPolicy
	budget     int
	generation uint64
	channel    contract.Channel
	retryTimer *time.Timer
	retryFires <-chan time.Time
}

func New(log *slog.Logger, dialer contract.Dialer, history contract.HistoryFetcher,
	conversation chat.ConversationID, participant chat.ParticipantID, cfg Config) *Session {
	cfg = cfg.withDefaults()
	return &Session{
		log:          log,
		dialer:       dialer,
		history:      history,
		conversation: conversation,
		participant:  participant,
		cfg:          cfg,
		state:        stateUnstarted,
		reconciler:   NewReconciler(),
		commands:     make(chan command, cfg.CommandBuffer),
		dials:        make(chan dialResult, 1),
		done:         make(chan struct{}),
		policy:       NewRetryPolicy(cfg.BaseDelay, cfg.MaxDelay),
	}
}

// Subscribe registers a sink for session events. Every accepted message
// is visible through Messages before its notification fires.
func (s *Session) Subscribe(sink contract.EventSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Start launches the session: history fetch, timeline seed, then the
// connect loop. It returns immediately.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.run(runCtx)
}

// Close stops the session: the channel is closed, any pending retry timer
// is cancelled, and late asynchronous completions are discarded instead of
// mutating state. Blocks until the run loop has exited. Idempotent.
func (s *Session) Close() {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return
	}
	s.closing.Do(func() {
		s.cancel()
	})
	<-s.done
}

// Status returns the current connection state.
func (s *Session) Status() chat.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == stateUnstarted {
		return chat.StateConnecting
	}
	return s.state
}

// LastError returns the most recent transport or startup error, or the
// empty string. Cleared on every successful connection.
func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastErr == nil {
		return ""
	}
	return s.lastErr.Error()
}

// Messages returns the reconciled timeline in display order.
func (s *Session) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconciler.Snapshot()
}

// Send hands text to the transport. It fails fast with false when the
// session is not connected or the text trims to empty; the transport is
// never contacted in either case. True means the handoff succeeded, not
// that the server accepted the message: confirmation arrives later as an
// echoed Message on the stream.
func (s *Session) Send(text string) bool {
	text = chat.NormalizeText(text)
	if text == "" {
		return false
	}
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return false
	}

	reply := make(chan bool, 1)
	select {
	case s.commands <- sendCommand{text: text, reply: reply}:
	case <-s.done:
		return false
	}
	select {
	case ok := <-reply:
		return ok
	case <-s.done:
		return false
	}
}

// Retry manually restarts a failed or exhausted session with a fresh
// retry budget. A no-op in any other state.
func (s *Session) Retry() {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if !started {
		return
	}
	select {
	case s.commands <- retryCommand{}:
	case <-s.done:
	}
}

// run is the single logical execution sequence of the session. The only
// suspension points are channel events, dial and fetch completions, the
// retry timer, and UI commands.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.teardown()

	if s.bootstrap(ctx) {
		s.beginConnect(ctx)
	}

	for {
		var events <-chan event.ChannelEvent
		if s.channel != nil {
			events = s.channel.Events()
		}
		select {
		case <-ctx.Done():
			return
		case res := <-s.dials:
			s.onDialResult(ctx, res)
		case evt, ok := <-events:
			s.onChannelEvent(ctx, evt, ok)
		case <-s.retryFires:
			s.onRetryTimer(ctx)
		case cmd := <-s.commands:
			s.onCommand(ctx, cmd)
		}
	}
}

// bootstrap loads history and seeds the timeline. On failure the session
// is left in the failed state, recoverable through Retry.
func (s *Session) bootstrap(ctx context.Context) bool {
	history, err := s.history.Fetch(ctx, s.conversation)
	if err != nil {
		if ctx.Err() == nil {
			s.transition(ctx, chat.StateFailed, fmt.Errorf("history fetch: %w", err))
		}
		return false
	}
	s.mu.Lock()
	s.reconciler.Seed(history)
	s.mu.Unlock()
	s.log.Debug("timeline seeded from history",
		"conversation_id", s.conversation,
		"messages", len(history))
	return true
}

// beginConnect opens a new channel generation. The dial runs in a helper
// goroutine so the loop keeps draining events; a completion arriving for
// an abandoned generation is closed and discarded.
func (s *Session) beginConnect(ctx context.Context) {
	s.generation++
	gen := s.generation
	s.transition(ctx, chat.StateConnecting, nil)

	go func() {
		ch, err := s.dialer.Dial(ctx, s.conversation, s.participant)
		select {
		case s.dials <- dialResult{gen: gen, ch: ch, err: err}:
		case <-ctx.Done():
			if ch != nil {
				_ = ch.Close()
			}
		}
	}()
}

func (s *Session) onDialResult(ctx context.Context, res dialResult) {
	if res.gen != s.generation {
		// Stale completion from before a swap or shutdown.
		if res.ch != nil {
			_ = res.ch.Close()
		}
		return
	}
	if res.err != nil {
		s.onChannelDown(ctx, fmt.Errorf("dial: %w", res.err))
		return
	}
	// Connected is declared on the Opened event, not on dial success.
	s.channel = res.ch
}

func (s *Session) onChannelEvent(ctx context.Context, evt event.ChannelEvent, ok bool) {
	if !ok {
		s.onChannelDown(ctx, fmt.Errorf("event stream ended"))
		return
	}
	switch e := evt.(type) {
	case event.Opened:
		s.budget = 0
		s.policy.Reset()
		s.transition(ctx, chat.StateConnected, nil)
	case event.Inbound:
		s.ingest(ctx, e.Message)
	case event.Closed:
		s.onChannelDown(ctx, fmt.Errorf("channel closed: %s", e.Reason))
	case event.Failed:
		s.onChannelDown(ctx, e.Err)
	}
}

// onChannelDown applies the disconnected transition and either schedules
// the next retry or declares the budget exhausted.
func (s *Session) onChannelDown(ctx context.Context, cause error) {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	s.generation++

	s.transition(ctx, chat.StateDisconnected, cause)
	if s.budget >= s.cfg.MaxRetries {
		s.transition(ctx, chat.StateExhausted,
			fmt.Errorf("%w after %d attempts: %v", errors.ErrRetriesExhausted, s.budget, cause))
		return
	}

	delay := s.policy.Next()
	s.log.Debug("retry scheduled",
		"conversation_id", s.conversation,
		"attempt", s.budget+1,
		"delay", delay)
	t := time.NewTimer(delay)
	s.retryTimer = t
	s.retryFires = t.C
}

func (s *Session) onRetryTimer(ctx context.Context) {
	s.retryTimer = nil
	s.retryFires = nil
	s.budget++
	s.beginConnect(ctx)
}

func (s *Session) onCommand(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case sendCommand:
		c.reply <- s.handleSend(c.text)
	case retryCommand:
		s.handleRetry(ctx)
	}
}

func (s *Session) handleSend(text string) bool {
	if s.Status() != chat.StateConnected || s.channel == nil {
		return false
	}
	err := s.channel.Send(chat.Outbound{ConversationID: s.conversation, Text: text})
	if err != nil {
		s.log.Warn("send rejected by transport",
			"conversation_id", s.conversation,
			"error", err)
		return false
	}
	return true
}

func (s *Session) handleRetry(ctx context.Context) {
	st := s.Status()
	if st != chat.StateFailed && st != chat.StateExhausted {
		return
	}
	s.budget = 0
	s.policy.Reset()

	s.mu.RLock()
	seeded := s.reconciler.Seeded()
	s.mu.RUnlock()
	if !seeded && !s.bootstrap(ctx) {
		return
	}
	s.beginConnect(ctx)
}

// ingest feeds a streamed message through the reconciler. The new message
// is visible through Messages before any sink notification fires.
func (s *Session) ingest(ctx context.Context, m chat.Message) {
	s.mu.Lock()
	appended := s.reconciler.Ingest(m)
	s.mu.Unlock()
	if !appended {
		// Duplicate delivery is expected under at-least-once semantics.
		return
	}
	s.publish(ctx, event.MessageAccepted{Conversation: s.conversation, Message: m})
}

func (s *Session) transition(ctx context.Context, to chat.ConnectionState, cause error) {
	s.mu.Lock()
	from := s.state
	s.state = to
	switch {
	case to == chat.StateConnected:
		s.lastErr = nil
	case cause != nil:
		s.lastErr = cause
	}
	s.mu.Unlock()

	s.log.Debug("connection state changed",
		"conversation_id", s.conversation,
		"from", from,
		"to", to,
		"error", cause)
	s.publish(ctx, event.StateChanged{
		Conversation: s.conversation,
		From:         from,
		To:           to,
		Err:          cause,
		At:           time.Now().UTC(),
	})
}

func (s *Session) publish(ctx context.Context, e event.SessionEvent) {
	s.mu.RLock()
	sinks := make([]contract.EventSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.RUnlock()

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, s.cfg.SinkTimeout)
		if err := sink.Consume(sinkCtx, e); err != nil {
			s.log.Warn("sink rejected event", "error", err)
		}
		cancel()
	}
}

// teardown releases everything the loop owns. A retry timer pending at
// close time must never fire a reconnect against a dead session.
func (s *Session) teardown() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
		s.retryFires = nil
	}
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
	s.generation++
	s.log.Debug("session stopped", "conversation_id", s.conversation)
}
