package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"staychat/contract"
	"staychat/domain/chat"
	"staychat/domain/event"
	"staychat/errors"
)

// TokenSource supplies the bearer token attached to outgoing requests.
type TokenSource interface {
	Token() (string, error)
}

// WebsocketDialer opens one live channel per Dial call against the
// per-conversation stream endpoint.
type WebsocketDialer struct {
	log              *slog.Logger
	baseURL          string
	tokens           TokenSource
	eventBuffer      int
	handshakeTimeout time.Duration
}

func NewWebsocketDialer(log *slog.Logger, baseURL string, tokens TokenSource,
	eventBuffer int, handshakeTimeout time.Duration) *WebsocketDialer {
	return &WebsocketDialer{
		log:              log,
		baseURL:          baseURL,
		tokens:           tokens,
		eventBuffer:      eventBuffer,
		handshakeTimeout: handshakeTimeout,
	}
}

// Dial performs the WebSocket handshake and sends the subscribe frame.
// Readiness is reported asynchronously: the server answers with a ready
// frame, surfaced as event.Opened by the read loop. Sends before that
// are rejected with ErrNotConnected.
func (d *WebsocketDialer) Dial(ctx context.Context, conversation chat.ConversationID,
	participant chat.ParticipantID) (contract.Channel, error) {
	header := http.Header{}
	if d.tokens != nil {
		token, err := d.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("token source: %w", err)
		}
		header.Set("Authorization", "Bearer "+token)
	}

	endpoint := fmt.Sprintf("%s/conversations/%s/stream",
		d.baseURL, url.PathEscape(string(conversation)))
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	ch := &websocketChannel{
		log:    d.log,
		conn:   conn,
		events: make(chan event.ChannelEvent, d.eventBuffer),
		closed: make(chan struct{}),
	}
	sub := outboundFrame{
		Type:           frameSubscribe,
		ConversationID: string(conversation),
		ParticipantID:  string(participant),
	}
	if err := ch.writeFrame(sub); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	go ch.readLoop()
	return ch, nil
}

// websocketChannel owns a single underlying connection. The session is
// its sole consumer; once abandoned it is always Closed, which unblocks
// the read loop.
type websocketChannel struct {
	log    *slog.Logger
	conn   *websocket.Conn
	events chan event.ChannelEvent
	opened atomic.Bool

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *websocketChannel) Events() <-chan event.ChannelEvent {
	return c.events
}

func (c *websocketChannel) Send(payload chat.Outbound) error {
	if !c.opened.Load() {
		return errors.ErrNotConnected
	}
	return c.writeFrame(outboundFrame{
		Type:           frameSend,
		ConversationID: string(payload.ConversationID),
		Text:           payload.Text,
	})
}

func (c *websocketChannel) writeFrame(f outboundFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *websocketChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
	return nil
}

// readLoop pumps server frames into the event channel until the
// connection dies. One malformed frame must not sacrifice a healthy
// channel: it is logged and dropped.
func (c *websocketChannel) readLoop() {
	defer close(c.events)
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				// Locally closed; not a transport failure.
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					c.emit(event.Closed{Reason: err.Error()})
				} else {
					c.emit(event.Failed{Err: err})
				}
			}
			return
		}

		frame, err := decodeFrame(raw)
		if err != nil {
			c.log.Warn("dropping malformed frame", "error", err)
			continue
		}
		switch frame.Type {
		case frameReady:
			c.opened.Store(true)
			c.emit(event.Opened{})
		case frameMessage:
			c.emit(event.Inbound{Message: toMessage(*frame.Message)})
		case frameError:
			c.emit(event.Failed{Err: fmt.Errorf("server error: %s", frame.Error)})
			_ = c.conn.Close()
			return
		}
	}
}

// emit never blocks past channel death: an abandoned channel is always
// Closed by its owner, which releases the read loop.
func (c *websocketChannel) emit(e event.ChannelEvent) {
	select {
	case c.events <- e:
	case <-c.closed:
	}
}
