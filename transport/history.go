package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/samber/lo"

	"staychat/domain/chat"
)

// maxHistoryPages is a safety stop against a server that keeps returning
// cursors. A conversation longer than this is truncated at the old end.
const maxHistoryPages = 50

// HistoryClient fetches the paginated message history of a conversation
// over HTTP. It walks next_cursor pages until the server reports the end;
// the session calls it exactly once per lifetime.
type HistoryClient struct {
	log     *slog.Logger
	baseURL string
	client  *http.Client
	tokens  TokenSource
}

func NewHistoryClient(log *slog.Logger, baseURL string, client *http.Client,
	tokens TokenSource) *HistoryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HistoryClient{log: log, baseURL: baseURL, client: client, tokens: tokens}
}

type historyPage struct {
	Items      []wireMessage `json:"items"`
	NextCursor string        `json:"next_cursor"`
}

func (h *HistoryClient) Fetch(ctx context.Context, conversation chat.ConversationID) ([]chat.Message, error) {
	var all []chat.Message
	cursor := ""
	for page := 0; page < maxHistoryPages; page++ {
		p, err := h.fetchPage(ctx, conversation, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, lo.Map(p.Items, func(w wireMessage, _ int) chat.Message {
			return toMessage(w)
		})...)
		if p.NextCursor == "" {
			return all, nil
		}
		cursor = p.NextCursor
	}
	h.log.Warn("history pagination stopped at page limit",
		"conversation_id", conversation,
		"pages", maxHistoryPages)
	return all, nil
}

func (h *HistoryClient) fetchPage(ctx context.Context, conversation chat.ConversationID,
	cursor string) (historyPage, error) {
	endpoint := fmt.Sprintf("%s/conversations/%s/messages",
		h.baseURL, url.PathEscape(string(conversation)))
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return historyPage{}, err
	}
	if h.tokens != nil {
		token, err := h.tokens.Token()
		if err != nil {
			return historyPage{}, fmt.Errorf("token source: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return historyPage{}, fmt.Errorf("history request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return historyPage{}, fmt.Errorf("history request: unexpected status %d", resp.StatusCode)
	}
	var p historyPage
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return historyPage{}, fmt.Errorf("history decode: %w", err)
	}
	return p, nil
}
