package chatops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// apiBase mirrors the original Telegram Bot API endpoint template.
// Var (not const) so tests can redirect it at a local test server.
var apiBase = "https://api.telegram.org/bot%s/%s"

// TelegramTransport is the HTTP long-poll Transport backing the chat
// operator against the Telegram Bot API (getUpdates/sendMessage).
type TelegramTransport struct {
	botToken   string
	httpClient *http.Client
}

// NewTelegramTransport returns a Transport that long-polls Telegram's
// getUpdates endpoint with a 30s server-side poll and a 35s client
// timeout, matching the long-poll budget the bot this is grounded on
// uses.
func NewTelegramTransport(botToken string) *TelegramTransport {
	return &TelegramTransport{
		botToken:   botToken,
		httpClient: &http.Client{Timeout: 35 * time.Second},
	}
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type telegramResponse struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

// GetUpdates long-polls getUpdates with the given offset.
func (t *TelegramTransport) GetUpdates(ctx context.Context, offset int64) ([]Update, int64, error) {
	body, err := t.call(ctx, "getUpdates", map[string]interface{}{
		"offset":  offset,
		"timeout": 30,
	}, 35*time.Second)
	if err != nil {
		return nil, offset, err
	}

	var resp telegramResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, offset, fmt.Errorf("decode getUpdates response: %w", err)
	}
	if !resp.OK {
		return nil, offset, fmt.Errorf("getUpdates returned ok=false")
	}

	next := offset
	out := make([]Update, 0, len(resp.Result))
	for _, u := range resp.Result {
		out = append(out, Update{
			ID:     u.UpdateID,
			ChatID: fmt.Sprintf("%d", u.Message.Chat.ID),
			Text:   u.Message.Text,
		})
		if u.UpdateID+1 > next {
			next = u.UpdateID + 1
		}
	}
	return out, next, nil
}

// SendMessage posts a Markdown-formatted reply via sendMessage.
func (t *TelegramTransport) SendMessage(ctx context.Context, chatID, text string) error {
	_, err := t.call(ctx, "sendMessage", map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}, 10*time.Second)
	return err
}

func (t *TelegramTransport) call(ctx context.Context, method string, params map[string]interface{}, timeout time.Duration) ([]byte, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal %s params: %w", method, err)
	}

	url := fmt.Sprintf(apiBase, t.botToken, method)
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("read %s response: %w", method, err)
	}
	return buf.Bytes(), nil
}
