// Package notify delivers alert messages to the user. The production
// channel is the Telegram Bot API over plain HTTP.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pmccbot/position-engine/internal/engine"
)

// Telegram sends messages through the Telegram Bot API sendMessage
// endpoint.
type Telegram struct {
	chatID string
	apiURL string
	client *http.Client
}

// NewTelegram creates a Telegram notifier for the given bot token and
// chat ID.
func NewTelegram(botToken, chatID string, timeout time.Duration) (*Telegram, error) {
	parts := strings.Split(botToken, ":")
	if len(parts) != 2 || len(parts[0]) < 8 {
		return nil, fmt.Errorf("notify: invalid telegram bot token format")
	}
	if chatID == "" {
		return nil, fmt.Errorf("notify: telegram chat ID is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		chatID: chatID,
		apiURL: "https://api.telegram.org/bot" + botToken,
		client: &http.Client{Timeout: timeout},
	}, nil
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Send posts one plain-text message. User-visible content only; internal
// detail stays out of the channel.
func (t *Telegram) Send(ctx context.Context, message string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  message,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return engine.Upstream("telegram marshal", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.apiURL+"/sendMessage", bytes.NewReader(payload))
	if err != nil {
		return engine.Upstream("telegram request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return engine.Upstream("telegram send", err)
	}
	defer resp.Body.Close()

	var tr telegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return engine.Upstream("telegram decode", err)
	}
	if !tr.OK {
		desc := tr.Description
		if desc == "" {
			desc = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return engine.Upstream("telegram send", fmt.Errorf("%s", desc))
	}
	return nil
}
