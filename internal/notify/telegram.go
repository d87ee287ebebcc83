// Package notify delivers reminder text to a messaging channel.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	appLog "remindd/internal/log"
)

// Notifier is the notification sink consumed by the scheduler. Text
// formatting is the caller's responsibility; transport framing is the
// sink's.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Telegram sends messages to a fixed chat via the Telegram Bot API.
type Telegram struct {
	token  string
	chatID string
	apiURL string
	client *http.Client
}

const defaultAPIURL = "https://api.telegram.org"

// NewTelegram builds a sink for the given bot token and chat.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		apiURL: defaultAPIURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// NewTelegramWithURL is NewTelegram with a custom API base, used in tests.
func NewTelegramWithURL(token, chatID, apiURL string) *Telegram {
	t := NewTelegram(token, chatID)
	t.apiURL = apiURL
	return t
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send posts one sendMessage call. The text is HTML-formatted by the caller.
// The bot token never appears in logs or error strings.
func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return err
	}

	u := t.apiURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("telegram: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var apiResp sendMessageResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("telegram: status %s with unreadable body", resp.Status)
	}
	if resp.StatusCode != http.StatusOK || !apiResp.OK {
		return fmt.Errorf("telegram: status %s: %s", resp.Status, apiResp.Description)
	}

	appLog.Debug("telegram message sent", "chat_id", t.chatID)
	return nil
}
