// Package bot is the chat-transport boundary: a Telegram long-poll client,
// a generic command router and the reply formatting.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"enviofinder/models"
)

const longPollTimeoutSeconds = 50

// Telegram talks to the Bot API over plain HTTPS.
type Telegram struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

func NewTelegram(token string, client *http.Client, logger *slog.Logger) *Telegram {
	return &Telegram{
		base:   "https://api.telegram.org/bot" + token,
		client: client,
		logger: logger,
	}
}

// GetUpdates long-polls for updates past the given offset.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64) ([]models.Update, error) {
	params := url.Values{}
	params.Set("offset", strconv.FormatInt(offset, 10))
	params.Set("timeout", strconv.Itoa(longPollTimeoutSeconds))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/getUpdates?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return nil, fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(body))
	}

	var updates models.UpdatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&updates); err != nil {
		return nil, err
	}
	if !updates.OK {
		return nil, fmt.Errorf("telegram getUpdates not ok: %s", updates.Description)
	}

	return updates.Result, nil
}

// SendMessage sends an HTML-formatted message to a chat.
func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string) error {
	params := url.Values{}
	params.Set("chat_id", strconv.FormatInt(chatID, 10))
	params.Set("text", text)
	params.Set("parse_mode", "html")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+"/sendMessage?"+params.Encode(), http.NoBody)
	if err != nil {
		return err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
		return fmt.Errorf("telegram sendMessage status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
