package models

// Telegram Bot API payloads, limited to the fields the bot reads.

type UpdatesResponse struct {
	OK          bool     `json:"ok"`
	Result      []Update `json:"result"`
	Description string   `json:"description"`
}

type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

type Message struct {
	MessageID int64         `json:"message_id"`
	From      *TelegramUser `json:"from"`
	Chat      Chat          `json:"chat"`
	Text      string        `json:"text"`
}

type Chat struct {
	ID int64 `json:"id"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
}

// IsText reports whether the update carries a plain text message; stickers,
// photos and the rest arrive with an empty Text.
func (u Update) IsText() bool {
	return u.Message != nil && u.Message.Text != ""
}
