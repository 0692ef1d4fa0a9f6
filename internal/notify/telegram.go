package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	telegramAPI = "https://api.telegram.org"
	// MaxTelegramText is the Bot API limit for one message.
	MaxTelegramText = 4096
)

// Telegram sends reports to the admin chat through the Bot API.
type Telegram struct {
	Token   string
	ChatID  int64
	BaseURL string
	Client  *http.Client
}

func NewTelegram(token string, chatID int64) *Telegram {
	if token == "" || chatID == 0 {
		return nil
	}
	return &Telegram{
		Token:   token,
		ChatID:  chatID,
		BaseURL: telegramAPI,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type tgButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type tgMarkup struct {
	InlineKeyboard [][]tgButton `json:"inline_keyboard"`
}

type tgSendMessage struct {
	ChatID      int64     `json:"chat_id"`
	Text        string    `json:"text"`
	ReplyMarkup *tgMarkup `json:"reply_markup,omitempty"`
}

type tgResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, msg Message) error {
	if t == nil || t.Token == "" {
		return errors.New("telegram disabled")
	}
	text := msg.Text
	if msg.Title != "" {
		text = msg.Title + "\n\n" + text
	}
	if r := []rune(text); len(r) > MaxTelegramText {
		text = string(r[:MaxTelegramText])
	}
	payload := tgSendMessage{ChatID: t.ChatID, Text: text}
	if len(msg.Actions) > 0 {
		row := make([]tgButton, 0, len(msg.Actions))
		for _, a := range msg.Actions {
			row = append(row, tgButton{Text: a.Label, CallbackData: a.Data})
		}
		payload.ReplyMarkup = &tgMarkup{InlineKeyboard: [][]tgButton{row}}
	}
	body, _ := json.Marshal(payload)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.New("telegram request: invalid base url")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		// the URL carries the token; keep it out of logs
		var ue *url.Error
		if errors.As(err, &ue) {
			return fmt.Errorf("telegram send: %w", ue.Err)
		}
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()

	var tr tgResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&tr)
	if resp.StatusCode/100 != 2 || !tr.OK {
		return fmt.Errorf("telegram non-2xx: %d %s", resp.StatusCode, tr.Description)
	}
	return nil
}
