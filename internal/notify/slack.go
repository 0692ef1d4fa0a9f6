package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Slack limits a section's text to 3000 characters and an actions block to
// 25 elements.
const (
	slackSectionMax = 3000
	slackMaxButtons = 25
)

type Slack struct {
	Webhook string
	Client  *http.Client
}

func NewSlack(webhook string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		Webhook: webhook,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type     string    `json:"type"`
	Text     slackText `json:"text"`
	ActionID string    `json:"action_id"`
	Value    string    `json:"value"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackPayload struct {
	// fallback for notifications and clients without blocks
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackPayloadFor lays msg out as Block Kit: the report in a mrkdwn section,
// actions as buttons whose value is the callback payload. A Slack app with
// interactivity enabled gets the value back on click.
func slackPayloadFor(msg Message) slackPayload {
	text := msg.Text
	if msg.Title != "" {
		text = "*" + msg.Title + "*\n" + text
	}
	section := text
	if r := []rune(section); len(r) > slackSectionMax {
		section = string(r[:slackSectionMax-1]) + "…"
	}
	p := slackPayload{
		Text:   text,
		Blocks: []slackBlock{{Type: "section", Text: &slackText{Type: "mrkdwn", Text: section}}},
	}
	if len(msg.Actions) == 0 {
		return p
	}
	acts := msg.Actions
	if len(acts) > slackMaxButtons {
		acts = acts[:slackMaxButtons]
	}
	buttons := make([]slackElement, 0, len(acts))
	for _, a := range acts {
		buttons = append(buttons, slackElement{
			Type:     "button",
			Text:     slackText{Type: "plain_text", Text: a.Label},
			ActionID: a.Data,
			Value:    a.Data,
		})
	}
	p.Blocks = append(p.Blocks, slackBlock{Type: "actions", Elements: buttons})
	return p
}

// Send posts msg to an incoming webhook.
func (s *Slack) Send(ctx context.Context, msg Message) error {
	if s == nil || s.Webhook == "" {
		return errors.New("slack disabled")
	}
	body, err := json.Marshal(slackPayloadFor(msg))
	if err != nil {
		return fmt.Errorf("slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack non-2xx: %d", resp.StatusCode)
	}
	return nil
}
