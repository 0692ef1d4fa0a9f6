package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Action is a named button offered with a message. Data is handed back by
// the front end as a callback payload.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

type Message struct {
	Title   string   `json:"title"`
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Multi delivers to every notifier and reports all failures.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, msg Message) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, msg))
	}
	return err
}

// Log writes reports to the structured log. Used when no chat channel is
// configured.
type Log struct {
	L *zap.Logger
}

func (l Log) Send(_ context.Context, msg Message) error {
	labels := make([]string, 0, len(msg.Actions))
	for _, a := range msg.Actions {
		labels = append(labels, a.Label)
	}
	l.L.Info("report",
		zap.String("title", msg.Title),
		zap.String("text", msg.Text),
		zap.Strings("actions", labels),
	)
	return nil
}
