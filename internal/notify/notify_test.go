package notify

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	got []Message
	err error
}

func (r *recorder) Send(_ context.Context, m Message) error {
	r.got = append(r.got, m)
	return r.err
}

func TestMulti_DeliversToAllAndCombinesErrors(t *testing.T) {
	a := &recorder{err: errors.New("a down")}
	b := &recorder{}
	c := &recorder{err: errors.New("c down")}

	err := Multi{a, nil, b, c}.Send(context.Background(), Message{Text: "hi"})

	if len(a.got) != 1 || len(b.got) != 1 || len(c.got) != 1 {
		t.Fatalf("expected delivery to every notifier")
	}
	if errs := multierr.Errors(err); len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", err)
	}
}

func TestMulti_NoErrors(t *testing.T) {
	if err := (Multi{&recorder{}}).Send(context.Background(), Message{}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestLog_WritesReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	err := Log{L: zap.New(core)}.Send(context.Background(), Message{Title: "T", Text: "body", Actions: []Action{{Label: "Jobs", Data: "menu_jobs"}}})
	if err != nil {
		t.Fatalf("send err: %v", err)
	}
	entries := logs.FilterMessage("report").All()
	if len(entries) != 1 {
		t.Fatalf("expected one report entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["title"] != "T" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
