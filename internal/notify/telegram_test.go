package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTelegram_SendsKeyboard(t *testing.T) {
	var (
		path    string
		payload tgSendMessage
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	tg := NewTelegram("123:abc", 42)
	tg.BaseURL = ts.URL
	err := tg.Send(context.Background(), Message{
		Title:   "Ping report: home",
		Text:    "Sent: 10",
		Actions: []Action{{Label: "Run now", Data: "job_run:home"}, {Label: "Jobs", Data: "menu_jobs"}},
	})
	if err != nil {
		t.Fatalf("send err: %v", err)
	}
	if path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %q", path)
	}
	if payload.ChatID != 42 || !strings.HasPrefix(payload.Text, "Ping report: home\n\n") {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.ReplyMarkup == nil || len(payload.ReplyMarkup.InlineKeyboard[0]) != 2 {
		t.Fatalf("keyboard missing: %+v", payload.ReplyMarkup)
	}
	if payload.ReplyMarkup.InlineKeyboard[0][0].CallbackData != "job_run:home" {
		t.Fatalf("callback data = %q", payload.ReplyMarkup.InlineKeyboard[0][0].CallbackData)
	}
}

func TestTelegram_TruncatesLongText(t *testing.T) {
	var payload tgSendMessage
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	tg := NewTelegram("t", 1)
	tg.BaseURL = ts.URL
	if err := tg.Send(context.Background(), Message{Text: strings.Repeat("ä", MaxTelegramText+10)}); err != nil {
		t.Fatalf("send err: %v", err)
	}
	if n := len([]rune(payload.Text)); n != MaxTelegramText {
		t.Fatalf("text length = %d", n)
	}
}

func TestTelegram_APIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer ts.Close()

	tg := NewTelegram("secret-token", 1)
	tg.BaseURL = ts.URL
	err := tg.Send(context.Background(), Message{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestTelegram_TransportErrorHidesToken(t *testing.T) {
	tg := NewTelegram("secret-token", 1)
	tg.BaseURL = "http://127.0.0.1:1"
	err := tg.Send(context.Background(), Message{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("token leaked: %v", err)
	}
}

func TestNewTelegram_DisabledWithoutCredentials(t *testing.T) {
	if NewTelegram("", 1) != nil || NewTelegram("t", 0) != nil {
		t.Fatal("expected nil client")
	}
}
