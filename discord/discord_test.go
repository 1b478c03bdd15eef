package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mperol/streamwatch/notify"
)

func TestSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody struct {
		Content string          `json:"content"`
		Embeds  []*notify.Embed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{BotToken: "token", BaseURL: srv.URL}
	msg := notify.Message{
		Text:  "SomeStreamer is streaming!",
		Embed: &notify.Embed{Description: "https://twitch.tv/somestreamer", Color: 0x71368A},
	}
	if err := c.Send(context.Background(), 123456, msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/channels/123456/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bot token" {
		t.Errorf("authorization = %q", gotAuth)
	}
	if gotBody.Content != msg.Text {
		t.Errorf("content = %q", gotBody.Content)
	}
	if len(gotBody.Embeds) != 1 || gotBody.Embeds[0].Color != 0x71368A {
		t.Errorf("embeds = %+v", gotBody.Embeds)
	}
}

func TestSendNoEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if _, ok := raw["embeds"]; ok {
			t.Error("embeds key must be omitted when there is no embed")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{BotToken: "token", BaseURL: srv.URL}
	if err := c.Send(context.Background(), 1, notify.Message{Text: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"Missing Access"}`))
	}))
	defer srv.Close()

	c := &Client{BotToken: "token", BaseURL: srv.URL}
	err := c.Send(context.Background(), 1, notify.Message{Text: "hi"})
	if err == nil {
		t.Fatal("expected error on 403")
	}
}
