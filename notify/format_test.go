package notify

import (
	"strings"
	"testing"

	"github.com/mperol/streamwatch/twitchapi"
)

func TestFormatLiveStream(t *testing.T) {
	st := twitchapi.Stream{
		UserID:       "123",
		UserLogin:    "somestreamer",
		UserName:     "SomeStreamer",
		GameName:     "Chess",
		Title:        "ranked grind",
		Type:         "live",
		ThumbnailURL: "https://cdn.example/preview-{width}x{height}.jpg",
	}
	msg := Format(st, false)
	if msg.Text != "SomeStreamer is streaming!" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Embed == nil {
		t.Fatal("expected embed")
	}
	if msg.Embed.Color != colorStream {
		t.Errorf("color = %#x, want %#x", msg.Embed.Color, colorStream)
	}
	if msg.Embed.Author.URL != "https://twitch.tv/somestreamer" {
		t.Errorf("author url = %q", msg.Embed.Author.URL)
	}
	if msg.Embed.Image == nil || msg.Embed.Image.URL != "https://cdn.example/preview-640x360.jpg" {
		t.Errorf("image = %+v, want sized preview", msg.Embed.Image)
	}
	var names []string
	for _, f := range msg.Embed.Fields {
		names = append(names, f.Name)
	}
	want := []string{"Title", "Game", "Type"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("fields = %v, want %v", names, want)
	}
}

func TestFormatVodcast(t *testing.T) {
	st := twitchapi.Stream{
		UserID:    "123",
		UserLogin: "somestreamer",
		UserName:  "SomeStreamer",
		Type:      "rerun",
	}
	msg := Format(st, false)
	if msg.Text != "SomeStreamer started a vodcast!" {
		t.Errorf("text = %q", msg.Text)
	}
	if msg.Embed.Color != colorVodcast {
		t.Errorf("color = %#x, want %#x", msg.Embed.Color, colorVodcast)
	}
}

func TestFormatLoudPrefix(t *testing.T) {
	st := twitchapi.Stream{UserLogin: "x", UserName: "X", Type: "live"}
	msg := Format(st, true)
	if !strings.HasPrefix(msg.Text, "@everyone ") {
		t.Errorf("text = %q, want @everyone prefix", msg.Text)
	}
}

func TestFormatOmitsMissingFields(t *testing.T) {
	st := twitchapi.Stream{UserLogin: "quiet", Type: "live"}
	msg := Format(st, false)
	// UserName empty: fall back to login.
	if msg.Text != "quiet is streaming!" {
		t.Errorf("text = %q", msg.Text)
	}
	for _, f := range msg.Embed.Fields {
		if f.Name == "Title" || f.Name == "Game" {
			t.Errorf("unexpected field %q for empty payload", f.Name)
		}
	}
	if msg.Embed.Image != nil {
		t.Error("expected no image without a thumbnail template")
	}
}
