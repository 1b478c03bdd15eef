// Package notify builds the outbound notification payload (text plus rich
// embed) for a broadcast that just went live. It is pure formatting: no I/O,
// no state.
package notify

import (
	"fmt"
	"strings"

	"github.com/mperol/streamwatch/twitchapi"
)

const (
	twitchIconURL = "https://www.shareicon.net/download/2015/09/08/98061_twitch_512x512.png"
	clockIconURL  = "https://cdn2.iconfinder.com/data/icons/metro-uinvert-dock/256/Clock.png"

	colorStream  = 0x71368A // dark purple
	colorVodcast = 0xE74C3C // red

	// Helix thumbnail URLs carry a size template.
	thumbnailWidth  = "640"
	thumbnailHeight = "360"
)

// Message is a formatted notification ready for delivery.
type Message struct {
	Text  string
	Embed *Embed
}

// Embed mirrors the Discord embed wire format.
type Embed struct {
	Author      *EmbedAuthor `json:"author,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"icon_url,omitempty"`
}

type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type EmbedImage struct {
	URL string `json:"url"`
}

type EmbedFooter struct {
	Text    string `json:"text"`
	IconURL string `json:"icon_url,omitempty"`
}

// Format builds the notification for a broadcast payload. Live streams and
// vodcast/rerun broadcasts get distinct templates and accent colors. When
// loud is set the text is @everyone-tagged. Missing optional payload fields
// are simply omitted; formatting never fails.
func Format(st twitchapi.Stream, loud bool) Message {
	name := st.UserName
	if name == "" {
		name = st.UserLogin
	}
	channelURL := "https://twitch.tv/" + st.UserLogin

	var text string
	var color int
	var kind string
	if st.Live() {
		text = fmt.Sprintf("%s is streaming!", name)
		color = colorStream
		kind = "Stream"
	} else {
		text = fmt.Sprintf("%s started a vodcast!", name)
		color = colorVodcast
		kind = "Vodcast"
	}
	if loud {
		text = "@everyone " + text
	}

	embed := &Embed{
		Author:      &EmbedAuthor{Name: name, URL: channelURL, IconURL: twitchIconURL},
		Description: channelURL,
		Color:       color,
		Footer:      &EmbedFooter{Text: "Stream live time", IconURL: clockIconURL},
	}
	if st.Title != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Title", Value: st.Title})
	}
	if st.GameName != "" {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Game", Value: st.GameName})
	}
	embed.Fields = append(embed.Fields, EmbedField{Name: "Type", Value: kind, Inline: true})
	if url := previewURL(st.ThumbnailURL); url != "" {
		embed.Image = &EmbedImage{URL: url}
	}

	return Message{Text: text, Embed: embed}
}

func previewURL(template string) string {
	if template == "" {
		return ""
	}
	url := strings.ReplaceAll(template, "{width}", thumbnailWidth)
	return strings.ReplaceAll(url, "{height}", thumbnailHeight)
}
