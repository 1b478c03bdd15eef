// Package discord contains a minimal REST client for delivering notifications
// to Discord channels using a bot token. Gateway concerns (auth handshake,
// command parsing) live outside this service; only message delivery is needed.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mperol/streamwatch/notify"
)

// DefaultBaseURL is the Discord REST API root.
const DefaultBaseURL = "https://discord.com/api/v10"

var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// Client delivers formatted notifications to Discord channels.
type Client struct {
	BotToken   string
	BaseURL    string // defaults to DefaultBaseURL
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return defaultHTTPClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

// Send posts a message (text plus optional embed) to one channel.
func (c *Client) Send(ctx context.Context, channelID int64, msg notify.Message) error {
	payload := struct {
		Content string          `json:"content"`
		Embeds  []*notify.Embed `json:"embeds,omitempty"`
	}{Content: msg.Text}
	if msg.Embed != nil {
		payload.Embeds = append(payload.Embeds, msg.Embed)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	url := fmt.Sprintf("%s/channels/%d/messages", c.base(), channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.BotToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discord send to channel %d failed: %s: %s", channelID, resp.Status, string(b))
	}
	return nil
}
