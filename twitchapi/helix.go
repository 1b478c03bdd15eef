// Package twitchapi contains minimal helpers to interact with Twitch Helix APIs
// for login-to-id resolution and bulk live-status lookup, using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// statusPageSize is the Helix cap on ids per /streams request.
const statusPageSize = 100

// defaultHTTPClient bounds every status call so a hung request cannot stall
// the polling loop.
var defaultHTTPClient = &http.Client{Timeout: 10 * time.Second}

// Client provides the minimal Helix surface the tracking engine needs.
type Client struct {
	TokenSource oauth2.TokenSource
	ClientID    string
	BaseURL     string // defaults to DefaultBaseURL
	HTTPClient  *http.Client
}

// Stream is one live broadcast as reported by the status API.
type Stream struct {
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	Type         string    `json:"type"` // "live"; anything else is a rerun/vodcast
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// Live reports whether the broadcast is a genuine live stream as opposed to
// a rerun/vodcast replay.
func (s Stream) Live() bool { return s.Type == "live" }

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

func (c *Client) get(ctx context.Context, path string, query map[string][]string, out interface{}) error {
	tok, err := c.TokenSource.Token()
	if err != nil {
		return fmt.Errorf("app token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+path, nil)
	if err != nil {
		return err
	}
	q := req.URL.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s: unexpected status %s", path, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("helix %s: decode: %w", path, err)
	}
	return nil
}

// ResolveIDs resolves login names to their stable user ids. Logins the
// provider does not know are simply absent from the result; callers must
// treat missing entries as not-yet-resolvable. A transport or payload
// failure returns an error.
func (c *Client) ResolveIDs(ctx context.Context, logins []string) (map[string]string, error) {
	ids := make(map[string]string, len(logins))
	if len(logins) == 0 {
		return ids, nil
	}
	query := map[string][]string{"login": {}}
	for _, l := range logins {
		query["login"] = append(query["login"], strings.ToLower(l))
	}
	var body struct {
		Data []struct {
			ID    string `json:"id"`
			Login string `json:"login"`
		} `json:"data"`
	}
	if err := c.get(ctx, "/users", query, &body); err != nil {
		return nil, err
	}
	for _, u := range body.Data {
		if u.ID == "" || u.Login == "" {
			continue
		}
		ids[strings.ToLower(u.Login)] = u.ID
	}
	return ids, nil
}

// FetchStatuses bulk-fetches live status for a set of user ids. The result
// maps user id to its broadcast payload; ids absent from the map are not
// live. An empty map means the request succeeded and every channel is
// offline. A non-nil error means the request itself failed (network, 5xx,
// timeout) and the caller should skip the cycle without mutating state.
func (c *Client) FetchStatuses(ctx context.Context, ids []string) (map[string]Stream, error) {
	statuses := make(map[string]Stream, len(ids))
	for start := 0; start < len(ids); start += statusPageSize {
		end := start + statusPageSize
		if end > len(ids) {
			end = len(ids)
		}
		var body struct {
			Data []Stream `json:"data"`
		}
		query := map[string][]string{
			"user_id": ids[start:end],
			"first":   {fmt.Sprintf("%d", statusPageSize)},
		}
		if err := c.get(ctx, "/streams", query, &body); err != nil {
			return nil, err
		}
		for _, s := range body.Data {
			if s.UserID == "" {
				// Malformed entry; skip it, the other channels are unaffected.
				continue
			}
			statuses[s.UserID] = s
		}
	}
	return statuses, nil
}
