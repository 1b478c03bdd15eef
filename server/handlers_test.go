package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mperol/streamwatch/db"
	"github.com/mperol/streamwatch/stream"
	"github.com/mperol/streamwatch/twitchapi"
)

type stubStore struct {
	groups  []db.ChannelSubscriptions
	created bool
	removed bool

	dropped []int64
}

func (s *stubStore) AddSubscription(ctx context.Context, ch db.Channel, st db.Stream, everyone bool) (bool, error) {
	return s.created, nil
}

func (s *stubStore) RemoveSubscription(ctx context.Context, channelID int64, streamID string) (bool, bool, error) {
	return s.removed, false, nil
}

func (s *stubStore) RemoveAllForChannel(ctx context.Context, channelID int64) ([]string, error) {
	s.dropped = append(s.dropped, channelID)
	return nil, nil
}

func (s *stubStore) StreamByName(ctx context.Context, name string) (db.Stream, error) {
	if s.removed {
		return db.Stream{ID: "42", Name: name}, nil
	}
	return db.Stream{}, db.ErrStreamNotFound
}

func (s *stubStore) GroupedByChannel(ctx context.Context) ([]db.ChannelSubscriptions, error) {
	return s.groups, nil
}

type stubResolver struct {
	ids map[string]string
}

func (s *stubResolver) ResolveIDs(ctx context.Context, logins []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, l := range logins {
		if id, ok := s.ids[l]; ok {
			out[l] = id
		}
	}
	return out, nil
}

func (s *stubResolver) FetchStatuses(ctx context.Context, ids []string) (map[string]twitchapi.Stream, error) {
	return nil, errors.New("not used")
}

func newTestHandlers(store *stubStore, resolver *stubResolver) (*Handlers, *stream.Tracker) {
	tracker := stream.NewTracker()
	svc := stream.NewService(store, resolver, tracker)
	return NewHandlers(nil, svc, tracker), tracker
}

func TestHandleListSubscriptions(t *testing.T) {
	store := &stubStore{groups: []db.ChannelSubscriptions{
		{
			Channel: db.Channel{ID: 100, Name: "general", GuildID: 1, GuildName: "Guild"},
			Streams: []db.Stream{{ID: "42", Name: "somestreamer"}, {ID: "43", Name: "another"}},
		},
	}}
	h, _ := newTestHandlers(store, &stubResolver{})

	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	rec := httptest.NewRecorder()
	h.HandleSubscriptions(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got []struct {
		ChannelID int64    `json:"channel_id"`
		Streams   []string `json:"streams"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ChannelID != 100 || len(got[0].Streams) != 2 {
		t.Errorf("body = %+v", got)
	}
}

func TestHandleSubscribe(t *testing.T) {
	store := &stubStore{created: true}
	resolver := &stubResolver{ids: map[string]string{"somestreamer": "42"}}
	h, tracker := newTestHandlers(store, resolver)

	body := `{"channel_id":100,"channel_name":"general","guild_id":1,"guild_name":"Guild","stream":"SomeStreamer","everyone":true}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSubscriptions(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if _, ok := tracker.Get("42"); !ok {
		t.Error("stream should be tracked after subscribe")
	}
}

func TestHandleSubscribeUnknownStream(t *testing.T) {
	h, _ := newTestHandlers(&stubStore{}, &stubResolver{ids: map[string]string{}})

	body := `{"channel_id":100,"stream":"ghost"}`
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSubscriptions(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleSubscribeValidation(t *testing.T) {
	h, _ := newTestHandlers(&stubStore{}, &stubResolver{})
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing channel", `{"stream":"x"}`},
		{"missing stream", `{"channel_id":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.HandleSubscriptions(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleUnsubscribe(t *testing.T) {
	h, _ := newTestHandlers(&stubStore{removed: true}, &stubResolver{})

	body := `{"channel_id":100,"stream":"somestreamer"}`
	req := httptest.NewRequest(http.MethodDelete, "/subscriptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSubscriptions(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var got map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got["removed"] {
		t.Error("expected removed=true")
	}
}

func TestHandleUnsubscribeUnknown(t *testing.T) {
	h, _ := newTestHandlers(&stubStore{removed: false}, &stubResolver{})

	body := `{"channel_id":100,"stream":"ghost"}`
	req := httptest.NewRequest(http.MethodDelete, "/subscriptions", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleSubscriptions(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got map[string]bool
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["removed"] {
		t.Error("expected removed=false for unknown stream")
	}
}

func TestHandleChannelDelete(t *testing.T) {
	store := &stubStore{}
	h, _ := newTestHandlers(store, &stubResolver{})

	req := httptest.NewRequest(http.MethodDelete, "/channels/100", nil)
	rec := httptest.NewRecorder()
	h.HandleChannelDispatcher(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(store.dropped) != 1 || store.dropped[0] != 100 {
		t.Errorf("dropped = %v, want [100]", store.dropped)
	}
}

func TestHandleChannelDispatcherRejects(t *testing.T) {
	h, _ := newTestHandlers(&stubStore{}, &stubResolver{})
	cases := []struct {
		name   string
		method string
		path   string
		want   int
	}{
		{"bad id", http.MethodDelete, "/channels/abc", http.StatusBadRequest},
		{"nested path", http.MethodDelete, "/channels/100/extra", http.StatusNotFound},
		{"wrong method", http.MethodGet, "/channels/100", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			rec := httptest.NewRecorder()
			h.HandleChannelDispatcher(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandleStatus(t *testing.T) {
	h, tracker := newTestHandlers(&stubStore{}, &stubResolver{})
	tracker.Ensure("42")
	tracker.Update("42", func(s *stream.State) { s.Online = true })
	tracker.Ensure("43")

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	h.HandleStatus(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Tracked int `json:"tracked_streams"`
		Online  int `json:"online_streams"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tracked != 2 || got.Online != 1 {
		t.Errorf("status = %+v, want 2 tracked / 1 online", got)
	}
}

func TestNewMuxRouting(t *testing.T) {
	t.Setenv("ADMIN_USERNAME", "")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_TOKEN", "admin-token")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &stubStore{created: true}
	resolver := &stubResolver{ids: map[string]string{"somestreamer": "42"}}
	tracker := stream.NewTracker()
	svc := stream.NewService(store, resolver, tracker)
	mux := NewMux(ctx, nil, svc, tracker)

	// Reads stay open.
	req := httptest.NewRequest(http.MethodGet, "/subscriptions", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /subscriptions = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected correlation id header")
	}

	// Mutations require the admin token.
	body := `{"channel_id":100,"stream":"somestreamer"}`
	req = httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated POST = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(body))
	req.Header.Set("X-Admin-Token", "admin-token")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("authenticated POST = %d, want 201 (body %s)", rec.Code, rec.Body.String())
	}
}
