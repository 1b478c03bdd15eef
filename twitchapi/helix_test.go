package twitchapi_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/mperol/streamwatch/testutil"
	"github.com/mperol/streamwatch/twitchapi"
)

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func TestResolveIDs(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockUsersResponse([]map[string]string{
		{"id": "42", "login": "somestreamer"},
		{"id": "43", "login": "another"},
	})
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: mock.URL}

	ids, err := c.ResolveIDs(context.Background(), []string{"SomeStreamer", "another", "ghost"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ids["somestreamer"] != "42" || ids["another"] != "43" {
		t.Errorf("ids = %v", ids)
	}
	if _, ok := ids["ghost"]; ok {
		t.Error("unknown login must be absent from the result")
	}
}

func TestResolveIDsEmptyInput(t *testing.T) {
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: "http://unused.invalid"}
	ids, err := c.ResolveIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want empty", ids)
	}
}

func TestFetchStatuses(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockStreamsResponse([]map[string]interface{}{
		{
			"user_id":    "42",
			"user_login": "somestreamer",
			"user_name":  "SomeStreamer",
			"game_name":  "Chess",
			"title":      "ranked grind",
			"type":       "live",
			"started_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: mock.URL}

	statuses, err := c.FetchStatuses(context.Background(), []string{"42", "43"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	st, ok := statuses["42"]
	if !ok {
		t.Fatal("expected status for 42")
	}
	if !st.Live() {
		t.Error("type live should report Live()")
	}
	if _, ok := statuses["43"]; ok {
		t.Error("offline id must be absent from the result")
	}
}

func TestFetchStatusesVodcastNotLive(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.MockStreamsResponse([]map[string]interface{}{
		{"user_id": "42", "user_login": "somestreamer", "type": "rerun"},
	})
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: mock.URL}

	statuses, err := c.FetchStatuses(context.Background(), []string{"42"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if statuses["42"].Live() {
		t.Error("rerun must not report Live()")
	}
}

func TestFetchStatusesServerError(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	mock.Handlers["/streams"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: mock.URL}

	if _, err := c.FetchStatuses(context.Background(), []string{"42"}); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestRequestHeaders(t *testing.T) {
	mock := testutil.NewMockTwitchServer(t)
	var gotClientID, gotAuth string
	mock.Handlers["/streams"] = func(w http.ResponseWriter, r *http.Request) {
		gotClientID = r.Header.Get("Client-Id")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}
	c := &twitchapi.Client{TokenSource: staticToken(), ClientID: "cid", BaseURL: mock.URL}

	if _, err := c.FetchStatuses(context.Background(), []string{"42"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotClientID != "cid" {
		t.Errorf("Client-Id = %q", gotClientID)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}
