package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mperol/streamwatch/db"
	"github.com/mperol/streamwatch/stream"
	"github.com/mperol/streamwatch/telemetry"
)

// Handlers carries the dependencies of the HTTP endpoints.
type Handlers struct {
	db      *sql.DB
	svc     *stream.Service
	tracker *stream.Tracker
	started time.Time
}

func NewHandlers(database *sql.DB, svc *stream.Service, tracker *stream.Tracker) *Handlers {
	return &Handlers{db: database, svc: svc, tracker: tracker, started: time.Now()}
}

type subscribeRequest struct {
	ChannelID   int64  `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	GuildID     int64  `json:"guild_id"`
	GuildName   string `json:"guild_name"`
	Stream      string `json:"stream"`
	Everyone    bool   `json:"everyone"`
}

type unsubscribeRequest struct {
	ChannelID int64  `json:"channel_id"`
	Stream    string `json:"stream"`
}

// HandleSubscriptions dispatches list/subscribe/unsubscribe on /subscriptions.
func (h *Handlers) HandleSubscriptions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListSubscriptions(w, r)
	case http.MethodPost:
		h.handleSubscribe(w, r)
	case http.MethodDelete:
		h.handleUnsubscribe(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.List(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list subscriptions failed", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	type channelView struct {
		ChannelID   int64    `json:"channel_id"`
		ChannelName string   `json:"channel_name"`
		GuildID     int64    `json:"guild_id"`
		GuildName   string   `json:"guild_name"`
		Streams     []string `json:"streams"`
	}
	out := make([]channelView, 0, len(groups))
	for _, g := range groups {
		v := channelView{
			ChannelID:   g.Channel.ID,
			ChannelName: g.Channel.Name,
			GuildID:     g.Channel.GuildID,
			GuildName:   g.Channel.GuildName,
			Streams:     make([]string, 0, len(g.Streams)),
		}
		for _, st := range g.Streams {
			v.Streams = append(v.Streams, st.Name)
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == 0 || req.Stream == "" {
		http.Error(w, "channel_id and stream are required", http.StatusBadRequest)
		return
	}
	ch := db.Channel{ID: req.ChannelID, Name: req.ChannelName, GuildID: req.GuildID, GuildName: req.GuildName}
	created, err := h.svc.Subscribe(r.Context(), ch, req.Stream, req.Everyone)
	if err != nil {
		if errors.Is(err, stream.ErrUnknownStream) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		telemetry.LoggerWithCorr(r.Context()).Error("subscribe failed", slog.String("stream", req.Stream), slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]bool{"created": created})
}

func (h *Handlers) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == 0 || req.Stream == "" {
		http.Error(w, "channel_id and stream are required", http.StatusBadRequest)
		return
	}
	removed, err := h.svc.Unsubscribe(r.Context(), req.ChannelID, req.Stream)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("unsubscribe failed", slog.String("stream", req.Stream), slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

// HandleChannelDispatcher routes /channels/{id}. A DELETE mirrors the
// platform's channel-delete event and cascades every subscription of that
// channel.
func (h *Handlers) HandleChannelDispatcher(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/channels/")
	if idStr == "" || strings.Contains(idStr, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "invalid channel id", http.StatusBadRequest)
		return
	}
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := h.svc.DropChannel(r.Context(), id); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("channel drop failed", slog.Int64("channel_id", id), slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
