package stream

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mperol/streamwatch/db"
	"github.com/mperol/streamwatch/notify"
	"github.com/mperol/streamwatch/telemetry"
	"github.com/mperol/streamwatch/twitchapi"
)

// Notifier delivers a formatted notification to one subscriber channel.
type Notifier interface {
	Send(ctx context.Context, channelID int64, msg notify.Message) error
}

// PollStore is the read surface of the polling loop.
type PollStore interface {
	GroupedByStream(ctx context.Context) ([]db.StreamSubscriptions, error)
	UpdateStreamName(ctx context.Context, id, name string) error
}

// EngineOptions tune the polling loop. Zero values fall back to defaults.
// The hysteresis window and the notification cooldown are independent.
type EngineOptions struct {
	PollInterval         time.Duration // sleep between cycles while streams are tracked
	IdleInterval         time.Duration // sleep while nothing is tracked (no API call)
	MinOfflineDuration   time.Duration // how long a stream must stay absent before going offline
	NotificationCooldown time.Duration // minimum gap between notifications per stream
}

func (o *EngineOptions) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = 30 * time.Second
	}
	if o.MinOfflineDuration <= 0 {
		o.MinOfflineDuration = 60 * time.Second
	}
	if o.NotificationCooldown <= 0 {
		o.NotificationCooldown = 60 * time.Second
	}
}

// Engine is the polling loop: once per cycle it reads the current
// subscriptions, bulk-fetches live status, walks every tracked stream
// through the online/offline state machine, and fans out notifications on
// offline-to-online transitions.
type Engine struct {
	store    PollStore
	client   StatusClient
	notifier Notifier
	tracker  *Tracker
	opts     EngineOptions

	now func() time.Time
}

func NewEngine(store PollStore, client StatusClient, notifier Notifier, tracker *Tracker, opts EngineOptions) *Engine {
	opts.applyDefaults()
	return &Engine{
		store:    store,
		client:   client,
		notifier: notifier,
		tracker:  tracker,
		opts:     opts,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. Transient provider or store failures
// skip the cycle without touching state; only cancellation ends the loop.
// The caller owns the goroutine and must treat an early return as fatal.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("poller started",
		slog.Duration("poll_interval", e.opts.PollInterval),
		slog.Duration("idle_interval", e.opts.IdleInterval),
		slog.Duration("min_offline", e.opts.MinOfflineDuration),
		slog.Duration("cooldown", e.opts.NotificationCooldown))
	for {
		interval := e.cycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// cycle runs one poll iteration and returns how long to sleep before the
// next one.
func (e *Engine) cycle(ctx context.Context) time.Duration {
	start := time.Now()
	groups, err := e.store.GroupedByStream(ctx)
	if err != nil {
		slog.Warn("cannot read subscriptions, skipping cycle", slog.Any("err", err), slog.String("component", "poller"))
		telemetry.IncPollSkips()
		return e.opts.PollInterval
	}
	telemetry.SetTrackedStreams(len(groups))
	if len(groups) == 0 {
		return e.opts.IdleInterval
	}

	ids := make([]string, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.Stream.ID)
	}
	statuses, err := e.client.FetchStatuses(ctx, ids)
	if err != nil {
		// A failed request says nothing about the channels; treating it as
		// "everything offline" would flap every online stream.
		slog.Warn("cannot retrieve statuses, skipping cycle", slog.Any("err", err), slog.String("component", "poller"))
		telemetry.IncPollSkips()
		return e.opts.PollInterval
	}

	online := 0
	for _, g := range groups {
		if e.evaluate(ctx, g, statuses) {
			online++
		}
	}
	telemetry.SetOnlineStreams(online)
	telemetry.IncPollCycles()
	telemetry.ObserveCycleDuration(time.Since(start))
	return e.opts.PollInterval
}

// evaluate advances one stream through the state machine and reports
// whether it is considered online afterwards.
func (e *Engine) evaluate(ctx context.Context, g db.StreamSubscriptions, statuses map[string]twitchapi.Stream) bool {
	now := e.now()
	status, live := statuses[g.Stream.ID]

	var notifyNow, onlineAfter bool
	e.tracker.Update(g.Stream.ID, func(s *State) {
		if live {
			s.LastOfflineAt = time.Time{}
			if !s.Online {
				if s.LastNotifiedAt.IsZero() || now.Sub(s.LastNotifiedAt) >= e.opts.NotificationCooldown {
					notifyNow = true
					s.LastNotifiedAt = now
				} else {
					slog.Debug("notification suppressed by cooldown", slog.String("stream", g.Stream.Name))
				}
				// Online flips regardless of the cooldown so one window cannot
				// swallow a run of suppressed transitions.
				s.Online = true
			}
		} else if s.Online {
			if s.LastOfflineAt.IsZero() {
				s.LastOfflineAt = now
				slog.Debug("stream absent from live status, offline window started", slog.String("stream", g.Stream.Name))
			} else if now.Sub(s.LastOfflineAt) > e.opts.MinOfflineDuration {
				s.Online = false
				slog.Info("stream went offline", slog.String("stream", g.Stream.Name))
			}
		}
		onlineAfter = s.Online
	})

	if live && status.UserLogin != "" && !strings.EqualFold(status.UserLogin, g.Stream.Name) {
		// Providers rename channels; identity stays the id, the stored name
		// just follows along.
		if err := e.store.UpdateStreamName(ctx, g.Stream.ID, status.UserLogin); err != nil {
			slog.Warn("cannot persist stream rename", slog.String("stream", g.Stream.Name), slog.Any("err", err))
		}
	}

	if notifyNow {
		for _, sub := range g.Subscribers {
			msg := notify.Format(status, sub.Everyone)
			if err := e.notifier.Send(ctx, sub.Channel.ID, msg); err != nil {
				slog.Warn("notification delivery failed",
					slog.String("stream", g.Stream.Name),
					slog.Int64("channel_id", sub.Channel.ID),
					slog.Any("err", err))
				telemetry.IncNotificationFailures()
				continue
			}
			telemetry.IncNotificationsSent()
		}
		slog.Info("stream is live, subscribers notified",
			slog.String("stream", g.Stream.Name),
			slog.Int("subscribers", len(g.Subscribers)))
	}
	return onlineAfter
}
