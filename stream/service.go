package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mperol/streamwatch/db"
	"github.com/mperol/streamwatch/twitchapi"
)

// ErrUnknownStream is returned when the status provider has no channel for
// the requested name.
var ErrUnknownStream = errors.New("unknown stream")

// StatusClient is the boundary to the external status provider.
type StatusClient interface {
	ResolveIDs(ctx context.Context, logins []string) (map[string]string, error)
	FetchStatuses(ctx context.Context, ids []string) (map[string]twitchapi.Stream, error)
}

// SubscriptionStore is the persistence surface the service mutates. All
// writes commit before returning.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, ch db.Channel, st db.Stream, everyone bool) (bool, error)
	RemoveSubscription(ctx context.Context, channelID int64, streamID string) (removed, streamOrphaned bool, err error)
	RemoveAllForChannel(ctx context.Context, channelID int64) ([]string, error)
	StreamByName(ctx context.Context, name string) (db.Stream, error)
	GroupedByChannel(ctx context.Context) ([]db.ChannelSubscriptions, error)
}

// Service exposes the subscribe/unsubscribe/list operations called by the
// command layer. It resolves names to stable ids once on subscribe; from
// then on everything is keyed by id. Runtime state is only touched after
// the corresponding write has committed (write-then-apply).
type Service struct {
	store   SubscriptionStore
	client  StatusClient
	tracker *Tracker
}

func NewService(store SubscriptionStore, client StatusClient, tracker *Tracker) *Service {
	return &Service{store: store, client: client, tracker: tracker}
}

// Subscribe tracks a stream in a channel. It reports false when the exact
// relation already exists.
func (s *Service) Subscribe(ctx context.Context, ch db.Channel, name string, everyone bool) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false, fmt.Errorf("%w: empty name", ErrUnknownStream)
	}
	ids, err := s.client.ResolveIDs(ctx, []string{name})
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", name, err)
	}
	id, ok := ids[name]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownStream, name)
	}
	created, err := s.store.AddSubscription(ctx, ch, db.Stream{ID: id, Name: name}, everyone)
	if err != nil {
		return false, err
	}
	if created {
		s.tracker.Ensure(id)
		slog.Info("stream tracked", slog.String("stream", name), slog.Int64("channel_id", ch.ID), slog.Bool("everyone", everyone))
	}
	return created, nil
}

// Unsubscribe stops tracking a stream in a channel. It reports false when
// no such relation existed. When the last subscription of a stream goes,
// its runtime state is evicted.
func (s *Service) Unsubscribe(ctx context.Context, channelID int64, name string) (bool, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	st, err := s.store.StreamByName(ctx, name)
	if errors.Is(err, db.ErrStreamNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	removed, orphaned, err := s.store.RemoveSubscription(ctx, channelID, st.ID)
	if err != nil {
		return false, err
	}
	if orphaned {
		s.tracker.Forget(st.ID)
		slog.Info("stream no longer tracked anywhere", slog.String("stream", st.Name))
	}
	return removed, nil
}

// List returns every subscription grouped by channel.
func (s *Service) List(ctx context.Context) ([]db.ChannelSubscriptions, error) {
	return s.store.GroupedByChannel(ctx)
}

// DropChannel removes every subscription of a channel. Invoked when the
// platform reports the channel deleted.
func (s *Service) DropChannel(ctx context.Context, channelID int64) error {
	orphaned, err := s.store.RemoveAllForChannel(ctx, channelID)
	if err != nil {
		return err
	}
	for _, id := range orphaned {
		s.tracker.Forget(id)
	}
	slog.Info("channel dropped", slog.Int64("channel_id", channelID), slog.Int("orphaned_streams", len(orphaned)))
	return nil
}
