package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrStreamNotFound is returned when a stream name has no row.
var ErrStreamNotFound = errors.New("stream not found")

// Stream is an externally-tracked broadcast channel. The id is assigned by
// the status provider and is the only identity; the name is mutable display
// data, always stored lower-cased.
type Stream struct {
	ID   string
	Name string
}

// Channel is a Discord channel receiving notifications.
type Channel struct {
	ID        int64
	Name      string
	GuildID   int64
	GuildName string
}

// Subscriber is one side of a subscription relation as seen from a stream.
type Subscriber struct {
	Channel  Channel
	Everyone bool
}

// StreamSubscriptions groups every subscriber of one stream.
type StreamSubscriptions struct {
	Stream      Stream
	Subscribers []Subscriber
}

// ChannelSubscriptions groups every stream one channel subscribes to.
type ChannelSubscriptions struct {
	Channel Channel
	Streams []Stream
}

// Store persists the stream/channel many-to-many relation. All mutations
// commit before returning so in-memory runtime state never diverges from
// disk.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// AddSubscription creates the relation between a channel and a stream,
// inserting either entity row as needed. Channel metadata (name, guild name)
// is refreshed opportunistically on every call. It reports false when the
// exact relation already exists.
func (s *Store) AddSubscription(ctx context.Context, ch Channel, st Stream, everyone bool) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO streams (id, name) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name`,
		st.ID, strings.ToLower(st.Name)); err != nil {
		return false, fmt.Errorf("upsert stream: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO channels (id, name, guild_id, guild_name) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, guild_id=EXCLUDED.guild_id, guild_name=EXCLUDED.guild_name`,
		ch.ID, ch.Name, ch.GuildID, ch.GuildName); err != nil {
		return false, fmt.Errorf("upsert channel: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO channels_streams (channel_id, stream_id, everyone) VALUES ($1, $2, $3)
		 ON CONFLICT (channel_id, stream_id) DO NOTHING`,
		ch.ID, st.ID, everyone)
	if err != nil {
		return false, fmt.Errorf("insert subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return n > 0, nil
}

// RemoveSubscription deletes the relation and cleans up orphaned entity
// rows in the same transaction. It reports whether a relation was removed
// and whether the stream row was orphan-deleted (so the caller can evict
// its runtime state).
func (s *Store) RemoveSubscription(ctx context.Context, channelID int64, streamID string) (removed, streamOrphaned bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM channels_streams WHERE channel_id=$1 AND stream_id=$2`,
		channelID, streamID)
	if err != nil {
		return false, false, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if n == 0 {
		return false, false, tx.Commit()
	}

	res, err = tx.ExecContext(ctx,
		`DELETE FROM streams WHERE id=$1
		 AND NOT EXISTS (SELECT 1 FROM channels_streams WHERE stream_id=$1)`,
		streamID)
	if err != nil {
		return false, false, fmt.Errorf("prune orphan stream: %w", err)
	}
	pruned, err := res.RowsAffected()
	if err != nil {
		return false, false, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channels WHERE id=$1
		 AND NOT EXISTS (SELECT 1 FROM channels_streams WHERE channel_id=$1)`,
		channelID); err != nil {
		return false, false, fmt.Errorf("prune orphan channel: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("commit: %w", err)
	}
	return true, pruned > 0, nil
}

// RemoveAllForChannel drops every subscription of one channel (invoked when
// the channel is deleted on the platform side) and returns the ids of
// streams that became orphaned in the process.
func (s *Store) RemoveAllForChannel(ctx context.Context, channelID int64) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channels_streams WHERE channel_id=$1`, channelID); err != nil {
		return nil, fmt.Errorf("delete subscriptions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM channels WHERE id=$1`, channelID); err != nil {
		return nil, fmt.Errorf("delete channel: %w", err)
	}
	rows, err := tx.QueryContext(ctx,
		`DELETE FROM streams s
		 WHERE NOT EXISTS (SELECT 1 FROM channels_streams cs WHERE cs.stream_id = s.id)
		 RETURNING s.id`)
	if err != nil {
		return nil, fmt.Errorf("prune orphan streams: %w", err)
	}
	defer rows.Close()
	var orphaned []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		orphaned = append(orphaned, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return orphaned, nil
}

// StreamByName looks up a stream row by its lower-cased name.
func (s *Store) StreamByName(ctx context.Context, name string) (Stream, error) {
	var st Stream
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM streams WHERE name=$1`, strings.ToLower(name)).
		Scan(&st.ID, &st.Name)
	if err == sql.ErrNoRows {
		return Stream{}, ErrStreamNotFound
	}
	if err != nil {
		return Stream{}, err
	}
	return st, nil
}

// UpdateStreamName persists a provider-side rename. Identity is the id; the
// name is display data only.
func (s *Store) UpdateStreamName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE streams SET name=$1 WHERE id=$2`, strings.ToLower(name), id)
	return err
}

// GroupedByStream returns every subscription grouped by stream. This is the
// primary read of the polling loop, executed once per cycle.
func (s *Store) GroupedByStream(ctx context.Context) ([]StreamSubscriptions, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.name, c.id, c.name, c.guild_id, c.guild_name, cs.everyone
		 FROM channels_streams cs
		 JOIN streams s ON s.id = cs.stream_id
		 JOIN channels c ON c.id = cs.channel_id
		 ORDER BY s.name, c.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StreamSubscriptions
	index := map[string]int{}
	for rows.Next() {
		var st Stream
		var sub Subscriber
		if err := rows.Scan(&st.ID, &st.Name, &sub.Channel.ID, &sub.Channel.Name,
			&sub.Channel.GuildID, &sub.Channel.GuildName, &sub.Everyone); err != nil {
			return nil, err
		}
		i, ok := index[st.ID]
		if !ok {
			i = len(out)
			index[st.ID] = i
			out = append(out, StreamSubscriptions{Stream: st})
		}
		out[i].Subscribers = append(out[i].Subscribers, sub)
	}
	return out, rows.Err()
}

// GroupedByChannel returns every subscription grouped by channel, used for
// the human-readable listing.
func (s *Store) GroupedByChannel(ctx context.Context) ([]ChannelSubscriptions, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.guild_id, c.guild_name, s.id, s.name
		 FROM channels_streams cs
		 JOIN streams s ON s.id = cs.stream_id
		 JOIN channels c ON c.id = cs.channel_id
		 ORDER BY c.id, s.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChannelSubscriptions
	index := map[int64]int{}
	for rows.Next() {
		var ch Channel
		var st Stream
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.GuildID, &ch.GuildName, &st.ID, &st.Name); err != nil {
			return nil, err
		}
		i, ok := index[ch.ID]
		if !ok {
			i = len(out)
			index[ch.ID] = i
			out = append(out, ChannelSubscriptions{Channel: ch})
		}
		out[i].Streams = append(out[i].Streams, st)
	}
	return out, rows.Err()
}
