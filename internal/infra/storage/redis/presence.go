package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"braidly/internal/presence"
)

const onlineSetKey = "presence:online"

// PresenceStore keeps one hash per user plus a set of online user ids so the
// sweeper does not have to scan the keyspace.
type PresenceStore struct {
	rdb *redis.Client
}

func NewPresenceStore(rdb *redis.Client) *PresenceStore {
	return &PresenceStore{rdb: rdb}
}

func (s *PresenceStore) Get(ctx context.Context, userID string) (presence.Record, error) {
	fields, err := s.rdb.HGetAll(ctx, recordKey(userID)).Result()
	if err != nil {
		return presence.Record{}, err
	}
	if len(fields) == 0 {
		// unknown user reads as offline
		return presence.Record{UserID: userID}, nil
	}
	return presence.Record{
		UserID:       userID,
		Online:       fields["online"] == "1",
		LastSeen:     parseMillis(fields["last_seen"]),
		LastActivity: parseMillis(fields["last_activity"]),
	}, nil
}

func (s *PresenceStore) Put(ctx context.Context, rec presence.Record) error {
	online := "0"
	if rec.Online {
		online = "1"
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, recordKey(rec.UserID), map[string]any{
		"online":        online,
		"last_seen":     rec.LastSeen.UnixMilli(),
		"last_activity": rec.LastActivity.UnixMilli(),
	})
	if rec.Online {
		pipe.SAdd(ctx, onlineSetKey, rec.UserID)
	} else {
		pipe.SRem(ctx, onlineSetKey, rec.UserID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) Online(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, onlineSetKey).Result()
}

func recordKey(userID string) string {
	return "presence:" + userID
}

func parseMillis(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
