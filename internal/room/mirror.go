package room

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Vaibhav2795/duel-prediction-market/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	ttlRoomSnapshot = time.Hour
	mirrorTimeout   = 2 * time.Second
)

// RedisMirror keeps the latest JSON snapshot of every live room in Redis so
// the HTTP API tier can serve live state without talking to this process.
// All writes are best-effort; failures are logged and dropped.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror { return &RedisMirror{rdb: rdb} }

func (m *RedisMirror) key(matchID string) string { return "live:room:" + strings.TrimSpace(matchID) }

func (m *RedisMirror) Publish(r Room) {
	if m == nil || m.rdb == nil {
		return
	}
	raw, err := json.Marshal(&r)
	if err != nil {
		obslog.L().Warn("mirror_marshal_error", zap.String("match_id", r.ID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.rdb.Set(ctx, m.key(r.ID), raw, ttlRoomSnapshot).Err(); err != nil {
		obslog.L().Warn("mirror_publish_error", zap.String("match_id", r.ID), zap.Error(err))
	}
}

func (m *RedisMirror) Remove(matchID string) {
	if m == nil || m.rdb == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := m.rdb.Del(ctx, m.key(matchID)).Err(); err != nil {
		obslog.L().Warn("mirror_remove_error", zap.String("match_id", matchID), zap.Error(err))
	}
}

// Load reads a mirrored snapshot back; used by tests and by read-side tools.
func (m *RedisMirror) Load(ctx context.Context, matchID string) (*Room, error) {
	raw, err := m.rdb.Get(ctx, m.key(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
