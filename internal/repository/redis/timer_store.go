package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freeeve/quizbattle/internal/model"
)

// Key patterns for per-game clock state.
func timerKey(gameID string) string    { return "game:" + gameID + ":timer" }
func deadlineKey(gameID string) string { return "game:" + gameID + ":deadline" }
func warningsKey(gameID string) string { return "game:" + gameID + ":warnings" }
func activityKey(gameID string) string { return "game:" + gameID + ":activity" }

const activeTimersKey = "timers:active"

// timerRetention keeps the timer body around after its deadline key expires
// so the sweeper can still read which turn it belonged to.
const timerRetention = 5 * time.Minute

// activityTTL bounds how long an abandoned game's activity stamp lingers.
const activityTTL = 24 * time.Hour

// ParseDeadlineKey extracts the game id from an expired deadline key.
func ParseDeadlineKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "game:") || !strings.HasSuffix(key, ":deadline") {
		return "", false
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return "", false
	}
	return parts[1], true
}

// SaveTimer replaces a game's timer. The timer is assumed to start now; the
// deadline key expires after expireAfter, which is when keyspace
// notifications fire.
func (c *Client) SaveTimer(ctx context.Context, t model.TurnTimer, expireAfter time.Duration) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal timer: %w", err)
	}
	ttl := expireAfter
	if ttl <= 0 {
		ttl = time.Second
	}
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, timerKey(t.GameID), data, ttl+timerRetention)
		pipe.Set(ctx, deadlineKey(t.GameID), t.StartedAt.Add(expireAfter).Unix(), ttl)
		pipe.Del(ctx, warningsKey(t.GameID))
		pipe.SAdd(ctx, activeTimersKey, t.GameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save timer: %w", err)
	}
	return nil
}

// LoadTimer returns the stored timer, or nil if none exists.
func (c *Client) LoadTimer(ctx context.Context, gameID string) (*model.TurnTimer, error) {
	data, err := c.rdb.Get(ctx, timerKey(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get timer: %w", err)
	}
	var t model.TurnTimer
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode timer: %w", err)
	}
	return &t, nil
}

// DeleteTimer stops tracking a game's clock.
func (c *Client) DeleteTimer(ctx context.Context, gameID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, timerKey(gameID), deadlineKey(gameID), warningsKey(gameID))
		pipe.SRem(ctx, activeTimersKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

// MarkWarning adds a checkpoint to the sent set and reports whether it was new.
func (c *Client) MarkWarning(ctx context.Context, gameID string, checkpoint int) (bool, error) {
	var added *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, warningsKey(gameID), checkpoint)
		pipe.Expire(ctx, warningsKey(gameID), timerRetention)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark warning: %w", err)
	}
	return added.Val() == 1, nil
}

// ActiveTimers lists games that currently have a clock.
func (c *Client) ActiveTimers(ctx context.Context) ([]string, error) {
	ids, err := c.rdb.SMembers(ctx, activeTimersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active timers: %w", err)
	}
	return ids, nil
}

// TouchActivity records the last time a game made progress.
func (c *Client) TouchActivity(ctx context.Context, gameID string, at time.Time) error {
	return c.rdb.Set(ctx, activityKey(gameID), at.UnixMilli(), activityTTL).Err()
}

// LastActivity returns the last recorded progress time.
func (c *Client) LastActivity(ctx context.Context, gameID string) (time.Time, bool, error) {
	v, err := c.rdb.Get(ctx, activityKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get activity: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse activity: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// ClearGame removes all clock data for a game (on game end).
func (c *Client) ClearGame(ctx context.Context, gameID string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, timerKey(gameID), deadlineKey(gameID), warningsKey(gameID), activityKey(gameID))
		pipe.SRem(ctx, activeTimersKey, gameID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear game: %w", err)
	}
	return nil
}
