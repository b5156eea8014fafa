package history

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/showtime-chatbot/internal/model"
)

// Redis keeps each conversation in a list under prefix:<session>.  Appends
// push, trim and refresh the TTL in one MULTI so concurrent turns of the
// same session cannot grow the list past the window.
type Redis struct {
	client *redis.Client
	prefix string
	window int
	ttl    time.Duration
}

func NewRedis(client *redis.Client, window int, ttl time.Duration) *Redis {
	if window < 1 {
		window = DefaultWindow
	}
	return &Redis{client: client, prefix: "showbot:history", window: window, ttl: ttl}
}

func (r *Redis) key(sessionID string) string { return r.prefix + ":" + sessionID }

func (r *Redis) Load(ctx context.Context, sessionID string) ([]model.Turn, error) {
	raw, err := r.client.LRange(ctx, r.key(sessionID), int64(-r.window), -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load history")
	}
	turns := make([]model.Turn, 0, len(raw))
	for _, s := range raw {
		var t model.Turn
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (r *Redis) Append(ctx context.Context, sessionID string, turns ...model.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	vals := make([]any, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return errors.Wrap(err, "marshal turn")
		}
		vals = append(vals, b)
	}
	key := r.key(sessionID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, key, vals...)
		p.LTrim(ctx, key, int64(-r.window), -1)
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
		}
		return nil
	})
	return errors.Wrap(err, "append history")
}
