// Package redis holds the Redis-backed secondary checkpoint store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/DecentralizedGeo/astral-api/internal/domain/model"
	"github.com/DecentralizedGeo/astral-api/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "astral:checkpoints"

// setMaxScript writes the watermark only when it moves forward.
var setMaxScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if cur and tonumber(cur) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// CheckpointStore keeps every chain's watermark in one hash.
type CheckpointStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

var _ store.CheckpointStore = (*CheckpointStore)(nil)

func NewCheckpointStore(url, keyPrefix string) (*CheckpointStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return newCheckpointStore(client, keyPrefix), nil
}

func newCheckpointStore(client *redis.Client, keyPrefix string) *CheckpointStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &CheckpointStore{client: client, key: keyPrefix, now: time.Now}
}

func (s *CheckpointStore) updatedKey() string {
	return s.key + ":updated_at"
}

func (s *CheckpointStore) Get(ctx context.Context, chain model.Chain) (int64, bool, error) {
	v, err := s.client.HGet(ctx, s.key, chain.String()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get checkpoint: %w", err)
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse checkpoint %q: %w", v, err)
	}
	return ts, true, nil
}

func (s *CheckpointStore) Set(ctx context.Context, chain model.Chain, ts int64) error {
	keys := []string{s.key, s.updatedKey()}
	if err := setMaxScript.Run(ctx, s.client, keys, chain.String(), ts, s.now().Unix()).Err(); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) List(ctx context.Context) ([]model.ChainCheckpoint, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	updated, err := s.client.HGetAll(ctx, s.updatedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list checkpoint times: %w", err)
	}

	out := make([]model.ChainCheckpoint, 0, len(values))
	for chain, v := range values {
		ts, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse checkpoint %s=%q: %w", chain, v, err)
		}
		cp := model.ChainCheckpoint{Chain: model.Chain(chain), LastProcessedUnix: ts}
		if u, err := strconv.ParseInt(updated[chain], 10, 64); err == nil {
			cp.UpdatedAt = time.Unix(u, 0).UTC()
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}

func (s *CheckpointStore) Close() error {
	return s.client.Close()
}
