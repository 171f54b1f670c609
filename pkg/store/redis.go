package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
)

// Redis key layout.
const (
	redisPrefix        = "tft:"
	redisPartitionsKey = redisPrefix + "partitions"
)

const redisAllIndex = redisPrefix + "matches:all"

func redisMatchKey(id string) string {
	return redisPrefix + "match:" + id
}

func redisIndexKey(partition string) string {
	return redisPrefix + "matches:" + strings.ToUpper(partition)
}

func redisStatsKey(kind, partition string) string {
	return redisPrefix + "stats:" + kind + ":" + partition
}

func redisStatusKey(partition string) string {
	return redisPrefix + "status:" + partition
}

// Redis is a Store backed by Redis. Matches are JSON envelopes written with
// SETNX and indexed in per-partition sorted sets scored by creation time.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

// OpenRedis connects using a redis:// URL and verifies the connection.
func OpenRedis(ctx context.Context, rawURL string) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(client), nil
}

// Client exposes the underlying client for components sharing the connection.
func (r *Redis) Client() *redis.Client {
	return r.client
}

func (r *Redis) SaveMatch(ctx context.Context, matchID, partition string, payload []byte) error {
	now := r.now()
	envelope, err := json.Marshal(CachedMatch{
		MatchID:   matchID,
		Partition: partition,
		Payload:   payload,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("encode match %s: %w", matchID, err)
	}

	created, err := r.client.SetNX(ctx, redisMatchKey(matchID), envelope, 0).Result()
	if err != nil {
		return fmt.Errorf("save match %s: %w", matchID, err)
	}
	if !created {
		return nil
	}

	member := redis.Z{Score: float64(now.Unix()), Member: matchID}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, redisIndexKey(partition), member)
		pipe.ZAdd(ctx, redisAllIndex, member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index match %s: %w", matchID, err)
	}
	return nil
}

func (r *Redis) CachedMatches(ctx context.Context, partition string) ([]CachedMatch, error) {
	index := redisAllIndex
	if !isAll(partition) {
		index = redisIndexKey(partition)
	}

	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	if len(ids) == 0 {
		return []CachedMatch{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisMatchKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load matches: %w", err)
	}

	out := make([]CachedMatch, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry outlived its match key.
			continue
		}
		var c CachedMatch
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Redis) SaveProcessedStats(ctx context.Context, kind, partition string, payload []byte) error {
	key := redisStatsKey(kind, partition)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, keepSnapshots-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save %s stats for %s: %w", kind, partition, err)
	}
	return nil
}

func (r *Redis) ProcessedStats(ctx context.Context, kind, partition string) ([]byte, error) {
	data, err := r.client.LIndex(ctx, redisStatsKey(kind, partition), 0).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load %s stats for %s: %w", kind, partition, err)
	}
	return data, nil
}

func (r *Redis) UpdatePartitionStatus(ctx context.Context, partition string, status riot.Status, errMsg string) error {
	key := redisStatusKey(partition)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"status", string(status),
			"updated_at", r.now().UTC().Format(time.RFC3339Nano),
		)
		if status == riot.StatusError {
			pipe.HIncrBy(ctx, key, "error_count", 1)
			pipe.HSet(ctx, key, "last_error", errMsg)
		}
		pipe.SAdd(ctx, redisPartitionsKey, partition)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update status for %s: %w", partition, err)
	}
	return nil
}

func (r *Redis) PartitionStatuses(ctx context.Context) ([]PartitionStatus, error) {
	keys, err := r.client.SMembers(ctx, redisPartitionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	sort.Strings(keys)

	out := make([]PartitionStatus, 0, len(keys))
	for _, k := range keys {
		fields, err := r.client.HGetAll(ctx, redisStatusKey(k)).Result()
		if err != nil {
			return nil, fmt.Errorf("load status for %s: %w", k, err)
		}
		if len(fields) == 0 {
			continue
		}
		count, _ := strconv.Atoi(fields["error_count"])
		updated, _ := time.Parse(time.RFC3339Nano, fields["updated_at"])
		out = append(out, statusFor(k, riot.Status(fields["status"]), count, fields["last_error"], updated))
	}
	return out, nil
}

// Cleanup drops matches older than keepFor. Stats lists are already capped
// on write.
func (r *Redis) Cleanup(ctx context.Context, keepFor time.Duration) error {
	max := "(" + strconv.FormatInt(r.now().Add(-keepFor).Unix(), 10)
	ids, err := r.client.ZRangeByScore(ctx, redisAllIndex, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return fmt.Errorf("find expired matches: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, redisMatchKey(id))
		}
		pipe.ZRemRangeByScore(ctx, redisAllIndex, "-inf", max)
		for _, p := range riot.PartitionKeys() {
			pipe.ZRemRangeByScore(ctx, redisIndexKey(p), "-inf", max)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove expired matches: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
