// Package holding provides a Redis list backed detection holding store for
// deployments where nodes write faster than SQLite comfortably absorbs.
//
// Detections are appended with RPUSH. A snapshot reads the whole list and
// reports its length as the high-water mark; the bounded clear trims exactly
// that many entries from the head, so anything pushed during a compaction
// pass survives to the next one.
package holding

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
	"github.com/cameronsims/DynamicPopulationDensity/internal/monitoring"
)

// DefaultKey is the list key used when none is configured.
const DefaultKey = "dpd:attendance"

// listClient is the subset of *redis.Client used by RedisStore.
type listClient interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisStore holds detections in a single Redis list.
type RedisStore struct {
	client listClient
	key    string
	loc    *time.Location
}

// Options configures NewRedisStore.
type Options struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Location *time.Location
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
	}
	return newRedisStore(client, opts.Key, opts.Location), nil
}

func newRedisStore(client listClient, key string, loc *time.Location) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	if loc == nil {
		loc = time.Local
	}
	return &RedisStore{client: client, key: key, loc: loc}
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// InsertDetection appends one detection.
func (s *RedisStore) InsertDetection(ctx context.Context, rec density.DetectionRecord) error {
	return s.InsertDetections(ctx, []density.DetectionRecord{rec})
}

// InsertDetections appends a batch with a single RPUSH. An empty batch is
// logged and ignored.
func (s *RedisStore) InsertDetections(ctx context.Context, recs []density.DetectionRecord) error {
	if len(recs) == 0 {
		monitoring.Warnf("holding: empty detection batch ignored")
		return nil
	}
	values := make([]interface{}, 0, len(recs))
	for _, rec := range recs {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode detection: %w", err)
		}
		values = append(values, b)
	}
	if err := s.client.RPush(ctx, s.key, values...).Err(); err != nil {
		return fmt.Errorf("push detections: %w", err)
	}
	return nil
}

// DetectionSnapshot reads the whole list. Timestamps are converted to the
// store's location so that equal instants share a bucket key.
func (s *RedisStore) DetectionSnapshot(ctx context.Context) (density.Snapshot, error) {
	raw, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return density.Snapshot{}, fmt.Errorf("read detections: %w", err)
	}
	snap := density.Snapshot{
		Records:   make([]density.DetectionRecord, 0, len(raw)),
		HighWater: int64(len(raw)),
	}
	for i, item := range raw {
		var rec density.DetectionRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			// A corrupt entry still counts toward the high-water mark so
			// that the clear removes it.
			monitoring.Warnf("holding: skipping undecodable entry %d: %v", i, err)
			continue
		}
		rec.Timestamp = rec.Timestamp.In(s.loc)
		snap.Records = append(snap.Records, rec)
	}
	return snap, nil
}

// DeleteDetectionsThrough removes the first highWater entries.
func (s *RedisStore) DeleteDetectionsThrough(ctx context.Context, highWater int64) (int64, error) {
	if highWater <= 0 {
		return 0, nil
	}
	before, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("clear detections: %w", err)
	}
	if err := s.client.LTrim(ctx, s.key, highWater, -1).Err(); err != nil {
		return 0, fmt.Errorf("clear detections through %d: %w", highWater, err)
	}
	if highWater > before {
		return before, nil
	}
	return highWater, nil
}

// ClearDetections removes every held detection.
func (s *RedisStore) ClearDetections(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("clear detections: %w", err)
	}
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return 0, fmt.Errorf("clear detections: %w", err)
	}
	return n, nil
}

// CountDetections returns the list length.
func (s *RedisStore) CountDetections(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count detections: %w", err)
	}
	return n, nil
}
