package holding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cameronsims/DynamicPopulationDensity/internal/density"
)

// fakeList implements listClient over an in-memory map of lists.
type fakeList struct {
	mu    sync.Mutex
	lists map[string][]string
	err   error
}

func newFakeList() *fakeList { return &fakeList{lists: make(map[string][]string)} }

func (f *fakeList) RPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	for _, v := range values {
		switch v := v.(type) {
		case []byte:
			f.lists[key] = append(f.lists[key], string(v))
		default:
			f.lists[key] = append(f.lists[key], fmt.Sprint(v))
		}
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeList) LRange(_ context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringSliceResult(nil, f.err)
	}
	l := f.lists[key]
	if stop < 0 {
		stop = int64(len(l)) + stop
	}
	if start >= int64(len(l)) || start > stop {
		return redis.NewStringSliceResult([]string{}, nil)
	}
	return redis.NewStringSliceResult(append([]string(nil), l[start:stop+1]...), nil)
}

func (f *fakeList) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	l := f.lists[key]
	if stop < 0 {
		stop = int64(len(l)) + stop
	}
	if start >= int64(len(l)) || start > stop {
		delete(f.lists, key)
	} else {
		f.lists[key] = append([]string(nil), l[start:stop+1]...)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeList) LLen(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return redis.NewIntResult(int64(len(f.lists[key])), f.err)
}

func (f *fakeList) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.lists, k)
	}
	return redis.NewIntResult(int64(len(keys)), f.err)
}

func (f *fakeList) Ping(context.Context) *redis.StatusCmd { return redis.NewStatusResult("PONG", f.err) }
func (f *fakeList) Close() error                         { return nil }

func strength(v int) *int { return &v }

func TestRedisStoreSnapshotAndBoundedClear(t *testing.T) {
	ctx := context.Background()
	fake := newFakeList()
	s := newRedisStore(fake, "", time.UTC)

	base := time.Date(2025, 6, 1, 10, 5, 0, 0, time.UTC)
	recs := []density.DetectionRecord{
		{Timestamp: base, NodeID: "n1", DeviceID: "a", SignalStrength: strength(-80), PacketType: density.PacketBluetooth},
		{Timestamp: base.Add(time.Minute), NodeID: "n1", DeviceID: "b", PacketType: density.PacketWiFi},
	}
	require.NoError(t, s.InsertDetections(ctx, recs))

	snap, err := s.DetectionSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.HighWater)
	if diff := cmp.Diff(snap.Records, recs); diff != "" {
		t.Errorf("snapshot mismatch (-got +want):\n%s", diff)
	}

	require.NoError(t, s.InsertDetection(ctx, density.DetectionRecord{Timestamp: base.Add(time.Hour), NodeID: "n2", DeviceID: "c"}))

	removed, err := s.DeleteDetectionsThrough(ctx, snap.HighWater)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	left, err := s.DetectionSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, left.Records, 1)
	assert.Equal(t, "c", left.Records[0].DeviceID)

	n, err := s.ClearDetections(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = s.CountDetections(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRedisStoreNormalisesLocation(t *testing.T) {
	ctx := context.Background()
	fake := newFakeList()
	perth := time.FixedZone("AWST", 8*3600)
	s := newRedisStore(fake, "k", perth)

	fake.lists["k"] = []string{
		`{"date_time":"2025-06-01T02:05:00Z","node_id":"n1","device_id":"a","signal_strength":null,"packet_type":1}`,
		`not json`,
		`{"date_time":"2025-06-01T10:07:00+08:00","node_id":"n1","device_id":"b","signal_strength":-90,"packet_type":2}`,
	}
	snap, err := s.DetectionSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.HighWater)
	require.Len(t, snap.Records, 2)
	for _, r := range snap.Records {
		assert.Same(t, perth, r.Timestamp.Location())
	}
	assert.True(t, density.Bucket(snap.Records[0].Timestamp).Equal(density.Bucket(snap.Records[1].Timestamp)))
	assert.Equal(t, density.Bucket(snap.Records[0].Timestamp), density.Bucket(snap.Records[1].Timestamp))
}

func TestRedisStoreErrors(t *testing.T) {
	ctx := context.Background()
	fake := newFakeList()
	fake.err = errors.New("connection refused")
	s := newRedisStore(fake, "", nil)

	assert.ErrorIs(t, s.InsertDetection(ctx, density.DetectionRecord{NodeID: "n1"}), fake.err)
	_, err := s.DetectionSnapshot(ctx)
	assert.ErrorIs(t, err, fake.err)
	_, err = s.DeleteDetectionsThrough(ctx, 3)
	assert.ErrorIs(t, err, fake.err)

	// Empty batch never reaches Redis.
	assert.NoError(t, s.InsertDetections(ctx, nil))
	n, err := s.DeleteDetectionsThrough(ctx, 0)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
