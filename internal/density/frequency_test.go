package density

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func det(node, device string, ts time.Time, strength *int, pt PacketType) DetectionRecord {
	return DetectionRecord{Timestamp: ts, NodeID: node, DeviceID: device, SignalStrength: strength, PacketType: pt}
}

var permissive = StrengthOptions{
	WiFi:        Bounds{Lowest: 0, Highest: 0},
	Bluetooth:   Bounds{Lowest: 0, Highest: 0},
	IncludeNull: true,
}

func TestInclude(t *testing.T) {
	t.Parallel()

	opts := StrengthOptions{
		WiFi:        Bounds{Lowest: -50, Highest: -10},
		Bluetooth:   Bounds{Lowest: -70, Highest: -20},
		IncludeNull: false,
	}
	tests := []struct {
		name string
		rec  DetectionRecord
		want bool
	}{
		{"wifi below lowest", det("n", "d", at(10, 0, 0), intp(-60), PacketWiFi), true},
		{"wifi at lowest", det("n", "d", at(10, 0, 0), intp(-50), PacketWiFi), false},
		{"wifi above highest ignored", det("n", "d", at(10, 0, 0), intp(-5), PacketWiFi), false},
		{"bluetooth below lowest", det("n", "d", at(10, 0, 0), intp(-80), PacketBluetooth), true},
		{"bluetooth between bounds", det("n", "d", at(10, 0, 0), intp(-60), PacketBluetooth), false},
		{"ethernet uses bluetooth bounds", det("n", "d", at(10, 0, 0), intp(-60), PacketEthernet), false},
		{"other uses bluetooth bounds", det("n", "d", at(10, 0, 0), intp(-75), PacketOther), true},
		{"null excluded", det("n", "d", at(10, 0, 0), nil, PacketWiFi), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Include(tt.rec, opts))
		})
	}

	nullable := opts
	nullable.IncludeNull = true
	t.Run("null included", func(t *testing.T) {
		t.Parallel()
		assert.True(t, Include(det("n", "d", at(10, 0, 0), nil, PacketBluetooth), nullable))
		assert.False(t, Include(det("n", "d", at(10, 0, 0), nil, PacketBluetooth), opts))
	})
}

func TestBuildIndexStats(t *testing.T) {
	t.Parallel()

	records := []DetectionRecord{
		det("n1", "a", at(10, 10, 0), nil, PacketBluetooth),
		det("n1", "a", at(10, 5, 0), nil, PacketBluetooth),
		det("n2", "a", at(10, 20, 0), nil, PacketBluetooth),
		det("n1", "b", at(10, 50, 0), nil, PacketBluetooth),
	}
	idx := BuildIndex(records, permissive)

	want := Index{
		at(10, 0, 0): {
			"a": {Earliest: at(10, 5, 0), Latest: at(10, 20, 0), Count: 3},
		},
		at(10, 30, 0): {
			"b": {Earliest: at(10, 50, 0), Latest: at(10, 50, 0), Count: 1},
		},
	}
	if diff := cmp.Diff(idx, want); diff != "" {
		t.Errorf("BuildIndex mismatch (-got +want):\n%s", diff)
	}
	assert.Equal(t, []time.Time{at(10, 0, 0), at(10, 30, 0)}, idx.Buckets())
	assert.Equal(t, 4, idx.Detections())
	assert.True(t, idx.Has(at(10, 59, 0)))
	assert.False(t, idx.Has(at(11, 0, 0)))

	st, ok := idx.Stats(at(10, 29, 0), "a")
	require.True(t, ok, "any instant inside the bucket finds it")
	assert.Equal(t, 3, st.Count)
	_, ok = idx.Stats(at(10, 30, 0), "a")
	assert.False(t, ok)
}

func TestBuildIndexSkipsFiltered(t *testing.T) {
	t.Parallel()

	opts := StrengthOptions{Bluetooth: Bounds{Lowest: -70}, WiFi: Bounds{Lowest: -70}}
	idx := BuildIndex([]DetectionRecord{
		det("n1", "a", at(9, 0, 0), intp(-40), PacketBluetooth),
		det("n1", "b", at(9, 0, 0), nil, PacketBluetooth),
	}, opts)
	assert.Empty(t, idx)
}

func TestBuildIndexOrderIndependent(t *testing.T) {
	t.Parallel()

	base := at(8, 0, 0)
	var records []DetectionRecord
	for i := 0; i < 60; i++ {
		records = append(records, det("n1", string(rune('a'+i%7)), base.Add(time.Duration(i*7)*time.Minute), nil, PacketWiFi))
	}
	want := BuildIndex(records, permissive)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]DetectionRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		if diff := cmp.Diff(BuildIndex(shuffled, permissive), want); diff != "" {
			t.Fatalf("permutation %d changed the index (-got +want):\n%s", i, diff)
		}
	}
}
