package density

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func indexOf(records ...DetectionRecord) Index {
	return BuildIndex(records, permissive)
}

func inBuckets(device string, n int) []DetectionRecord {
	var out []DetectionRecord
	for i := 0; i < n; i++ {
		out = append(out, det("n1", device, at(9, 0, 0).Add(time.Duration(i)*BucketWidth), nil, PacketBluetooth))
	}
	return out
}

func TestClassifyPersistent(t *testing.T) {
	t.Parallel()

	opts := SuspicionOptions{Time: HourBounds{Earliest: 0, Latest: 23}, MaxBucketOccurrences: 4}
	records := append(inBuckets("four", 4), inBuckets("five", 5)...)
	c := Classify(indexOf(records...), opts)

	assert.False(t, c.Suspicious.Contains("four"))
	assert.True(t, c.Suspicious.Contains("five"))
	assert.True(t, c.Persistent.Contains("five"))
	assert.Equal(t, map[string]int{"four": 4, "five": 5}, c.Occurrences)
}

func TestClassifyOutOfHours(t *testing.T) {
	t.Parallel()

	opts := SuspicionOptions{Time: HourBounds{Earliest: 7, Latest: 22}, MaxBucketOccurrences: 10}
	idx := indexOf(
		det("n1", "early", at(6, 45, 0), nil, PacketBluetooth),
		det("n1", "late", at(23, 5, 0), nil, PacketBluetooth),
		det("n1", "edge-open", at(7, 0, 0), nil, PacketBluetooth),
		det("n1", "edge-close", at(22, 59, 0), nil, PacketBluetooth),
	)
	c := Classify(idx, opts)

	assert.Equal(t, []string{"early", "late"}, c.Suspicious.Sorted())
	assert.Equal(t, []string{"early", "late"}, c.OutOfHours.Sorted())
	assert.Empty(t, c.Persistent)
}

func TestClassifyRulesDoNotDoubleCount(t *testing.T) {
	t.Parallel()

	opts := SuspicionOptions{Time: HourBounds{Earliest: 7, Latest: 22}, MaxBucketOccurrences: 1}
	idx := indexOf(
		det("n1", "x", at(5, 0, 0), nil, PacketBluetooth),
		det("n1", "x", at(12, 0, 0), nil, PacketBluetooth),
	)
	c := Classify(idx, opts)
	assert.True(t, c.Persistent.Contains("x"))
	assert.False(t, c.OutOfHours.Contains("x"))
	assert.Len(t, c.Suspicious, 1)
}

func TestClassifyMinPacketsIsInert(t *testing.T) {
	t.Parallel()

	opts := SuspicionOptions{Time: HourBounds{Earliest: 0, Latest: 23}, MaxBucketOccurrences: 10, MinPackets: 5}
	c := Classify(indexOf(det("n1", "quiet", at(12, 0, 0), nil, PacketWiFi)), opts)
	assert.True(t, c.LowActivity.Contains("quiet"))
	assert.False(t, c.Suspicious.Contains("quiet"))
}

func TestDeviceSetNil(t *testing.T) {
	t.Parallel()
	var s DeviceSet
	assert.False(t, s.Contains("a"))
	assert.Empty(t, s.Sorted())
}
