package density

import "time"

// BucketWidth is the granularity of density reporting.
const BucketWidth = 30 * time.Minute

// Bucket truncates t to the start of its half hour in t's own location:
// minutes below 30 map to :00, the rest to :30. Seconds and below are
// dropped, so Bucket(Bucket(t)) == Bucket(t).
func Bucket(t time.Time) time.Time {
	minute := 0
	if t.Minute() >= 30 {
		minute = 30
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), minute, 0, 0, t.Location())
}

// BucketEnd returns the exclusive end of the bucket containing t.
func BucketEnd(t time.Time) time.Time {
	return Bucket(t).Add(BucketWidth)
}
