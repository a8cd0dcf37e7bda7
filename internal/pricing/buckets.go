package pricing

import "time"

// BucketFunc maps a timestamp to a coarse cache key. Coarse buckets bound
// cache cardinality at the cost of temporal precision.
type BucketFunc func(time.Time) string

// MonthlyBucket keys a timestamp by the first day of its calendar month.
func MonthlyBucket(t time.Time) string {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
}

// DailyBucket keys a timestamp by its calendar day.
func DailyBucket(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
