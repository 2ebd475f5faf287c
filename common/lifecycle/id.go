package lifecycle

import "time"

// GenerateClaimID builds an id from the last 8 digits of the millisecond
// timestamp followed by a 3-digit random suffix (at most 11 digits).
func GenerateClaimID(now time.Time, random func(n int) int) int64 {
	id := (now.UnixMilli()%100_000_000)*1000 + int64(random(1000))
	if id <= 0 {
		return 1
	}
	return id
}
