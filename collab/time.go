package collab

import "time"

// updatedNow picks the materialization timestamp. Wall-clock time is used,
// nudged forward when it would not advance past the page's previous
// updatedAt, so sibling ordering stays stable under clock skew.
func updatedNow(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}
