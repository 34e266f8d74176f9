package weather

import "time"

// Nearest returns the record whose time is closest to target.
// When two records are equally close the earlier one wins, whatever the input order.
// ok is false when records is empty.
func Nearest(records []Record, target time.Time) (best Record, ok bool) {
	var bestDiff time.Duration
	for _, r := range records {
		diff := absDuration(r.Time.Sub(target))
		if !ok || diff < bestDiff || (diff == bestDiff && r.Time.Before(best.Time)) {
			best, bestDiff, ok = r, diff, true
		}
	}
	return best, ok
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
