package store

import "strconv"

// parseCounter reads a stored counter value. Malformed values reset to 0 so
// a corrupted record cannot wedge the rate limiter.
func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func formatCounter(n int64) string {
	return strconv.FormatInt(n, 10)
}
