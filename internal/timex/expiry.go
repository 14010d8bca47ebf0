package timex

import "time"

// UTC returns t as a UTC instant. pgx decodes timestamp-without-time-zone
// columns as UTC wall clocks and timestamptz columns as instants, so a plain
// conversion is enough for both.
func UTC(t time.Time) time.Time {
	return t.UTC()
}

// Expired reports whether a token expiring at expiresAt is no longer valid
// at now. A token is valid strictly before its expiry instant, so
// expiresAt == now counts as expired.
func Expired(expiresAt, now time.Time) bool {
	return !UTC(now).Before(UTC(expiresAt))
}
