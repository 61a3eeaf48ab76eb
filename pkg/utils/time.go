package utils

import "time"

// UnixMillis returns the current time as Unix milliseconds.
func UnixMillis() int64 {
	return time.Now().UnixMilli()
}

// FromUnixMillis converts Unix milliseconds (as carried by venue wire
// payloads) into a UTC time.Time.
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// UnixMicros returns the current time as Unix microseconds.
func UnixMicros() int64 {
	return time.Now().UnixMicro()
}

// FromUnixMicros converts Unix microseconds into a UTC time.Time.
func FromUnixMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// ExponentialBackoff returns the delay for the given zero-indexed retry
// attempt, doubling from initial and capping at max.
func ExponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := initial
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		delay = max
	}
	return delay
}

// FormatDuration renders a duration in a short human-readable form for
// log messages (e.g. "1h30m0s" truncated to minute precision for long
// durations).
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return d.Round(time.Second).String()
	default:
		return d.Round(time.Minute).String()
	}
}
