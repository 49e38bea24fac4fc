// Package duration renders elapsed and remaining times as compact strings
// such as "1h 5m" or "12s 345ms".
package duration

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute

	maxUnits = 2
)

// Format renders d with FormatMillis, keeping fractional milliseconds.
func Format(d time.Duration) string {
	return FormatMillis(float64(d) / float64(time.Millisecond))
}

// FormatMillis renders a millisecond count using at most two units, picked from
// the most significant non-zero ones. The leading unit is floored and every
// unit after it is rounded, so a rounding carry never inflates the leading
// unit. Zero, negative and non-finite inputs render as the empty string.
func FormatMillis(ms float64) string {
	if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return ""
	}

	var b strings.Builder
	printed := 0

	hours := int64(math.Floor(ms / msPerHour))
	var minutes int64
	if hours == 0 {
		minutes = int64(math.Floor(ms/msPerMinute)) % 60
	} else {
		appendUnit(&b, hours, "h")
		minutes = roundHalfUp(ms/msPerMinute) % 60
		printed++
	}

	var seconds int64
	if minutes == 0 {
		seconds = int64(math.Floor(ms/msPerSecond)) % 60
	} else {
		appendUnit(&b, minutes, "m")
		seconds = roundHalfUp(ms/msPerSecond) % 60
		printed++
	}

	if seconds != 0 && printed < maxUnits {
		appendUnit(&b, seconds, "s")
		printed++
	}

	millis := roundHalfUp(ms) % msPerSecond
	if millis != 0 && printed < maxUnits {
		appendUnit(&b, millis, "ms")
	}

	return strings.TrimSpace(b.String())
}

func appendUnit(b *strings.Builder, value int64, unit string) {
	b.WriteString(strconv.FormatInt(value, 10))
	b.WriteString(unit)
	b.WriteByte(' ')
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
