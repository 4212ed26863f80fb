package opctx

import (
	"math"
	"time"
)

// clockBase anchors the monotonic clock. Readings derived from it are immune
// to wall-clock adjustments after process start.
var clockBase = time.Now()
var clockBaseNanos = clockBase.UnixNano()

// NowNanos returns a monotonic nanosecond timestamp. The value is only
// meaningful relative to other readings from the same process.
func NowNanos() int64 {
	return clockBaseNanos + int64(time.Since(clockBase))
}

// AddNanos adds two nanosecond quantities, saturating at the int64 range
// instead of overflowing.
func AddNanos(a, b int64) int64 {
	s := a + b
	if b > 0 && s < a {
		return math.MaxInt64
	}
	if b < 0 && s > a {
		return math.MinInt64
	}
	return s
}

// DeadlineFrom computes an absolute deadline d after start, saturating at
// the int64 range.
func DeadlineFrom(startNanos int64, d time.Duration) int64 {
	return AddNanos(startNanos, int64(d))
}

// nanosToWall converts a monotonic reading back to an approximate wall-clock
// time for interop with the standard context surface.
func nanosToWall(nanos int64) time.Time {
	return clockBase.Add(time.Duration(nanos - clockBaseNanos))
}
