package utils

import "time"

// Clock is injected wherever "now" decides an outcome, so schedules and
// pricing windows can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock struct{ At time.Time }

func (f FixedClock) Now() time.Time { return f.At }

func NowUnixMillis() int64 { return time.Now().UnixMilli() }

// FromUnixMillis returns zero time for t<=0 so callers decide how to render.
func FromUnixMillis(t int64) time.Time {
	if t <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(t).UTC()
}

// Vietnam time location (ICT, +07:00); VNPay expects its timestamps in this zone.
var vnLoc = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Ho_Chi_Minh"); err == nil {
		return loc
	}
	return time.FixedZone("ICT", 7*3600)
}()

func VNLocation() *time.Location { return vnLoc }

// FormatVNPayTime renders t as yyyyMMddHHmmss in Vietnam time.
func FormatVNPayTime(t time.Time) string {
	return t.In(vnLoc).Format("20060102150405")
}
