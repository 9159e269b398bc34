// Package timefmt converts between calendar instants and the compact time
// format the tracing backend expects: "YYYY-MM-DD HHmm" for minute buckets,
// "YYYY-MM-DD HH" for hour buckets and "YYYY-MM-DD" for day bounds. No
// colons, no seconds, no timezone suffix. All conversions are performed in
// UTC; the backend stores whatever instant it is given without timezone
// conversion, so producing UTC uniformly keeps window bounds and decoded
// bucket labels consistent.
package timefmt

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Granularity selects the bucket resolution of a query window. It is
// caller-selectable rather than derived from the span so results stay
// predictable.
type Granularity string

const (
	Minute Granularity = "MINUTE"
	Hour   Granularity = "HOUR"
	Day    Granularity = "DAY"
)

const (
	minuteLayout = "2006-01-02 1504"
	hourLayout   = "2006-01-02 15"
	dayLayout    = "2006-01-02"
)

// ToWire renders an instant in the backend's wire shape for the given
// granularity. Hour granularity omits minutes entirely per the wire contract
// for day-wide ranges.
func ToWire(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case Hour:
		return t.Format(hourLayout)
	case Day:
		return t.Format(dayLayout)
	default:
		return t.Format(minuteLayout)
	}
}

var wirePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}( \d{4}| \d{2})?$`)

// looseLayouts are attempted in order against cleaned input. Day-first
// layouts come after year-first ones so unambiguous input wins.
var looseLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{layout: "2006-01-02 15:04"},
	{layout: "2006-01-02T15:04:05Z07:00"},
	{layout: "2006-01-02T15:04:05"},
	{layout: "2006-01-02T15:04"},
	{layout: "02-01-2006 15:04"},
	{layout: "02-01-2006 1504"},
	{layout: "02/01/2006 15:04"},
	{layout: "02-01-2006", dateOnly: true},
	{layout: "02/01/2006", dateOnly: true},
}

// NormalizeLoose rewrites ad-hoc human or agent supplied strings
// ("DD-MM-YYYY", "YYYY-MM-DD HH:mm", ISO-ish strings) into the canonical
// minute-resolution wire shape. Date-only day-first input defaults the time
// to 0000. Input that already matches the wire shape, or that cannot be
// parsed at all, is returned unchanged; callers must validate before
// critical use.
func NormalizeLoose(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" || wirePattern.MatchString(trimmed) {
		return input
	}
	for _, candidate := range looseLayouts {
		t, err := time.Parse(candidate.layout, trimmed)
		if err != nil {
			continue
		}
		if candidate.dateOnly {
			return t.Format(dayLayout) + " 0000"
		}
		return ToWire(t, Minute)
	}
	return input
}

var bucketDigits = regexp.MustCompile(`\d{10,12}`)

// DecodeBucketID reverses the 10-12 digit timestamp embedded inside a bucket
// id to a calendar instant. Ten-digit ids carry hour resolution and default
// the minute field to zero; twelve-digit ids carry minutes. The second
// return is false for ids with no decodable timestamp.
func DecodeBucketID(bucketID string) (time.Time, bool) {
	digits := bucketDigits.FindString(bucketID)
	if digits == "" {
		return time.Time{}, false
	}

	year := mustInt(digits[0:4])
	month := mustInt(digits[4:6])
	day := mustInt(digits[6:8])
	hour := mustInt(digits[8:10])
	minute := 0
	if len(digits) >= 12 {
		minute = mustInt(digits[10:12])
	}

	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC), true
}

// BucketLabel produces a short display label for a bucket id. Malformed ids
// fall back to an opaque suffix so a chart can still render the point.
func BucketLabel(bucketID string) string {
	if t, ok := DecodeBucketID(bucketID); ok {
		digits := bucketDigits.FindString(bucketID)
		// Hour-resolution series spanning midnight label the day instead.
		if len(digits) == 10 && t.Hour() == 0 {
			return t.Format("02 Jan")
		}
		return t.Format("15:04")
	}
	if digits := bucketDigits.FindString(bucketID); len(digits) >= 4 {
		return digits[len(digits)-4:]
	}
	if len(bucketID) > 4 {
		return bucketID[len(bucketID)-4:]
	}
	return bucketID
}

func mustInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
