// Package dates converts the date shapes found in checklist documents into the single
// display shape the tool writes back.
package dates

import (
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Layout is the canonical display shape (day/month/year).
const Layout = "02/01/2006"

var (
	dmy = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	ymd = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
)

// Format renders t in the canonical shape.
func Format(t time.Time) string {
	return t.Format(Layout)
}

// Parse recognises D/M/YYYY, YYYY-M-D and anything cast.ToTimeE understands.
func Parse(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false
	}
	if m := dmy.FindStringSubmatch(v); m != nil {
		return build(m[3], m[2], m[1])
	}
	if m := ymd.FindStringSubmatch(v); m != nil {
		return build(m[1], m[2], m[3])
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func build(year, month, day string) (time.Time, bool) {
	y, m, d := cast.ToInt(strings.TrimLeft(year, "0")), cast.ToInt(strings.TrimLeft(month, "0")), cast.ToInt(strings.TrimLeft(day, "0"))
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// reject rollovers such as 31/02
	if t.Day() != d || int(t.Month()) != m || t.Year() != y {
		return time.Time{}, false
	}
	return t, true
}

// Canonical returns v in the canonical shape; values no parser understands are returned trimmed.
func Canonical(v string) string {
	t, ok := Parse(v)
	if !ok {
		return strings.TrimSpace(v)
	}
	return Format(t)
}
