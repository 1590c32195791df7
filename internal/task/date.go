package task

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var sheetDateRe = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)

// ParseDate parses a DD/MM/YYYY sheet date into midnight of that day in loc.
// Anything else, including the empty string, yields ok=false.
// Day and month are not range checked: 31/02/2024 rolls over into March
// the same way time.Date normalizes out-of-range values.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	if !sheetDateRe.MatchString(s) {
		return time.Time{}, false
	}
	parts := strings.Split(s, "/")
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])
	if loc == nil {
		loc = time.Local
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc), true
}

// Today returns midnight of now's calendar day in now's location.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// FormatDayMonth renders a date as DD/MM.
func FormatDayMonth(t time.Time) string {
	return t.Format("02/01")
}
