// ABOUTME: Component-based parsing and formatting for YYYY-MM-DD date strings
// ABOUTME: The only code path allowed to interpret event date and time values
package dates

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Parse splits a YYYY-MM-DD string into integer components. It never routes
// the string through a timezone-aware parser, so a date is the same calendar
// date on every host regardless of UTC offset.
func Parse(date string) (year, month, day int, err error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) != 2 || len(parts[2]) != 2 {
		return 0, 0, 0, fmt.Errorf("malformed date %q: want YYYY-MM-DD", date)
	}
	year, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", date, err)
	}
	month, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", date, err)
	}
	day, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("malformed date %q: %w", date, err)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("date %q out of range", date)
	}
	return year, month, day, nil
}

// Valid reports whether date is a well-formed YYYY-MM-DD string.
func Valid(date string) bool {
	_, _, _, err := Parse(date)
	return err == nil
}

// Format renders integer components as YYYY-MM-DD.
func Format(year, month, day int) string {
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// ValidClock reports whether clock is a well-formed HH:MM string.
func ValidClock(clock string) bool {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}

// Compare orders two well-formed dates: -1 if a < b, 0 if equal, 1 if a > b.
// Component-wise comparison; zero-padded strings also order lexically, but
// comparing parsed integers keeps malformed input from sorting silently.
func Compare(a, b string) int {
	ay, am, ad, errA := Parse(a)
	by, bm, bd, errB := Parse(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	if ay != by {
		return sign(ay - by)
	}
	if am != bm {
		return sign(am - bm)
	}
	return sign(ad - bd)
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// InRange reports whether date falls within [timeMin, timeMax] inclusive.
// An empty bound is open.
func InRange(date, timeMin, timeMax string) bool {
	if timeMin != "" && Compare(date, timeMin) < 0 {
		return false
	}
	if timeMax != "" && Compare(date, timeMax) > 0 {
		return false
	}
	return true
}

// AddDays shifts a date by n calendar days. Arithmetic runs through a fixed
// UTC time.Date so month and year carries are correct without any host
// timezone influence.
func AddDays(date string, n int) (string, error) {
	year, month, day, err := Parse(date)
	if err != nil {
		return "", err
	}
	t := time.Date(year, time.Month(month), day+n, 0, 0, 0, 0, time.UTC)
	return Format(t.Year(), int(t.Month()), t.Day()), nil
}

// Today returns the host's current calendar date.
func Today() string {
	now := time.Now()
	return Format(now.Year(), int(now.Month()), now.Day())
}

// ComposeDateTime joins a date and an HH:MM clock into the provider's
// zoneless dateTime shape (seconds fixed at :00).
func ComposeDateTime(date, clock string) string {
	return date + "T" + clock + ":00"
}

// SplitDateTime slices a provider dateTime string (RFC3339-shaped) back into
// date and HH:MM components by position, deliberately ignoring any trailing
// offset so the event stays on the provider's stated calendar day.
func SplitDateTime(dt string) (date, clock string, err error) {
	if len(dt) < 16 || dt[10] != 'T' {
		return "", "", fmt.Errorf("malformed dateTime %q", dt)
	}
	date = dt[:10]
	clock = dt[11:16]
	if !Valid(date) || !ValidClock(clock) {
		return "", "", fmt.Errorf("malformed dateTime %q", dt)
	}
	return date, clock, nil
}
