package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for calendar dates.
const DateLayout = "2006-01-02"

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate formats t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// AddDays returns the calendar day n days after t.
func AddDays(t time.Time, n int) time.Time {
	return DateOnly(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// ParseHours converts a duration expressed as decimal hours ("1.5", "1,5"),
// clock time ("1:30") or unit notation ("1h30", "1h30m", "90m", "2h") into
// decimal hours.
func ParseHours(input string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(h)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", input, err)
		}
		minutes, err := strconv.Atoi(m)
		if err != nil || minutes < 0 || minutes >= 60 {
			return 0, fmt.Errorf("invalid duration %q: minutes out of range", input)
		}
		return float64(hours) + float64(minutes)/60, nil
	}

	if strings.ContainsAny(s, "hm") {
		var total float64
		rest := s
		if h, after, ok := strings.Cut(rest, "h"); ok {
			hours, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", input, err)
			}
			total += hours
			rest = strings.TrimSpace(after)
		}
		rest = strings.TrimSuffix(rest, "m")
		if rest != "" {
			minutes, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", input, err)
			}
			total += minutes / 60
		}
		return total, nil
	}

	hours, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", input, err)
	}
	return hours, nil
}
