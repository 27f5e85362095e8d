// Package timeparse resolves natural-language date and time expressions
// ("tomorrow at 6pm", "in 20 minutes", "next week", "at 9:30") into concrete
// timestamps relative to a caller-supplied reference time.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrUnparsable is returned when no rule matched the expression.
var ErrUnparsable = errors.New("unparsable time expression")

// Result is a parsed time expression.
type Result struct {
	Time time.Time
	// TimeOnly is set when the expression named a time of day without a
	// date ("at 6pm", "in the evening"). Callers updating an existing
	// timestamp should keep its date and replace only the clock time.
	TimeOnly bool
}

var (
	relativeRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s*(minute|min|hour|hr|day)s?\b`)
	clockRe    = regexp.MustCompile(`(?i)\b(?:at\s+)?(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	dayNameRe  = regexp.MustCompile(`(?i)\b(?:on\s+|next\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
)

// namedTimes maps time-of-day words to a 24h clock hour, in match order.
// "tonight" must precede "night".
var namedTimes = []struct {
	word string
	hour int
}{
	{"morning", 9},
	{"noon", 12},
	{"afternoon", 15},
	{"evening", 18},
	{"tonight", 20},
	{"night", 21},
}

// Parse resolves expr relative to now. It tries, in order: relative offsets,
// named dates, weekday names, named times of day, explicit clock times, and
// finally an absolute date parse. Date-carrying expressions may also carry a
// clock time ("tomorrow at 6pm"); the clock part is applied on top.
func Parse(expr string, now time.Time) (Result, error) {
	text := strings.TrimSpace(strings.ToLower(expr))
	if text == "" {
		return Result{}, ErrUnparsable
	}

	// Relative offsets: "in 20 minutes", "in 2 hours", "in 3 days"
	if m := relativeRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Result{}, fmt.Errorf("bad offset %q: %w", m[1], err)
		}
		switch {
		case strings.HasPrefix(m[2], "min"):
			return Result{Time: now.Add(time.Duration(n) * time.Minute)}, nil
		case strings.HasPrefix(m[2], "h"):
			return Result{Time: now.Add(time.Duration(n) * time.Hour)}, nil
		default:
			return Result{Time: now.AddDate(0, 0, n)}, nil
		}
	}

	// Named dates
	if day, ok := namedDate(text, now); ok {
		return Result{Time: applyClock(day, text, 9, 0)}, nil
	}

	// Weekday names: "friday", "on friday", "next friday"
	if m := dayNameRe.FindStringSubmatch(text); m != nil {
		day := nextWeekday(now, m[1], strings.Contains(text, "next "))
		return Result{Time: applyClock(day, text, 9, 0)}, nil
	}

	// Bare time of day: "in the evening", "tonight"
	for _, nt := range namedTimes {
		if strings.Contains(text, nt.word) {
			t := time.Date(now.Year(), now.Month(), now.Day(), nt.hour, 0, 0, 0, now.Location())
			return Result{Time: t, TimeOnly: true}, nil
		}
	}

	// Bare clock time: "at 6pm", "9:30", "at 17:45"
	if t, ok := parseClock(text); ok {
		resolved := time.Date(now.Year(), now.Month(), now.Day(), t.hour, t.minute, 0, 0, now.Location())
		return Result{Time: resolved, TimeOnly: true}, nil
	}

	// Absolute dates: "june 5", "2026-09-14", "5 Sep"
	if parsed, err := dateparse.ParseIn(expr, now.Location()); err == nil {
		return Result{Time: parsed}, nil
	}

	return Result{}, ErrUnparsable
}

// ApplyTimeOnly replaces the clock time of base with that of update,
// preserving base's calendar day.
func ApplyTimeOnly(base, update time.Time) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(),
		update.Hour(), update.Minute(), 0, 0, base.Location())
}

func namedDate(text string, now time.Time) (time.Time, bool) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case strings.Contains(text, "day after tomorrow"):
		return midnight.AddDate(0, 0, 2), true
	case strings.Contains(text, "tomorrow"):
		return midnight.AddDate(0, 0, 1), true
	case strings.Contains(text, "today"):
		return midnight, true
	case strings.Contains(text, "next week"):
		return midnight.AddDate(0, 0, 7), true
	case strings.Contains(text, "weekend"):
		// this weekend = upcoming Saturday (today, if already Saturday)
		days := (int(time.Saturday) - int(now.Weekday()) + 7) % 7
		return midnight.AddDate(0, 0, days), true
	}
	return time.Time{}, false
}

func nextWeekday(now time.Time, name string, forceNext bool) time.Time {
	targets := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	target := targets[name]
	days := (int(target) - int(now.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	} else if forceNext {
		days += 7
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return midnight.AddDate(0, 0, days)
}

type clockTime struct {
	hour   int
	minute int
}

// parseClock extracts an explicit clock time. A bare number without am/pm or
// minutes is ignored to avoid eating ordinary digits ("buy 2 lemons").
func parseClock(text string) (clockTime, bool) {
	m := clockRe.FindStringSubmatch(text)
	if m == nil {
		return clockTime{}, false
	}
	if m[2] == "" && m[3] == "" {
		return clockTime{}, false
	}

	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return clockTime{}, false
	}

	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return clockTime{hour: hour, minute: minute}, true
}

// applyClock layers an explicit or named clock time found in text onto day,
// defaulting to defHour:defMin.
func applyClock(day time.Time, text string, defHour, defMin int) time.Time {
	for _, nt := range namedTimes {
		if strings.Contains(text, nt.word) {
			return time.Date(day.Year(), day.Month(), day.Day(), nt.hour, 0, 0, 0, day.Location())
		}
	}
	if t, ok := parseClock(text); ok {
		return time.Date(day.Year(), day.Month(), day.Day(), t.hour, t.minute, 0, 0, day.Location())
	}
	return time.Date(day.Year(), day.Month(), day.Day(), defHour, defMin, 0, 0, day.Location())
}
