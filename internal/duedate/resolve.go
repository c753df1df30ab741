// Package duedate resolves natural-language due-date phrases into UTC timestamps.
package duedate

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	defaultHour   = 9
	defaultMinute = 0
)

var (
	timePattern      = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:([ap])\.?\s?m\b\.?)?`)
	todayPattern     = regexp.MustCompile(`\btoday\b`)
	tomorrowPattern  = regexp.MustCompile(`\btomorrow\b`)
	nextWeekPattern  = regexp.MustCompile(`\bnext\s+week\b`)
	weekdayPattern   = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	numericPattern   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)
	monthNamePattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// clock is an extracted 24-hour time of day.
type clock struct {
	hour   int
	minute int
}

// Resolve maps free text to a due timestamp relative to now.
//
// Calendar arithmetic happens in now's location; the result is returned in UTC.
// A time of day without any date cue yields no result.
func Resolve(text string, now time.Time) (time.Time, bool) {
	folded := cases.Fold().String(text)
	if strings.TrimSpace(folded) == "" {
		return time.Time{}, false
	}

	date, ok := resolveDate(folded, now)
	if !ok {
		return time.Time{}, false
	}

	at := clock{hour: defaultHour, minute: defaultMinute}
	if extracted, found := extractTime(folded); found {
		at = extracted
	}

	loc := now.Location()
	resolved := time.Date(date.Year(), date.Month(), date.Day(), at.hour, at.minute, 0, 0, loc)
	return resolved.UTC(), true
}

// FormatISO serializes a resolved timestamp as ISO-8601 UTC.
func FormatISO(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// extractTime finds the first h:mm or meridiem-marked hour in text.
func extractTime(text string) (clock, bool) {
	for _, match := range timePattern.FindAllStringSubmatch(text, -1) {
		hourText, minuteText, meridiem := match[1], match[2], match[3]
		if minuteText == "" && meridiem == "" {
			continue
		}

		hour, err := strconv.Atoi(hourText)
		if err != nil {
			continue
		}
		minute := 0
		if minuteText != "" {
			minute, err = strconv.Atoi(minuteText)
			if err != nil || minute > 59 {
				continue
			}
		}

		switch meridiem {
		case "p":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour != 12 {
				hour += 12
			}
		case "a":
			if hour < 1 || hour > 12 {
				continue
			}
			if hour == 12 {
				hour = 0
			}
		default:
			if hour > 23 {
				continue
			}
		}
		return clock{hour: hour, minute: minute}, true
	}
	return clock{}, false
}

// resolveDate applies keyword, weekday, then explicit-date precedence.
func resolveDate(text string, now time.Time) (time.Time, bool) {
	today := startOfDay(now)

	switch {
	case todayPattern.MatchString(text):
		return today, true
	case tomorrowPattern.MatchString(text):
		return today.AddDate(0, 0, 1), true
	case nextWeekPattern.MatchString(text):
		return today.AddDate(0, 0, 7), true
	}

	if match := weekdayPattern.FindStringSubmatch(text); match != nil {
		target := weekdays[match[1]]
		offset := (int(target) - int(today.Weekday()) + 7) % 7
		if offset == 0 {
			offset = 7
		}
		return today.AddDate(0, 0, offset), true
	}

	if date, ok := numericDate(text, now); ok {
		return date, true
	}
	if date, ok := monthNameDate(text, now); ok {
		return date, true
	}
	return time.Time{}, false
}

// numericDate parses month/day[/year] tokens.
func numericDate(text string, now time.Time) (time.Time, bool) {
	for _, match := range numericPattern.FindAllStringSubmatch(text, -1) {
		month, _ := strconv.Atoi(match[1])
		day, _ := strconv.Atoi(match[2])

		year := now.Year()
		explicitYear := match[3] != ""
		if explicitYear {
			year, _ = strconv.Atoi(match[3])
			if len(match[3]) == 2 {
				year += 2000
			} else if len(match[3]) != 4 {
				continue
			}
		}

		date, ok := calendarDate(year, month, day, now.Location())
		if !ok {
			continue
		}
		if !explicitYear {
			date = rollForward(date, now)
		}
		return date, true
	}
	return time.Time{}, false
}

// monthNameDate parses "march 15th" style tokens.
func monthNameDate(text string, now time.Time) (time.Time, bool) {
	for _, match := range monthNamePattern.FindAllStringSubmatch(text, -1) {
		month := months[match[1]]
		day, _ := strconv.Atoi(match[2])

		date, ok := calendarDate(now.Year(), int(month), day, now.Location())
		if !ok {
			continue
		}
		return rollForward(date, now), true
	}
	return time.Time{}, false
}

// calendarDate rejects dates that time.Date would silently normalize.
func calendarDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if date.Month() != time.Month(month) || date.Day() != day {
		return time.Time{}, false
	}
	return date, true
}

// rollForward moves a year-less date whose midnight is strictly before now
// into next year. Naming today's date after midnight therefore means next year.
func rollForward(date time.Time, now time.Time) time.Time {
	if date.Before(now) {
		return date.AddDate(1, 0, 0)
	}
	return date
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
