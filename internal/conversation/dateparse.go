package conversation

import (
	"errors"
	"strings"
	"time"
)

var (
	errUnparseable = errors.New("unrecognised format")
	errPastDate    = errors.New("date is in the past")
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// Layouts tried in order. Numeric dates are month first.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"1-2-2006",
	"1.2.2006",
	"1/2/06",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
}

// Layouts without a year; the next occurrence is used.
var yearlessLayouts = []string{
	"January 2",
	"Jan 2",
	"1/2",
}

// ParseDate resolves a user-typed due date relative to now. The result is
// midnight of that day in now's location. Dates before today are rejected.
func ParseDate(input string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.Join(strings.Fields(input), " "))
	s = strings.TrimSuffix(s, ".")
	today := startOfDay(now)

	switch s {
	case "":
		return time.Time{}, errUnparseable
	case "today":
		return today, nil
	case "tomorrow", "tmrw", "tmr":
		return today.AddDate(0, 0, 1), nil
	case "next week":
		return today.AddDate(0, 0, 7), nil
	}

	if name, ok := strings.CutPrefix(s, "next "); ok {
		wd, ok := weekdays[name]
		if !ok {
			return time.Time{}, errUnparseable
		}
		return nextWeekday(today, wd), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, now.Location()); err == nil {
			if t.Before(today) {
				return time.Time{}, errPastDate
			}
			return t, nil
		}
	}

	for _, layout := range yearlessLayouts {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err != nil {
			continue
		}
		if next, ok := nextOccurrence(today, t.Month(), t.Day()); ok {
			return next, nil
		}
		return time.Time{}, errUnparseable
	}

	return time.Time{}, errUnparseable
}

// nextOccurrence returns the first month/day on or after today. February 29
// only exists in leap years, so up to eight years are checked.
func nextOccurrence(today time.Time, month time.Month, day int) (time.Time, bool) {
	for y := today.Year(); y <= today.Year()+8; y++ {
		t := time.Date(y, month, day, 0, 0, 0, 0, today.Location())
		if t.Month() != month || t.Before(today) {
			continue
		}
		return t, true
	}
	return time.Time{}, false
}

// nextWeekday returns the first wd strictly after day.
func nextWeekday(day time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(day.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return day.AddDate(0, 0, ahead)
}

// Time layouts tried in order after upper-casing the input.
var timeLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
	"15",
}

// ParseTime parses a time of day and returns it as HH:MM.
func ParseTime(input string) (string, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(input), " "))
	s = strings.NewReplacer("A.M.", "AM", "P.M.", "PM").Replace(s)

	switch s {
	case "NOON":
		return "12:00", nil
	case "MIDNIGHT", "END OF DAY", "EOD":
		return "23:59", nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("15:04"), nil
		}
	}
	return "", errUnparseable
}

// parseTimeCode turns a TIME_HH_MM postback code into HH:MM.
func parseTimeCode(code string) (string, bool) {
	rest, ok := strings.CutPrefix(code, CodeTimePrefix)
	if !ok {
		return "", false
	}
	t, err := time.Parse("15_04", rest)
	if err != nil {
		return "", false
	}
	return t.Format("15:04"), true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
