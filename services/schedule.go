package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule yields the next fire time strictly after a given instant.
type Schedule interface {
	Next(after time.Time) time.Time
}

type dailyAt struct {
	hour, minute int
	loc          *time.Location
}

// Daily fires every day at hour:minute in loc.
func Daily(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	return dailyAt{hour: hour, minute: minute, loc: loc}
}

func (d dailyAt) Next(after time.Time) time.Time {
	t := after.In(d.loc)
	next := time.Date(t.Year(), t.Month(), t.Day(), d.hour, d.minute, 0, 0, d.loc)
	if !next.After(after) {
		next = time.Date(t.Year(), t.Month(), t.Day()+1, d.hour, d.minute, 0, 0, d.loc)
	}
	return next
}

func (d dailyAt) String() string {
	return fmt.Sprintf("daily %02d:%02d", d.hour, d.minute)
}

type weeklyAt struct {
	day          time.Weekday
	hour, minute int
	loc          *time.Location
}

// Weekly fires once a week on day at hour:minute in loc.
func Weekly(day time.Weekday, hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.Local
	}
	return weeklyAt{day: day, hour: hour, minute: minute, loc: loc}
}

func (w weeklyAt) Next(after time.Time) time.Time {
	t := after.In(w.loc)
	ahead := (int(w.day) - int(t.Weekday()) + 7) % 7
	next := time.Date(t.Year(), t.Month(), t.Day()+ahead, w.hour, w.minute, 0, 0, w.loc)
	if !next.After(after) {
		next = time.Date(t.Year(), t.Month(), t.Day()+ahead+7, w.hour, w.minute, 0, 0, w.loc)
	}
	return next
}

func (w weeklyAt) String() string {
	return fmt.Sprintf("weekly %s %02d:%02d", w.day, w.hour, w.minute)
}

// ParseClock reads "HH:MM" in 24-hour form.
func ParseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

// ParseWeekday accepts English day names or their three-letter forms, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}
