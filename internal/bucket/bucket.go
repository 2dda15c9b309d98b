// Package bucket maps transaction dates to statement bucket keys.
package bucket

import (
	"time"

	"github.com/cleared-dev/banksync/internal/model"
)

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Key returns the bucket key of date under mode. maxDate is the latest
// transaction date of the run; it is the key of every transaction in
// GroupNone.
func Key(date time.Time, mode model.GroupingMode, maxDate time.Time) time.Time {
	date = Day(date)
	switch normalize(mode) {
	case model.GroupDay:
		return date
	case model.GroupWeek:
		return monday(date)
	case model.GroupBimonthly:
		if date.Day() >= 15 {
			return time.Date(date.Year(), date.Month(), 15, 0, 0, 0, 0, time.UTC)
		}
		return startOfMonth(date)
	case model.GroupMonth:
		return startOfMonth(date)
	default:
		return Day(maxDate)
	}
}

// End returns the last day covered by the bucket starting at key.
func End(key time.Time, mode model.GroupingMode) time.Time {
	key = Day(key)
	switch normalize(mode) {
	case model.GroupWeek:
		return key.AddDate(0, 0, 6)
	case model.GroupBimonthly:
		if key.Day() == 1 {
			return time.Date(key.Year(), key.Month(), 14, 0, 0, 0, 0, time.UTC)
		}
		return endOfMonth(key)
	case model.GroupMonth:
		return endOfMonth(key)
	default:
		return key
	}
}

// WindowStart is the earliest statement date a run with the given earliest
// transaction can touch. In GroupNone every key collapses to maxDate, so the
// window starts at the earliest transaction instead.
func WindowStart(earliest time.Time, mode model.GroupingMode, maxDate time.Time) time.Time {
	if normalize(mode) == model.GroupNone {
		return Day(earliest)
	}
	return Key(earliest, mode, maxDate)
}

// normalize maps an unset mode to the default grouping.
func normalize(mode model.GroupingMode) model.GroupingMode {
	if mode == "" {
		return model.DefaultGrouping
	}
	return mode
}

func monday(date time.Time) time.Time {
	// time.Weekday has Sunday = 0; shift so Monday = 0.
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

func startOfMonth(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func endOfMonth(date time.Time) time.Time {
	return startOfMonth(date).AddDate(0, 1, -1)
}
