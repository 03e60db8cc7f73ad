package calendar

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidTimeRange = errors.New("invalid time range")

// TimeRange представляет временной интервал [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange создаёт интервал длительностью d, начинающийся в start.
// Длительность должна быть положительной, start — ненулевым.
func NewTimeRange(start time.Time, d time.Duration) (TimeRange, error) {
	if start.IsZero() || d <= 0 {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: start.Add(d)}, nil
}

// Duration возвращает длину интервала.
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Valid — интервал непустой и не перевёрнут.
func (tr TimeRange) Valid() bool {
	return !tr.Start.IsZero() && tr.End.After(tr.Start)
}

// Overlaps — пересечение полуоткрытых интервалов.
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return rangesOverlap(tr, other, false)
}

// HasOverlap проверяет, пересекается ли newRange с existing.
// inclusive = true — касание концами считается пересечением.
func HasOverlap(
	newRange TimeRange,
	existing []TimeRange,
	inclusive bool,
) (bool, []TimeRange) {
	var conflicts []TimeRange

	for _, tr := range existing {
		if rangesOverlap(newRange, tr, inclusive) {
			conflicts = append(conflicts, tr)
		}
	}

	return len(conflicts) > 0, conflicts
}

func rangesOverlap(a, b TimeRange, inclusive bool) bool {
	if inclusive {
		return !a.Start.After(b.End) && !b.Start.After(a.End)
	}

	// Полуоткрытые интервалы [Start, End)
	// пересекаются, если a.Start < b.End && b.Start < a.End
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// DateOnly обрезает время до полуночи в часовом поясе t.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// DayWindow — окно суток [00:00, следующие 00:00) для даты date.
// Следующая полночь считается через AddDate, поэтому сутки с переводом
// часов имеют длину 23 или 25 часов.
func DayWindow(date time.Time) TimeRange {
	start := DateOnly(date)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// ParseDate разбирает дату в формате YYYY-MM-DD в часовом поясе loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(time.DateOnly, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "Monday",
	time.Tuesday:   "Tuesday",
	time.Wednesday: "Wednesday",
	time.Thursday:  "Thursday",
	time.Friday:    "Friday",
	time.Saturday:  "Saturday",
	time.Sunday:    "Sunday",
}

// FormatRangeForUser форматирует интервал в человекочитаемую строку
// вида "Monday, 02.01.2006, 09:00–09:30".
// Если loc != nil, время переводится в указанный часовой пояс.
func FormatRangeForUser(tr TimeRange, loc *time.Location) string {
	start := tr.Start
	end := tr.End

	if loc != nil {
		start = start.In(loc)
		end = end.In(loc)
	}

	return fmt.Sprintf("%s, %s, %s–%s",
		weekdayNames[start.Weekday()],
		start.Format("02.01.2006"),
		start.Format("15:04"),
		end.Format("15:04"),
	)
}
