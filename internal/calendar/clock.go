package calendar

import (
	"fmt"
	"time"
)

// Clock — время суток без даты (смещение от полуночи по настенным часам).
type Clock time.Duration

const day = Clock(24 * time.Hour)

// NewClock собирает время суток из часов и минут.
func NewClock(hour, min int) Clock {
	return Clock(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

// ParseClock разбирает "15:04" или "15:04:05".
func ParseClock(s string) (Clock, error) {
	if s == "24:00" || s == "24:00:00" {
		return day, nil
	}
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClock(t.Hour(), t.Minute()) + Clock(time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("parse clock %q: expected HH:MM", s)
}

// Valid — время в пределах суток (24:00 допускается как конец дня).
func (c Clock) Valid() bool {
	return c >= 0 && c <= day
}

func (c Clock) Hour() int   { return int(time.Duration(c) / time.Hour) }
func (c Clock) Minute() int { return int(time.Duration(c) % time.Hour / time.Minute) }
func (c Clock) Second() int { return int(time.Duration(c) % time.Minute / time.Second) }

func (c Clock) String() string {
	if c.Second() != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour(), c.Minute(), c.Second())
	}
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On возвращает момент времени c на дату date по настенным часам её
// часового пояса. В дни перевода часов это не то же самое, что
// DateOnly(date).Add(c).
func (c Clock) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, c.Hour(), c.Minute(), c.Second(), 0, date.Location())
}

// ClockOf возвращает время суток момента t в его часовом поясе.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute()) + Clock(time.Duration(t.Second())*time.Second)
}
