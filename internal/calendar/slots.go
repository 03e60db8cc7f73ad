package calendar

import (
	"iter"
	"slices"
	"time"
)

// DaySchedule — недельная доступность провайдера на один день недели.
type DaySchedule struct {
	Weekday      time.Weekday
	Start        Clock
	End          Clock
	SlotDuration time.Duration
}

// Valid проверяет инварианты строки расписания: Start < End, длительность > 0.
func (s DaySchedule) Valid() bool {
	return s.Weekday >= time.Sunday && s.Weekday <= time.Saturday &&
		s.Start.Valid() && s.End.Valid() &&
		s.Start < s.End &&
		s.SlotDuration > 0
}

// Slot — кандидат на запись: дата, время по настенным часам и абсолютный
// интервал [Start, End) в часовом поясе даты.
type Slot struct {
	Date  time.Time
	Time  Clock
	Start time.Time
	End   time.Time
}

// Range возвращает интервал слота.
func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// Slots возвращает последовательность стартов слотов расписания s на дату date.
//
// cutoff = End - SlotDuration; слоты выдаются от Start с шагом SlotDuration,
// пока текущее время <= cutoff. Если день недели date не совпадает с
// расписанием или строка некорректна, последовательность пуста.
// Последовательность можно обходить повторно, результат всегда одинаков.
func Slots(s DaySchedule, date time.Time) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		if !s.Valid() || date.Weekday() != s.Weekday {
			return
		}

		d := DateOnly(date)
		step := Clock(s.SlotDuration)
		cutoff := s.End - step

		for cur := s.Start; cur <= cutoff; cur += step {
			slot := Slot{
				Date:  d,
				Time:  cur,
				Start: cur.On(d),
				End:   (cur + step).On(d),
			}
			if !yield(slot) {
				return
			}
		}
	}
}

// GenerateSlots собирает Slots в срез.
func GenerateSlots(s DaySchedule, date time.Time) []Slot {
	return slices.Collect(Slots(s, date))
}

// SlotCount — ожидаемое число слотов:
// floor((end-start-duration)/duration)+1 при start <= end-duration, иначе 0.
func SlotCount(s DaySchedule) int {
	if !s.Valid() {
		return 0
	}
	step := Clock(s.SlotDuration)
	if s.Start > s.End-step {
		return 0
	}
	return int((s.End-s.Start-step)/step) + 1
}
