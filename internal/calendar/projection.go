package calendar

import (
	"fmt"
	"strings"
	"time"
)

// MatchMode определяет, как запись занимает слот.
type MatchMode string

const (
	// MatchOverlap — слот занят, если его [Start, End) пересекается с
	// интервалом активной записи. Запись, сделанная по старой сетке
	// (до смены длительности слота), гасит все слоты новой сетки,
	// которые она перекрывает.
	MatchOverlap MatchMode = "overlap"

	// MatchExact — слот занят только при точном совпадении времени начала.
	// Запись, начало которой не попадает на текущую сетку, не гасит
	// перекрываемые ею слоты.
	MatchExact MatchMode = "exact"
)

// ParseMatchMode разбирает режим; пустая строка даёт MatchOverlap.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", MatchOverlap:
		return MatchOverlap, nil
	case MatchExact:
		return MatchExact, nil
	default:
		return "", fmt.Errorf("unknown match mode %q", s)
	}
}

// Booking — запись, участвующая в проекции.
type Booking struct {
	Start  time.Time
	End    time.Time
	Active bool
}

// SlotAvailability — слот и признак доступности.
type SlotAvailability struct {
	Slot
	Available bool
}

// Project накладывает записи на слоты. Учитываются только активные записи;
// занятые слоты остаются в результате с Available = false.
func Project(slots []Slot, bookings []Booking, mode MatchMode) []SlotAvailability {
	out := make([]SlotAvailability, 0, len(slots))

	active := make([]TimeRange, 0, len(bookings))
	booked := make(map[int64]struct{}, len(bookings))
	for _, b := range bookings {
		if !b.Active {
			continue
		}
		active = append(active, TimeRange{Start: b.Start, End: b.End})
		booked[b.Start.UnixNano()] = struct{}{}
	}

	for _, s := range slots {
		var taken bool
		switch mode {
		case MatchExact:
			_, taken = booked[s.Start.UnixNano()]
		default:
			taken, _ = HasOverlap(s.Range(), active, false)
		}
		out = append(out, SlotAvailability{Slot: s, Available: !taken})
	}

	return out
}
