package calendar

import (
	"time"

	"github.com/google/uuid"
)

// DayKey — пара (провайдер, календарная дата клиники), по которой
// кэшируются проекции и подписываются наблюдатели.
type DayKey struct {
	ProviderID uuid.UUID
	Date       string // YYYY-MM-DD
}

// NewDayKey строит ключ по дате в том поясе, в котором она передана.
func NewDayKey(providerID uuid.UUID, date time.Time) DayKey {
	return DayKey{ProviderID: providerID, Date: date.Format(time.DateOnly)}
}

// Day возвращает полночь даты ключа в поясе loc.
func (k DayKey) Day(loc *time.Location) (time.Time, error) {
	return ParseDate(k.Date, loc)
}

func (k DayKey) String() string {
	return k.ProviderID.String() + "/" + k.Date
}

// DaysTouched возвращает ключи всех дат, которые пересекает интервал
// [start, end) в поясе loc. Для записи это обычно один день.
func DaysTouched(providerID uuid.UUID, start, end time.Time, loc *time.Location) []DayKey {
	start = start.In(loc)
	end = end.In(loc)
	keys := []DayKey{NewDayKey(providerID, start)}
	for d := DateOnly(start).AddDate(0, 0, 1); d.Before(end); d = d.AddDate(0, 0, 1) {
		keys = append(keys, NewDayKey(providerID, d))
	}
	return keys
}

// DayProjection — полная проекция доступности провайдера на дату.
type DayProjection struct {
	Key         DayKey
	Mode        MatchMode
	Slots       []SlotAvailability
	GeneratedAt time.Time
}

// Available возвращает только свободные слоты.
func (p *DayProjection) Available() []Slot {
	out := make([]Slot, 0, len(p.Slots))
	for _, s := range p.Slots {
		if s.Available {
			out = append(out, s.Slot)
		}
	}
	return out
}

// IsAvailable сообщает, свободен ли слот с началом start.
func (p *DayProjection) IsAvailable(start time.Time) bool {
	for _, s := range p.Slots {
		if s.Start.Equal(start) {
			return s.Available
		}
	}
	return false
}
