package propagation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
)

// Change — сигнал "что-то изменилось, перечитай". Пустой Dates означает
// все даты провайдера (например, после замены расписания).
type Change struct {
	ProviderID uuid.UUID `json:"provider_id"`
	Dates      []string  `json:"dates,omitempty"`
	// Идентификатор экземпляра-источника; мост отбрасывает свои же сообщения.
	Origin string    `json:"origin,omitempty"`
	At     time.Time `json:"at"`
}

// ProviderChange — изменение всех дат провайдера.
func ProviderChange(providerID uuid.UUID) Change {
	return Change{ProviderID: providerID}
}

// RangeChange — изменение дат, которые пересекает интервал [start, end)
// в поясе клиники loc.
func RangeChange(providerID uuid.UUID, start, end time.Time, loc *time.Location) Change {
	keys := calendar.DaysTouched(providerID, start, end, loc)
	dates := make([]string, 0, len(keys))
	for _, k := range keys {
		dates = append(dates, k.Date)
	}
	return Change{ProviderID: providerID, Dates: dates}
}

// Matches сообщает, затрагивает ли изменение ключ.
func (c Change) Matches(key calendar.DayKey) bool {
	if key.ProviderID != c.ProviderID {
		return false
	}
	if len(c.Dates) == 0 {
		return true
	}
	for _, d := range c.Dates {
		if d == key.Date {
			return true
		}
	}
	return false
}

func encodeChange(c Change) ([]byte, error) {
	return json.Marshal(c)
}

func decodeChange(body []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(body, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if c.ProviderID == uuid.Nil {
		return Change{}, fmt.Errorf("decode change: empty provider_id")
	}
	return c, nil
}
