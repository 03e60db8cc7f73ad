package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
)

// provider_schedules — недельная доступность провайдера, не более одной
// строки на (provider_id, day_of_week).
type ProviderSchedule struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ProviderID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_provider_schedules_day,priority:1"`
	DayOfWeek  int       `gorm:"not null;uniqueIndex:ux_provider_schedules_day,priority:2"`

	// Время по настенным часам клиники, без даты.
	StartTime datatypes.Time `gorm:"not null"`
	EndTime   datatypes.Time `gorm:"not null"`

	// В минутах.
	SlotDuration int `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s *ProviderSchedule) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// DaySchedule переводит строку в модель генератора слотов.
func (s ProviderSchedule) DaySchedule() calendar.DaySchedule {
	return calendar.DaySchedule{
		Weekday:      time.Weekday(s.DayOfWeek),
		Start:        calendar.Clock(s.StartTime),
		End:          calendar.Clock(s.EndTime),
		SlotDuration: time.Duration(s.SlotDuration) * time.Minute,
	}
}

// SlotDurationValue — длительность слота как time.Duration.
func (s ProviderSchedule) SlotDurationValue() time.Duration {
	return time.Duration(s.SlotDuration) * time.Minute
}
