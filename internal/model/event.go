package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Тип события аудита.
type EventType string

const (
	EventTypeAppointmentCreated   EventType = "appointment_created"
	EventTypeAppointmentUpdated   EventType = "appointment_updated"
	EventTypeAppointmentCancelled EventType = "appointment_cancelled"
	EventTypeAppointmentDeleted   EventType = "appointment_deleted"
	EventTypeScheduleReplaced     EventType = "schedule_replaced"
)

// events — события аудита
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventType EventType `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"index"`

	// Кто выполнил действие (пациент, сотрудник); может быть пустым.
	ActorID *uuid.UUID `gorm:"type:uuid;index"`

	AppointmentID *uuid.UUID `gorm:"type:uuid;index"`
	ProviderID    *uuid.UUID `gorm:"type:uuid;index"`

	Details string `gorm:"type:text"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
