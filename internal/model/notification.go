package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationTypeAppointmentConfirmed   NotificationType = "appointment_confirmed"
	NotificationTypeAppointmentCancelled   NotificationType = "appointment_cancelled"
	NotificationTypeAppointmentRescheduled NotificationType = "appointment_rescheduled"
)

// notifications — исходящие уведомления (outbox). Доставкой занимается
// внешний сервис, он же проставляет DeliveredAt.
type Notification struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserID  uuid.UUID        `gorm:"type:uuid;not null;index"`
	Title   string           `gorm:"type:varchar(255);not null"`
	Message string           `gorm:"type:text;not null"`
	Type    NotificationType `gorm:"type:varchar(64);not null;index"`

	// {"appointment_id": "..."}
	Meta datatypes.JSON

	CreatedAt   time.Time `gorm:"index"`
	DeliveredAt *time.Time
}

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
