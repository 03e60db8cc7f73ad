package model

import (
	"fmt"

	"gorm.io/gorm"
)

// Частичные уникальные индексы закрывают гонку check-then-insert:
// проигравшая конкурентная запись получает ошибку уникальности.
// Синтаксис одинаков для PostgreSQL и SQLite.
var activeIndexes = []string{
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_appointments_active_slot
		ON appointments (provider_id, start_time)
		WHERE status IN ('pending', 'confirmed')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_appointments_active_patient
		ON appointments (patient_id)
		WHERE status IN ('pending', 'confirmed')`,
}

// AutoMigrate выполняет миграцию всех сущностей ядра расписания.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ProviderSchedule{},
		&Appointment{},
		&Event{},
		&Notification{},
	); err != nil {
		return err
	}

	for _, stmt := range activeIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}
