package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Leganyst/clinic-scheduling/internal/calendar"
)

// Виды ошибок. Транспорт сопоставляет их кодам ответа через errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrNotFound           = errors.New("not found")
	ErrStorage            = errors.New("storage error")
	ErrForbidden          = errors.New("forbidden")
)

// Конкретные ошибки, каждая оборачивает свой вид.
var (
	ErrActiveAppointmentExists = fmt.Errorf("%w: patient already has an active appointment", ErrPreconditionFailed)
	ErrSlotUnavailable         = fmt.Errorf("%w: slot is not available", ErrPreconditionFailed)
	ErrInvalidTransition       = fmt.Errorf("%w: invalid status transition", ErrPreconditionFailed)
	ErrInvalidTimeRange        = fmt.Errorf("%w: %w", ErrValidation, calendar.ErrInvalidTimeRange)
	ErrAppointmentNotFound     = fmt.Errorf("%w: appointment", ErrNotFound)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storageError оборачивает ошибку хранилища; повторов нет.
func storageError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
