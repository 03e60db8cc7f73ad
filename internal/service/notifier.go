package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/Leganyst/clinic-scheduling/internal/model"
	"github.com/Leganyst/clinic-scheduling/internal/repository"
)

// Notification — событие для внешнего сервиса уведомлений.
type Notification struct {
	UserID        uuid.UUID
	Title         string
	Message       string
	Type          model.NotificationType
	AppointmentID uuid.UUID
}

// Notifier — граница с доставкой уведомлений.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// OutboxNotifier складывает уведомления в таблицу notifications.
type OutboxNotifier struct {
	repo repository.NotificationRepository
}

func NewOutboxNotifier(repo repository.NotificationRepository) *OutboxNotifier {
	return &OutboxNotifier{repo: repo}
}

func (o *OutboxNotifier) Notify(ctx context.Context, n Notification) error {
	meta, err := json.Marshal(map[string]string{"appointment_id": n.AppointmentID.String()})
	if err != nil {
		return err
	}
	if err := o.repo.Create(ctx, &model.Notification{
		UserID:  n.UserID,
		Title:   n.Title,
		Message: n.Message,
		Type:    n.Type,
		Meta:    datatypes.JSON(meta),
	}); err != nil {
		return storageError("create notification", err)
	}
	return nil
}

// LogNotifier только пишет уведомление в лог.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) error {
	l.log.Info().
		Str("user_id", n.UserID.String()).
		Str("type", string(n.Type)).
		Str("appointment_id", n.AppointmentID.String()).
		Str("title", n.Title).
		Msg("notification")
	return nil
}

// MultiNotifier отдаёт уведомление всем получателям и собирает ошибки.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
